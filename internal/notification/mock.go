package notification

import "github.com/stretchr/testify/mock"

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Send(endpoint string, payload Payload) error {
	args := m.Called(endpoint, payload)
	return args.Error(0)
}
