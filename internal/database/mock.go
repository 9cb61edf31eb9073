package database

import (
	"github.com/stretchr/testify/mock"
)

type MockGatherUpRepository struct {
	mock.Mock
}

func (m *MockGatherUpRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockGatherUpRepository) CreateUser(params CreateUserParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}

func (m *MockGatherUpRepository) UpdateUser(params UpdateUserParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}

func (m *MockGatherUpRepository) GetUserById(userId int) (User, error) {
	args := m.Called(userId)
	return args.Get(0).(User), args.Error(1)
}

func (m *MockGatherUpRepository) GetUserByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}

func (m *MockGatherUpRepository) GetUserByMemberCode(memberCode string) (User, error) {
	args := m.Called(memberCode)
	return args.Get(0).(User), args.Error(1)
}

func (m *MockGatherUpRepository) SetUserVerification(userId int, verified bool) error {
	args := m.Called(userId, verified)
	return args.Error(0)
}

func (m *MockGatherUpRepository) CreateAd(params CreateAdParams) (Ad, Group, error) {
	args := m.Called(params)
	return args.Get(0).(Ad), args.Get(1).(Group), args.Error(2)
}

func (m *MockGatherUpRepository) GetAdById(adId int) (Ad, error) {
	args := m.Called(adId)
	return args.Get(0).(Ad), args.Error(1)
}

func (m *MockGatherUpRepository) ListAds(gender string) ([]Ad, error) {
	args := m.Called(gender)
	return args.Get(0).([]Ad), args.Error(1)
}

func (m *MockGatherUpRepository) DeleteAd(adId int) (Ad, error) {
	args := m.Called(adId)
	return args.Get(0).(Ad), args.Error(1)
}

func (m *MockGatherUpRepository) CreateRequest(adId, userId int) (Request, error) {
	args := m.Called(adId, userId)
	return args.Get(0).(Request), args.Error(1)
}

func (m *MockGatherUpRepository) GetRequestById(requestId int) (Request, error) {
	args := m.Called(requestId)
	return args.Get(0).(Request), args.Error(1)
}

func (m *MockGatherUpRepository) RequestExists(adId, userId int) bool {
	args := m.Called(adId, userId)
	return args.Bool(0)
}

func (m *MockGatherUpRepository) ListRequestsForAd(adId int) ([]Request, error) {
	args := m.Called(adId)
	return args.Get(0).([]Request), args.Error(1)
}

func (m *MockGatherUpRepository) AcceptRequest(requestId int) (Request, error) {
	args := m.Called(requestId)
	return args.Get(0).(Request), args.Error(1)
}

func (m *MockGatherUpRepository) RejectRequest(requestId int) (Request, error) {
	args := m.Called(requestId)
	return args.Get(0).(Request), args.Error(1)
}

func (m *MockGatherUpRepository) DeleteRequest(requestId int) error {
	args := m.Called(requestId)
	return args.Error(0)
}

func (m *MockGatherUpRepository) RemoveInterest(adId, userId int) error {
	args := m.Called(adId, userId)
	return args.Error(0)
}

func (m *MockGatherUpRepository) GenderTally(adId int) (GenderTally, error) {
	args := m.Called(adId)
	return args.Get(0).(GenderTally), args.Error(1)
}

func (m *MockGatherUpRepository) GetGroupBySlug(slug string) (Group, error) {
	args := m.Called(slug)
	return args.Get(0).(Group), args.Error(1)
}

func (m *MockGatherUpRepository) GetGroupByAdId(adId int) (Group, error) {
	args := m.Called(adId)
	return args.Get(0).(Group), args.Error(1)
}

func (m *MockGatherUpRepository) ListGroupsForUser(userId int) ([]Group, error) {
	args := m.Called(userId)
	return args.Get(0).([]Group), args.Error(1)
}

func (m *MockGatherUpRepository) GetGroupMembers(groupId int) ([]GroupMember, error) {
	args := m.Called(groupId)
	return args.Get(0).([]GroupMember), args.Error(1)
}

func (m *MockGatherUpRepository) IsGroupMember(groupId, userId int) bool {
	args := m.Called(groupId, userId)
	return args.Bool(0)
}

func (m *MockGatherUpRepository) RemoveGroupMember(groupId, userId int) error {
	args := m.Called(groupId, userId)
	return args.Error(0)
}

func (m *MockGatherUpRepository) CreateMessage(msg Message) (Message, error) {
	args := m.Called(msg)
	return args.Get(0).(Message), args.Error(1)
}

func (m *MockGatherUpRepository) GetMessages(groupId, since, before, limit int) ([]Message, error) {
	args := m.Called(groupId, since, before, limit)
	return args.Get(0).([]Message), args.Error(1)
}

func (m *MockGatherUpRepository) UpsertSubscription(userId int, endpoint string) (Subscription, error) {
	args := m.Called(userId, endpoint)
	return args.Get(0).(Subscription), args.Error(1)
}

func (m *MockGatherUpRepository) GetSubscriptionByUserId(userId int) (Subscription, error) {
	args := m.Called(userId)
	return args.Get(0).(Subscription), args.Error(1)
}

func (m *MockGatherUpRepository) DeleteSubscription(userId int) error {
	args := m.Called(userId)
	return args.Error(0)
}
