package notification

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPushDispatcherSend(t *testing.T) {
	t.Run("posts payload to gateway", func(t *testing.T) {
		var received pushRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		d := NewPushDispatcher(srv.URL)
		err := d.Send("ExponentPushToken[abc]", Payload{Title: "New request", Message: "jane wants to join"})
		assert.NoError(t, err)
		assert.Equal(t, "ExponentPushToken[abc]", received.To)
		assert.Equal(t, "New request", received.Title)
		assert.Equal(t, "jane wants to join", received.Body)
	})

	t.Run("gateway error surfaces to caller", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		d := NewPushDispatcher(srv.URL)
		err := d.Send("ExponentPushToken[abc]", Payload{Title: "t", Message: "m"})
		assert.ErrorContains(t, err, "push gateway returned")
	})

	t.Run("unreachable gateway surfaces to caller", func(t *testing.T) {
		d := NewPushDispatcher("http://127.0.0.1:0")
		err := d.Send("ExponentPushToken[abc]", Payload{Title: "t", Message: "m"})
		assert.Error(t, err)
	})
}
