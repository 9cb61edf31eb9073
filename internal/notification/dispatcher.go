package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Payload is the user-visible content of a push notification.
type Payload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Dispatcher delivers a payload to a previously registered push endpoint.
// Delivery is best effort: callers log failures and move on.
type Dispatcher interface {
	Send(endpoint string, payload Payload) error
}

type pushRequest struct {
	To    string `json:"to"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Sound string `json:"sound"`
}

// PushDispatcher posts notifications to an Expo-style push gateway.
type PushDispatcher struct {
	gatewayURL string
	client     *http.Client
}

func NewPushDispatcher(gatewayURL string) *PushDispatcher {
	return &PushDispatcher{
		gatewayURL: gatewayURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (d *PushDispatcher) Send(endpoint string, payload Payload) error {
	body, err := json.Marshal(pushRequest{
		To:    endpoint,
		Title: payload.Title,
		Body:  payload.Message,
		Sound: "default",
	})
	if err != nil {
		return fmt.Errorf("marshal push request: %w", err)
	}

	resp, err := d.client.Post(d.gatewayURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post push request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("push gateway returned %s", resp.Status)
	}

	return nil
}
