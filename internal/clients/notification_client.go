package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Notifier is the side-channel used for workflow notifications and
// emergency-access alerts.
type Notifier interface {
	Send(ctx context.Context, recipientEmail, subject, body string, variables map[string]interface{}) error
}

// NotificationClient sends notifications via the notification-service API
type NotificationClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewNotificationClient creates a client for the notification service at
// the given base URL
func NewNotificationClient(baseURL string) *NotificationClient {
	return &NotificationClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SendNotificationRequest represents the API request to notification-service
type SendNotificationRequest struct {
	Channel        string                 `json:"channel"`
	RecipientEmail string                 `json:"recipientEmail"`
	Subject        string                 `json:"subject"`
	BodyHTML       string                 `json:"bodyHtml,omitempty"`
	Variables      map[string]interface{} `json:"variables,omitempty"`
}

// Send delivers a single email notification
func (c *NotificationClient) Send(ctx context.Context, recipientEmail, subject, body string, variables map[string]interface{}) error {
	req := SendNotificationRequest{
		Channel:        "EMAIL",
		RecipientEmail: recipientEmail,
		Subject:        subject,
		BodyHTML:       body,
		Variables:      variables,
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/notifications/send", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notification-service returned status %d", resp.StatusCode)
	}
	return nil
}
