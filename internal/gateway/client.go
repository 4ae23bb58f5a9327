package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Sender delivers one event to a destination application and returns the
// gateway's confirmation ID for the created message.
type Sender interface {
	Send(ctx context.Context, appID string, eventID int64, eventType string, payload json.RawMessage) (string, error)
}

// ValidationError means the gateway rejected the request body. Retrying the
// same payload can never succeed.
type ValidationError struct {
	StatusCode int
	Detail     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("gateway validation error (status=%d): %s", e.StatusCode, e.Detail)
}

// AuthError means the gateway rejected our credentials. This is a fault of
// the whole process, not of the event being delivered.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("gateway rejected credentials (status=%d)", e.StatusCode)
}

// StatusError is any other non-2xx response; callers treat it as transient.
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway error (status=%d): %s", e.StatusCode, e.Detail)
}

// Client talks to the webhook distribution gateway's message-create API.
type Client struct {
	baseURL   string
	authToken string
	client    *http.Client
}

func NewClient(baseURL, authToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		client:    &http.Client{Timeout: timeout},
	}
}

type messageIn struct {
	EventType string          `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
}

type messageOut struct {
	ID string `json:"id"`
}

// IdempotencyKey derives the stable deduplication key for an event. It only
// depends on the row ID, so every retry of the same event carries the same
// key and the gateway can collapse duplicates.
func IdempotencyKey(eventID int64) string {
	return fmt.Sprintf("webhook_events:%d", eventID)
}

// Send posts one event to the given application and returns the confirmation
// ID. Failures come back as *ValidationError, *AuthError or *StatusError
// depending on the response; transport errors are returned as-is.
func (c *Client) Send(ctx context.Context, appID string, eventID int64, eventType string, payload json.RawMessage) (string, error) {
	body, err := json.Marshal(messageIn{EventType: eventType, Payload: payload})
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/app/%s/msg/", c.baseURL, appID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.authToken)
	req.Header.Set("idempotency-key", IdempotencyKey(eventID))

	res, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		detail := readDetail(res.Body)
		switch res.StatusCode {
		case http.StatusUnprocessableEntity:
			return "", &ValidationError{StatusCode: res.StatusCode, Detail: detail}
		case http.StatusUnauthorized:
			return "", &AuthError{StatusCode: res.StatusCode}
		default:
			return "", &StatusError{StatusCode: res.StatusCode, Detail: detail}
		}
	}

	var out messageOut
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode gateway response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("gateway response missing message id")
	}

	return out.ID, nil
}

// readDetail captures a bounded slice of an error response body.
func readDetail(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 1024))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
