package model

import (
	"encoding/json"
	"time"
)

// EventStatus is the lifecycle state of a webhook event row.
type EventStatus string

const (
	StatusPending EventStatus = "pending"
	StatusSending EventStatus = "sending"
	StatusSent    EventStatus = "sent"
	StatusDead    EventStatus = "dead"
	StatusSkipped EventStatus = "skipped"
)

func (s EventStatus) String() string { return string(s) }

func (s EventStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSending, StatusSent, StatusDead, StatusSkipped:
		return true
	}
	return false
}

// Terminal reports whether a row in this status never transitions again.
func (s EventStatus) Terminal() bool {
	return s == StatusSent || s == StatusDead || s == StatusSkipped
}

// WebhookEvent is one row of the webhook_events outbox table.
type WebhookEvent struct {
	ID                     int64           `db:"id" json:"id"`
	EventType              string          `db:"event_type" json:"event_type"`
	Payload                json.RawMessage `db:"payload" json:"payload"`
	SourceKey              string          `db:"source_key" json:"source_key"` // originating bucket, routed to an application
	Status                 EventStatus     `db:"status" json:"status"`
	Attempts               int             `db:"attempts" json:"attempts"`
	NextAttemptAt          time.Time       `db:"next_attempt_at" json:"next_attempt_at"`
	Error                  *string         `db:"error" json:"error,omitempty"`
	SentAt                 *time.Time      `db:"sent_at" json:"sent_at,omitempty"`
	DeliveryConfirmationID *string         `db:"delivery_confirmation_id" json:"delivery_confirmation_id,omitempty"`
	CreatedAt              time.Time       `db:"created_at" json:"created_at"`
}

// ClaimedEvent is the projection returned by the batch claim: just what the
// poller needs to route, deliver and classify one event.
type ClaimedEvent struct {
	ID        int64           `db:"id"`
	EventType string          `db:"event_type"`
	Payload   json.RawMessage `db:"payload"`
	Attempts  int             `db:"attempts"`
	SourceKey string          `db:"source_key"`
}
