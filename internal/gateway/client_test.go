package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSendSuccess(t *testing.T) {
	var gotPath, gotAuth, gotKey string
	var gotBody messageIn

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("idempotency-key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"id": "msg_2abc"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "testtoken", time.Second)
	id, err := c.Send(context.Background(), "app_123", 42, "object.created", json.RawMessage(`{"k":"v"}`))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "msg_2abc" {
		t.Errorf("confirmation id = %q, want msg_2abc", id)
	}
	if gotPath != "/api/v1/app/app_123/msg/" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer testtoken" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotKey != "webhook_events:42" {
		t.Errorf("idempotency key = %q", gotKey)
	}
	if gotBody.EventType != "object.created" || string(gotBody.Payload) != `{"k":"v"}` {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestSendClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{
			name:   "validation",
			status: http.StatusUnprocessableEntity,
			check: func(t *testing.T, err error) {
				var vErr *ValidationError
				if !errors.As(err, &vErr) {
					t.Fatalf("want *ValidationError, got %T: %v", err, err)
				}
				if vErr.StatusCode != http.StatusUnprocessableEntity {
					t.Errorf("status = %d", vErr.StatusCode)
				}
			},
		},
		{
			name:   "auth",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				var aErr *AuthError
				if !errors.As(err, &aErr) {
					t.Fatalf("want *AuthError, got %T: %v", err, err)
				}
			},
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				var sErr *StatusError
				if !errors.As(err, &sErr) {
					t.Fatalf("want *StatusError, got %T: %v", err, err)
				}
				if sErr.StatusCode != http.StatusInternalServerError {
					t.Errorf("status = %d", sErr.StatusCode)
				}
			},
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			check: func(t *testing.T, err error) {
				var sErr *StatusError
				if !errors.As(err, &sErr) {
					t.Fatalf("want *StatusError, got %T: %v", err, err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"detail": "nope"}`))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "testtoken", time.Second)
			_, err := c.Send(context.Background(), "app_123", 1, "t", json.RawMessage(`{}`))
			if err == nil {
				t.Fatal("expected error")
			}
			tt.check(t, err)
		})
	}
}

func TestSendMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "testtoken", time.Second)
	if _, err := c.Send(context.Background(), "app_123", 1, "t", json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for response without id")
	}
}

func TestIdempotencyKeyStable(t *testing.T) {
	if IdempotencyKey(7) != IdempotencyKey(7) {
		t.Error("key not stable across calls")
	}
	if IdempotencyKey(7) == IdempotencyKey(8) {
		t.Error("distinct events share a key")
	}
}
