// Package telemetry defines auth lifecycle events and the emitters that fan them out
// (Redis Streams via watermill, Kafka, OTel logs).
package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event types published by the auth service.
const (
	EventLoginSucceeded         = "login_succeeded"
	EventMFARequired            = "mfa_required"
	EventMFAVerified            = "mfa_verified"
	EventTokenRefreshed         = "token_refreshed"
	EventLoggedOut              = "logged_out"
	EventPasswordResetRequested = "password_reset_requested"
)

// Source is stamped on every event emitted by this service.
const Source = "courier-auth"

// Event is one auth lifecycle event. It never carries secrets: no passwords, token values or TOTP codes.
type Event struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	UserID    string            `json:"userId,omitempty"`
	Username  string            `json:"username,omitempty"`
	Email     string            `json:"email,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Source    string            `json:"source"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// NewEvent returns an event of the given type with ID, Source and CreatedAt set.
func NewEvent(eventType, userID, username string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		UserID:    userID,
		Username:  username,
		Source:    Source,
		CreatedAt: time.Now().UTC(),
	}
}

// EventEmitter emits auth events. Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}

// Multi fans an event out to every emitter. All emitters are attempted; errors are joined.
type Multi []EventEmitter

func (m Multi) Emit(ctx context.Context, event *Event) error {
	if event == nil {
		return nil
	}
	var errs []error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
