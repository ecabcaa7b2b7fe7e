// Package events publishes identity lifecycle events for downstream
// consumers such as the mail sender.
package events

import (
	"context"
	"time"
)

// Event types.
const (
	TypeIdentityRegistered     = "identity.registered"
	TypeVerificationCodeIssued = "identity.verification_code_issued"
)

// Event is the envelope written to the event stream.
//
// VerificationCode is included so the delivery service can send it; the
// stream must be treated as sensitive.
type Event struct {
	ID               string    `json:"id"`
	Type             string    `json:"type"`
	IdentityID       string    `json:"identityId"`
	Email            string    `json:"email"`
	Name             string    `json:"name,omitempty"`
	VerificationCode string    `json:"verificationCode,omitempty"`
	OccurredAt       time.Time `json:"occurredAt"`
}

// Notifier hands events off for asynchronous delivery.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, Event) error { return nil }
