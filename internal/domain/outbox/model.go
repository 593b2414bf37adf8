package outbox

import (
	"errors"
	"time"
)

// Status constants for the entry lifecycle.
const (
	StatusPending  = "pending"
	StatusRetrying = "retrying"
	StatusDone     = "done"
	StatusFailed   = "failed"
)

// KindOutbidAlert is an outbid email whose first delivery failed.
const KindOutbidAlert = "outbid_alert"

// DefaultMaxAttempts bounds delivery attempts per entry.
const DefaultMaxAttempts = 5

// Domain errors.
var (
	ErrEmptyKind    = errors.New("outbox kind is required")
	ErrEmptyPayload = errors.New("outbox payload is required")
)

// Entry is one queued side effect awaiting delivery.
type Entry struct {
	ID              string
	Kind            string
	Payload         string // JSON, replayed verbatim by the executor
	Status          string
	Attempts        int
	MaxAttempts     int
	LastAttemptedAt time.Time
	CreatedAt       time.Time
	ExternalID      string // provider id once delivered
	ErrorMessage    string
}

// NewEntry creates a pending entry.
// PRE: kind and payload are non-empty
// POST: entry is valid and has no attempts
func NewEntry(id, kind, payload string, now time.Time) (Entry, error) {
	e := Entry{
		ID:          id,
		Kind:        kind,
		Payload:     payload,
		Status:      StatusPending,
		MaxAttempts: DefaultMaxAttempts,
		CreatedAt:   now,
	}
	return e, e.Validate()
}

// Validate checks the entry invariants.
func (e Entry) Validate() error {
	if e.Kind == "" {
		return ErrEmptyKind
	}
	if e.Payload == "" {
		return ErrEmptyPayload
	}
	if e.CreatedAt.IsZero() {
		return errors.New("created_at must be set")
	}
	if e.MaxAttempts <= 0 {
		return errors.New("max_attempts must be positive")
	}
	return nil
}

// IsTerminal reports whether the entry will never be attempted again.
func (e Entry) IsTerminal() bool {
	return e.Status == StatusDone || e.Status == StatusFailed
}

// Due reports whether the backoff since the last attempt has elapsed.
func (e Entry) Due(now time.Time, baseDelay, maxDelay time.Duration) bool {
	if e.IsTerminal() {
		return false
	}
	if e.LastAttemptedAt.IsZero() {
		return true
	}
	return !now.Before(e.LastAttemptedAt.Add(e.NextRetryDelay(baseDelay, maxDelay)))
}

// NextRetryDelay is 2^attempts * baseDelay, capped at maxDelay.
func (e Entry) NextRetryDelay(baseDelay, maxDelay time.Duration) time.Duration {
	if e.Attempts >= 30 {
		return maxDelay
	}
	delay := baseDelay * (1 << e.Attempts)
	if delay > maxDelay || delay <= 0 {
		return maxDelay
	}
	return delay
}

// MarkAttempt records the start of a delivery attempt.
func (e *Entry) MarkAttempt(now time.Time) {
	e.Attempts++
	e.LastAttemptedAt = now
	e.Status = StatusRetrying
}

// MarkSuccess records a delivered entry.
func (e *Entry) MarkSuccess(externalID string) {
	e.Status = StatusDone
	e.ExternalID = externalID
	e.ErrorMessage = ""
}

// MarkFailed records a failed attempt. The entry fails permanently once it
// runs out of attempts.
func (e *Entry) MarkFailed(err error) {
	e.ErrorMessage = err.Error()
	if e.Attempts >= e.MaxAttempts {
		e.Status = StatusFailed
	}
}
