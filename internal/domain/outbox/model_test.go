package outbox

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// TestNewEntry tests validation of new entries.
func TestNewEntry(t *testing.T) {
	if _, err := NewEntry("o1", "", "{}", t0); !errors.Is(err, ErrEmptyKind) {
		t.Errorf("empty kind: %v", err)
	}
	if _, err := NewEntry("o1", KindOutbidAlert, "", t0); !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("empty payload: %v", err)
	}
	e, err := NewEntry("o1", KindOutbidAlert, "{}", t0)
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	if e.Status != StatusPending || e.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("entry = %+v", e)
	}
}

// TestEntry_Due tests exponential backoff between attempts.
func TestEntry_Due(t *testing.T) {
	base, max := time.Minute, 10*time.Minute
	e, _ := NewEntry("o1", KindOutbidAlert, "{}", t0)
	if !e.Due(t0, base, max) {
		t.Error("fresh entry should be due")
	}

	e.MarkAttempt(t0)
	e.MarkFailed(errors.New("smtp down"))
	tests := []struct {
		at   time.Duration
		want bool
	}{
		{time.Minute, false},
		{2 * time.Minute, true},
	}
	for _, tt := range tests {
		if got := e.Due(t0.Add(tt.at), base, max); got != tt.want {
			t.Errorf("Due(+%v) = %v, want %v", tt.at, got, tt.want)
		}
	}

	e.Attempts = 10
	if got := e.NextRetryDelay(base, max); got != max {
		t.Errorf("delay = %v, want cap %v", got, max)
	}
}

// TestEntry_Lifecycle tests that failures become terminal after the last attempt.
func TestEntry_Lifecycle(t *testing.T) {
	e, _ := NewEntry("o1", KindOutbidAlert, "{}", t0)
	e.MaxAttempts = 2

	e.MarkAttempt(t0)
	e.MarkFailed(errors.New("first"))
	if e.Status != StatusRetrying || e.IsTerminal() {
		t.Errorf("after first failure: %s", e.Status)
	}
	e.MarkAttempt(t0)
	e.MarkFailed(errors.New("second"))
	if e.Status != StatusFailed || !e.IsTerminal() || e.ErrorMessage != "second" {
		t.Errorf("after last failure: %+v", e)
	}
	if e.Due(t0.Add(time.Hour), time.Minute, time.Hour) {
		t.Error("failed entry must not be due")
	}

	d, _ := NewEntry("o2", KindOutbidAlert, "{}", t0)
	d.MarkAttempt(t0)
	d.MarkSuccess("msg-1")
	if !d.IsTerminal() || d.ExternalID != "msg-1" {
		t.Errorf("delivered entry = %+v", d)
	}
}
