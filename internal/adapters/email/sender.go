package email

import (
	"context"
	"time"
)

// SendRequest contains the data needed to deliver one alert email.
type SendRequest struct {
	To      []string // Recipient addresses
	From    string   // Sender address; empty uses the sender's default
	Subject string
	HTML    string // HTML body
	Text    string // Plain-text alternative, usually the Markdown source
}

// SendResult contains the response from the email provider.
type SendResult struct {
	MessageID string    // Provider's message ID for tracking
	SentAt    time.Time // When the send was accepted
}

// Sender delivers alert emails via an external provider.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}

// New returns a Resend-backed sender when apiKey is set and a logging no-op otherwise.
func New(apiKey, from string) Sender {
	if apiKey == "" {
		return NewNoopSender()
	}
	return NewResendSender(apiKey, from)
}
