package orchestrators

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"bidwatch/internal/adapters/email"
	"bidwatch/internal/domain/outbox"
)

// OutboxStore defines the store interface needed to queue and retry actions.
type OutboxStore interface {
	Save(ctx context.Context, e outbox.Entry) error
	ListPending(ctx context.Context, limit int) ([]outbox.Entry, error)
}

// ActionExecutor executes one kind of queued action.
type ActionExecutor interface {
	// Execute replays payload and returns the provider's id for the result.
	Execute(ctx context.Context, payload string) (string, error)
}

// OutboxProcessorDeps holds dependencies for an OutboxProcessor.
type OutboxProcessorDeps struct {
	Store     OutboxStore
	Executors map[string]ActionExecutor // keyed by entry kind
	Now       func() time.Time
	BaseDelay time.Duration // defaults to 30s
	MaxDelay  time.Duration // defaults to 1h
	BatchSize int           // defaults to 10
}

// OutboxProcessor retries queued actions with exponential backoff.
type OutboxProcessor struct {
	deps OutboxProcessorDeps
}

// NewOutboxProcessor creates a processor with defaults applied.
func NewOutboxProcessor(deps OutboxProcessorDeps) *OutboxProcessor {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.BaseDelay <= 0 {
		deps.BaseDelay = 30 * time.Second
	}
	if deps.MaxDelay <= 0 {
		deps.MaxDelay = time.Hour
	}
	if deps.BatchSize <= 0 {
		deps.BatchSize = 10
	}
	return &OutboxProcessor{deps: deps}
}

// ProcessPending attempts every due entry once.
// POST: returns the number of entries delivered in this pass
func (p *OutboxProcessor) ProcessPending(ctx context.Context) (int, error) {
	entries, err := p.deps.Store.ListPending(ctx, p.deps.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending outbox entries: %w", err)
	}

	delivered := 0
	for _, entry := range entries {
		ok, err := p.processEntry(ctx, entry)
		if err != nil {
			slog.Error("outbox_process_failed", "entry_id", entry.ID, "kind", entry.Kind, "error", err)
			continue
		}
		if ok {
			delivered++
		}
	}
	return delivered, nil
}

func (p *OutboxProcessor) processEntry(ctx context.Context, entry outbox.Entry) (bool, error) {
	now := p.deps.Now()
	if !entry.Due(now, p.deps.BaseDelay, p.deps.MaxDelay) {
		return false, nil
	}

	entry.MarkAttempt(now)
	executor, ok := p.deps.Executors[entry.Kind]
	if !ok {
		entry.MarkFailed(fmt.Errorf("no executor registered for kind %q", entry.Kind))
		return false, p.deps.Store.Save(ctx, entry)
	}

	externalID, err := executor.Execute(ctx, entry.Payload)
	if err != nil {
		entry.MarkFailed(err)
		slog.Warn("outbox_action_failed", "entry_id", entry.ID, "attempt", entry.Attempts, "status", entry.Status, "error", err)
	} else {
		entry.MarkSuccess(externalID)
		slog.Info("outbox_action_succeeded", "entry_id", entry.ID, "kind", entry.Kind, "external_id", externalID)
	}
	return err == nil, p.deps.Store.Save(ctx, entry)
}

// Run processes the outbox every interval until ctx is cancelled.
func (p *OutboxProcessor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("outbox_worker_stopped")
			return
		case <-ticker.C:
			if _, err := p.ProcessPending(ctx); err != nil {
				slog.Error("outbox_worker_pass_failed", "error", err)
			}
		}
	}
}

// alertPayload is the queued form of an outbid email.
type alertPayload struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text"`
}

// EmailExecutor replays queued alert emails.
type EmailExecutor struct {
	Sender email.Sender
}

// Execute sends the email described by payload.
// PRE: payload is JSON produced by the outbid notifier
// POST: returns the provider message id
func (e EmailExecutor) Execute(ctx context.Context, payload string) (string, error) {
	var p alertPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return "", fmt.Errorf("unmarshal alert payload: %w", err)
	}
	res, err := e.Sender.Send(ctx, email.SendRequest{To: p.To, Subject: p.Subject, HTML: p.HTML, Text: p.Text})
	if err != nil {
		return "", err
	}
	return res.MessageID, nil
}
