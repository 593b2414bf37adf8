package orchestrators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"bidwatch/internal/adapters/email"
	"bidwatch/internal/domain/leaderboard"
	"bidwatch/internal/domain/outbox"
)

// alertRenderer converts alert Markdown to HTML. Raw HTML in scraped names
// is escaped because WithUnsafe is not set.
var alertRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// OutbidNotifier emails the configured recipients when an item they were
// leading is taken by someone else. It remembers the previous leadership per
// watcher; the first snapshot of a watcher only primes that memory.
type OutbidNotifier struct {
	sender email.Sender
	to     []string

	// optional retry queue for failed sends
	queue      OutboxStore
	generateID func() string
	now        func() time.Time

	mu       sync.Mutex
	previous map[string][]leaderboard.Entry
}

// NewOutbidNotifier creates a notifier. With no recipients it never sends.
func NewOutbidNotifier(sender email.Sender, to []string) *OutbidNotifier {
	return &OutbidNotifier{
		sender:   sender,
		to:       to,
		previous: make(map[string][]leaderboard.Entry),
	}
}

// WithRetryQueue makes failed sends land in store for the outbox worker.
func (n *OutbidNotifier) WithRetryQueue(store OutboxStore, generateID func() string, now func() time.Time) *OutbidNotifier {
	n.queue = store
	n.generateID = generateID
	n.now = now
	return n
}

// Observe compares snap to the last snapshot of the same watcher and sends an
// alert for every item whose lead was lost.
// PRE: snap.WatcherID is non-empty
// POST: failures are logged, never returned
func (n *OutbidNotifier) Observe(ctx context.Context, snap leaderboard.Snapshot) {
	n.mu.Lock()
	prev, seen := n.previous[snap.WatcherID]
	n.previous[snap.WatcherID] = snap.Items
	n.mu.Unlock()

	if !seen || len(n.to) == 0 {
		return
	}
	lost := LostLeads(prev, snap.Items)
	if len(lost) == 0 {
		return
	}

	subject, md := RenderOutbidAlert(snap, lost)
	var html bytes.Buffer
	if err := alertRenderer.Convert([]byte(md), &html); err != nil {
		slog.Warn("outbid_alert_render_failed", "watcher_id", snap.WatcherID, "error", err)
		return
	}
	req := email.SendRequest{
		To:      n.to,
		Subject: subject,
		HTML:    html.String(),
		Text:    md,
	}
	if _, err := n.sender.Send(ctx, req); err != nil {
		slog.Warn("outbid_alert_failed", "watcher_id", snap.WatcherID, "error", err)
		n.enqueue(ctx, snap.WatcherID, req)
		return
	}
	slog.Info("outbid_alert_sent", "watcher_id", snap.WatcherID, "items", len(lost))
}

func (n *OutbidNotifier) enqueue(ctx context.Context, watcherID string, req email.SendRequest) {
	if n.queue == nil {
		return
	}
	payload, err := json.Marshal(alertPayload{To: req.To, Subject: req.Subject, HTML: req.HTML, Text: req.Text})
	if err != nil {
		slog.Warn("outbid_alert_queue_failed", "watcher_id", watcherID, "error", err)
		return
	}
	entry, err := outbox.NewEntry(n.generateID(), outbox.KindOutbidAlert, string(payload), n.now())
	if err == nil {
		err = n.queue.Save(ctx, entry)
	}
	if err != nil {
		slog.Warn("outbid_alert_queue_failed", "watcher_id", watcherID, "error", err)
		return
	}
	slog.Info("outbid_alert_queued", "watcher_id", watcherID, "entry_id", entry.ID)
}

// LostLeads returns entries of curr that were mine in prev and are no longer mine.
func LostLeads(prev, curr []leaderboard.Entry) []leaderboard.Entry {
	var lost []leaderboard.Entry
	for _, e := range curr {
		if e.IsMine || !e.EverParticipatedMine {
			continue
		}
		if before, ok := leaderboard.Find(prev, e.ItemNumber); ok && before.IsMine {
			lost = append(lost, e)
		}
	}
	return lost
}

// RenderOutbidAlert builds the subject and Markdown body of an outbid alert.
func RenderOutbidAlert(snap leaderboard.Snapshot, lost []leaderboard.Entry) (string, string) {
	post := snap.PostURL
	if snap.PostNumber != "" {
		post = "#" + snap.PostNumber
	}
	subject := fmt.Sprintf("Outbid on %d item(s) in %s", len(lost), post)

	var b strings.Builder
	fmt.Fprintf(&b, "## Outbid in %s\n\n", post)
	for _, e := range lost {
		fmt.Fprintf(&b, "- **Item %d**: %s now leads at %s\n",
			e.ItemNumber, e.Leader.BidderName, e.Leader.Amount.String())
	}
	fmt.Fprintf(&b, "\n[Open post](%s)\n", snap.PostURL)
	return subject, b.String()
}
