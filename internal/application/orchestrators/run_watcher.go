package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"bidwatch/internal/domain/activity"
	"bidwatch/internal/domain/bid"
	"bidwatch/internal/domain/bidparse"
	"bidwatch/internal/domain/comment"
	"bidwatch/internal/domain/leaderboard"
	"bidwatch/internal/domain/watcher"
)

// Render is one extraction pass over the rendered post.
type Render struct {
	Blocks     []comment.Block
	TimeTokens []string // every relative-time string visible in the render
	PostBody   string   // the seller's post text, used for the listing number
}

// PageSession drives a rendered post. Any method may return
// watcher.ErrSessionInvalid when the page shows a login wall.
type PageSession interface {
	Open(ctx context.Context, postURL string) (Render, error)
	Refresh(ctx context.Context) (Render, error)
	RecoverLogin(ctx context.Context) error
	Close() error
}

// BidStoreForWatcher defines the bid store interface needed by a watcher.
type BidStoreForWatcher interface {
	BidStoreForIngest
	ListByPost(ctx context.Context, postID string) ([]bid.Record, error)
}

// WatcherStoreForRunner defines the watcher store interface needed by a runner.
type WatcherStoreForRunner interface {
	Save(ctx context.Context, w watcher.Watcher) error
	SetRunning(ctx context.Context, id string, running bool) error
	UpdateTimestamp(ctx context.Context, id string, at time.Time) error
}

// SnapshotPublisher receives every published leaderboard snapshot.
type SnapshotPublisher interface {
	Publish(s leaderboard.Snapshot)
}

// SnapshotObserver reacts to published snapshots, e.g. outbid alerts.
type SnapshotObserver interface {
	Observe(ctx context.Context, s leaderboard.Snapshot)
}

// TickRecorder records poll cycle durations.
type TickRecorder interface {
	RecordTick(postURL string, start time.Time)
}

// WatcherRunnerDeps holds dependencies for a WatcherRunner.
type WatcherRunnerDeps struct {
	Session      PageSession
	BidStore     BidStoreForWatcher
	WatcherStore WatcherStoreForRunner
	Parser       *bidparse.Parser
	Recognizer   Recognizer        // optional
	Publisher    SnapshotPublisher // optional
	Observer     SnapshotObserver  // optional
	Ticks        TickRecorder      // optional
	GenerateID   func() string
	Now          func() time.Time
	Rand         func() float64 // defaults to math/rand/v2 Float64

	InactivityMinutes int           // defaults to activity.DefaultInactivityMinutes
	Backoff           time.Duration // defaults to watcher.DefaultBackoff
}

// WatcherRunner owns one watcher's poll cycle. Ticks are strictly
// sequential: Run never starts a tick before the previous one returned.
type WatcherRunner struct {
	w      watcher.Watcher
	deps   WatcherRunnerDeps
	opened bool // the session has navigated to the post at least once
	view   atomic.Pointer[watcher.Watcher]
}

// NewWatcherRunner creates a runner for w.
// PRE: w has been validated and saved
// POST: defaults applied to unset optional deps
func NewWatcherRunner(w watcher.Watcher, deps WatcherRunnerDeps) *WatcherRunner {
	if deps.Rand == nil {
		deps.Rand = rand.Float64
	}
	if deps.InactivityMinutes <= 0 {
		deps.InactivityMinutes = activity.DefaultInactivityMinutes
	}
	if deps.Backoff <= 0 {
		deps.Backoff = watcher.DefaultBackoff
	}
	r := &WatcherRunner{w: w, deps: deps}
	r.sync()
	return r
}

// Watcher returns a copy of the runner's current watcher state.
// Safe to call from any goroutine.
func (r *WatcherRunner) Watcher() watcher.Watcher {
	return *r.view.Load()
}

// sync publishes the loop-owned watcher state to concurrent readers.
func (r *WatcherRunner) sync() {
	w := r.w
	r.view.Store(&w)
}

// Tick runs one poll cycle and reports whether the watcher reached Stopped.
// Session invalidity moves the watcher to LoginRequired and is not an error.
// Any returned error is a transient fault; the state is left unchanged.
// PRE: the watcher is not Stopped
// POST: a snapshot is published after every completed pass and on every transition
func (r *WatcherRunner) Tick(ctx context.Context) (bool, error) {
	if r.w.IsTerminal() {
		return true, nil
	}
	if r.deps.Ticks != nil {
		defer r.deps.Ticks.RecordTick(r.w.PostURL, time.Now())
	}

	render, err := r.acquire(ctx)
	if errors.Is(err, watcher.ErrSessionInvalid) {
		return false, r.enterLoginRequired(ctx, err)
	}
	if err != nil {
		return false, err
	}

	bids := ExecuteExtractBids(ctx, r.w.PostID(), render.Blocks, ExtractBidsDeps{
		Parser:     r.deps.Parser,
		Recognizer: r.deps.Recognizer,
	})
	sum, err := ExecuteIngestBids(ctx, bids, IngestBidDeps{
		BidStore:   r.deps.BidStore,
		GenerateID: r.deps.GenerateID,
		Now:        r.deps.Now,
	})
	if err != nil {
		return false, fmt.Errorf("ingest bids: %w", err)
	}

	if n := watcher.ExtractPostNumber(render.PostBody); n != "" {
		r.w.PostNumber = n
	}
	prev := r.w.State
	if err := r.w.Transition(watcher.StateActive); err != nil {
		return false, err
	}
	r.w.LastTickAt = r.deps.Now()
	r.sync()
	if err := r.deps.WatcherStore.Save(ctx, r.w); err != nil {
		return false, fmt.Errorf("save watcher: %w", err)
	}
	if prev != watcher.StateActive {
		slog.Info("watcher_state_changed", "watcher_id", r.w.ID, "from", prev, "to", r.w.State)
	}

	if err := r.publish(ctx); err != nil {
		return false, err
	}

	minAge := activity.MinimumAgeMinutes(render.TimeTokens)
	slog.Debug("watcher_tick",
		"watcher_id", r.w.ID,
		"blocks", len(render.Blocks),
		"candidates", len(bids),
		"new_bids", sum.New,
		"duplicates", sum.Duplicates,
		"min_age_minutes", minAge,
	)

	if activity.ShouldStop(minAge, r.deps.InactivityMinutes) {
		slog.Info("watcher_inactive", "watcher_id", r.w.ID, "min_age_minutes", minAge, "threshold_minutes", r.deps.InactivityMinutes)
		return true, r.Stop(ctx)
	}
	return false, nil
}

// acquire produces the render for the current state.
func (r *WatcherRunner) acquire(ctx context.Context) (Render, error) {
	if r.w.State == watcher.StateLoginRequired {
		if err := r.deps.Session.RecoverLogin(ctx); err != nil {
			if errors.Is(err, watcher.ErrSessionInvalid) {
				return Render{}, err
			}
			return Render{}, fmt.Errorf("%w: %v", watcher.ErrSessionInvalid, err)
		}
	}
	if !r.opened {
		render, err := r.deps.Session.Open(ctx, r.w.PostURL)
		if err == nil {
			r.opened = true
		}
		return render, err
	}
	return r.deps.Session.Refresh(ctx)
}

// enterLoginRequired records a session failure; the next tick retries recovery.
func (r *WatcherRunner) enterLoginRequired(ctx context.Context, cause error) error {
	prev := r.w.State
	if err := r.w.Transition(watcher.StateLoginRequired); err != nil {
		return err
	}
	r.sync()
	if prev != r.w.State {
		slog.Warn("watcher_login_required", "watcher_id", r.w.ID, "post_url", r.w.PostURL, "error", cause)
		if err := r.deps.WatcherStore.Save(ctx, r.w); err != nil {
			return fmt.Errorf("save watcher: %w", err)
		}
	} else {
		slog.Debug("watcher_login_recovery_failed", "watcher_id", r.w.ID, "error", cause)
	}
	return r.publish(ctx)
}

// Stop moves the watcher to Stopped, persists it, and publishes a final snapshot.
// PRE: none
// POST: the watcher is terminal and not marked running
func (r *WatcherRunner) Stop(ctx context.Context) error {
	if r.w.IsTerminal() {
		return nil
	}
	if err := r.w.Transition(watcher.StateStopped); err != nil {
		return err
	}
	r.sync()
	if err := r.deps.WatcherStore.Save(ctx, r.w); err != nil {
		return fmt.Errorf("save watcher: %w", err)
	}
	slog.Info("watcher_stopped", "watcher_id", r.w.ID, "post_url", r.w.PostURL)
	return r.publish(ctx)
}

// publish recomputes the leaderboard from the store and emits a snapshot.
func (r *WatcherRunner) publish(ctx context.Context) error {
	records, err := r.deps.BidStore.ListByPost(ctx, r.w.PostID())
	if err != nil {
		return fmt.Errorf("list bids: %w", err)
	}
	snap := leaderboard.Snapshot{
		WatcherID:   r.w.ID,
		PostURL:     r.w.PostURL,
		PostNumber:  r.w.PostNumber,
		Items:       leaderboard.Aggregate(records, r.w.MyName),
		LastUpdated: r.deps.Now(),
		Status:      r.w.SnapshotStatus(),
	}
	if r.deps.Publisher != nil {
		r.deps.Publisher.Publish(snap)
	}
	if r.deps.Observer != nil {
		r.deps.Observer.Observe(ctx, snap)
	}
	if err := r.deps.WatcherStore.UpdateTimestamp(ctx, r.w.ID, snap.LastUpdated); err != nil {
		slog.Warn("watcher_timestamp_failed", "watcher_id", r.w.ID, "error", err)
	}
	return nil
}

// Run drives ticks until the watcher stops, stopCh is closed, or ctx ends.
// A stop request is honored only between ticks; an in-flight pass always
// completes. Closing stopCh stops the watcher for good. Cancelling ctx leaves
// it marked running so it is resumed on the next start.
// PRE: the runner is not already running
// POST: the session is closed
func (r *WatcherRunner) Run(ctx context.Context, stopCh <-chan struct{}) {
	defer func() {
		if err := r.deps.Session.Close(); err != nil {
			slog.Warn("watcher_session_close_failed", "watcher_id", r.w.ID, "error", err)
		}
	}()

	tickCtx := context.WithoutCancel(ctx)
	if err := r.deps.WatcherStore.SetRunning(tickCtx, r.w.ID, true); err != nil {
		slog.Warn("watcher_set_running_failed", "watcher_id", r.w.ID, "error", err)
	}
	r.w.Running = true
	r.sync()
	slog.Info("watcher_started", "watcher_id", r.w.ID, "post_url", r.w.PostURL, "interval", r.w.Interval)

	for {
		select {
		case <-stopCh:
			r.stopRequested(tickCtx)
			return
		case <-ctx.Done():
			slog.Info("watcher_suspended", "watcher_id", r.w.ID)
			return
		default:
		}

		delay := watcher.NextDelay(r.w.Interval, r.deps.Rand)
		stopped, err := r.Tick(tickCtx)
		if stopped {
			if err != nil {
				slog.Error("watcher_stop_failed", "watcher_id", r.w.ID, "error", err)
			}
			return
		}
		if err != nil {
			slog.Error("watcher_tick_failed", "watcher_id", r.w.ID, "state", r.w.State, "error", err)
			delay = r.deps.Backoff
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-stopCh:
			timer.Stop()
			r.stopRequested(tickCtx)
			return
		case <-ctx.Done():
			timer.Stop()
			slog.Info("watcher_suspended", "watcher_id", r.w.ID)
			return
		}
	}
}

func (r *WatcherRunner) stopRequested(ctx context.Context) {
	if err := r.Stop(ctx); err != nil {
		slog.Error("watcher_stop_failed", "watcher_id", r.w.ID, "error", err)
	}
}
