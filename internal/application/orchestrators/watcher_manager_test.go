package orchestrators

import (
	"context"
	"errors"
	"testing"
	"time"

	"bidwatch/internal/domain/bidparse"
	"bidwatch/internal/domain/watcher"
)

type managerFixture struct {
	watchers *mockWatcherStore
	pub      *mockPublisher
	manager  *WatcherManager
	cancel   context.CancelFunc
}

func newManagerFixture(t *testing.T, maxWatchers int, factory SessionFactory) *managerFixture {
	t.Helper()
	return newManagerFixtureWithInterval(t, maxWatchers, 0, factory)
}

func newManagerFixtureWithInterval(t *testing.T, maxWatchers int, interval time.Duration, factory SessionFactory) *managerFixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	f := &managerFixture{
		watchers: newMockWatcherStore(),
		pub:      &mockPublisher{},
		cancel:   cancel,
	}
	if factory == nil {
		factory = func(context.Context) (PageSession, error) {
			return newMockSession(sessionStep{render: bobRender("1m")}), nil
		}
	}
	f.manager = NewWatcherManager(ctx, WatcherManagerDeps{
		WatcherStore: f.watchers,
		NewSession:   factory,
		Runner: WatcherRunnerDeps{
			BidStore:   &mockBidStore{},
			Parser:     bidparse.New(nil),
			Publisher:  f.pub,
			GenerateID: seqIDs(),
			Now:        testNow,
		},
		MaxWatchers:     maxWatchers,
		DefaultInterval: interval,
		GenerateID:      seqIDs(),
		Now:             testNow,
	})
	t.Cleanup(func() {
		cancel()
		f.manager.Wait()
	})
	return f
}

// TestWatcherManager_StartAndStop tests the full lifecycle through the manager.
func TestWatcherManager_StartAndStop(t *testing.T) {
	f := newManagerFixture(t, 0, nil)
	ctx := context.Background()

	w, err := f.manager.Start(ctx, StartWatcherInput{PostURL: " https://example.com/posts/9 ", MyName: "Bob"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if w.Interval != watcher.DefaultInterval {
		t.Errorf("interval = %v, want default", w.Interval)
	}
	if w.PostURL != "https://example.com/posts/9" {
		t.Errorf("post url = %q, want trimmed", w.PostURL)
	}
	waitFor(t, "first snapshot", func() bool { return f.pub.count() >= 1 })
	if got := f.manager.Active(); got != 1 {
		t.Errorf("Active = %d, want 1", got)
	}

	list, err := f.manager.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("List = (%d, %v), want one watcher", len(list), err)
	}
	if list[0].State != watcher.StateActive {
		t.Errorf("listed state = %q, want active", list[0].State)
	}

	if err := f.manager.Stop(ctx, w.ID); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := f.watchers.get(w.ID); got.State != watcher.StateStopped || got.Running {
		t.Errorf("persisted = %s running=%v, want stopped", got.State, got.Running)
	}
	if got := f.manager.Active(); got != 0 {
		t.Errorf("Active after stop = %d, want 0", got)
	}
	// Stopping again is a no-op.
	if err := f.manager.Stop(ctx, w.ID); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

// TestWatcherManager_ConfiguredInterval tests that a start without an
// interval takes the manager's configured default.
func TestWatcherManager_ConfiguredInterval(t *testing.T) {
	f := newManagerFixtureWithInterval(t, 0, 45*time.Second, nil)
	ctx := context.Background()

	w, err := f.manager.Start(ctx, StartWatcherInput{PostURL: "https://example.com/posts/5"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if w.Interval != 45*time.Second {
		t.Errorf("interval = %v, want 45s", w.Interval)
	}
	if got := f.watchers.get(w.ID); got.Interval != 45*time.Second {
		t.Errorf("persisted interval = %v, want 45s", got.Interval)
	}

	explicit, err := f.manager.Start(ctx, StartWatcherInput{PostURL: "https://example.com/posts/6", Interval: 2 * time.Minute})
	if err != nil {
		t.Fatalf("Start explicit: %v", err)
	}
	if explicit.Interval != 2*time.Minute {
		t.Errorf("explicit interval = %v, want 2m", explicit.Interval)
	}
}

// TestWatcherManager_StartRejects tests the admission rules.
func TestWatcherManager_StartRejects(t *testing.T) {
	f := newManagerFixture(t, 1, nil)
	ctx := context.Background()

	if _, err := f.manager.Start(ctx, StartWatcherInput{PostURL: "https://example.com/posts/1"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	tests := []struct {
		name  string
		input StartWatcherInput
		want  error
	}{
		{"same post", StartWatcherInput{PostURL: "https://example.com/posts/1/"}, watcher.ErrWatcherExists},
		{"over the cap", StartWatcherInput{PostURL: "https://example.com/posts/2"}, watcher.ErrWatcherLimit},
		{"interval too short", StartWatcherInput{PostURL: "https://example.com/posts/3", Interval: 5 * time.Second}, watcher.ErrIntervalTooShort},
		{"empty url", StartWatcherInput{PostURL: "  "}, watcher.ErrEmptyPostURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.manager.Start(ctx, tt.input); !errors.Is(err, tt.want) {
				t.Errorf("Start error = %v, want %v", err, tt.want)
			}
		})
	}
}

// TestWatcherManager_StopUnknown tests the not-found path.
func TestWatcherManager_StopUnknown(t *testing.T) {
	f := newManagerFixture(t, 0, nil)
	if err := f.manager.Stop(context.Background(), "missing"); !errors.Is(err, watcher.ErrWatcherNotFound) {
		t.Errorf("Stop error = %v, want ErrWatcherNotFound", err)
	}
}

// TestWatcherManager_SessionFailure tests that a failed session open frees the slot.
func TestWatcherManager_SessionFailure(t *testing.T) {
	f := newManagerFixture(t, 0, func(context.Context) (PageSession, error) {
		return nil, errors.New("browser unavailable")
	})
	ctx := context.Background()

	if _, err := f.manager.Start(ctx, StartWatcherInput{PostURL: "https://example.com/posts/1"}); err == nil {
		t.Fatal("Start succeeded without a session")
	}
	if got := f.manager.Active(); got != 0 {
		t.Errorf("Active = %d, want 0", got)
	}
	list, _ := f.watchers.ListRunning(ctx)
	if len(list) != 0 {
		t.Errorf("%d watchers left marked running", len(list))
	}
}

// TestWatcherManager_Resume tests that suspended watchers are relaunched.
func TestWatcherManager_Resume(t *testing.T) {
	f := newManagerFixture(t, 0, nil)
	ctx := context.Background()

	for _, w := range []watcher.Watcher{
		{ID: "r1", PostURL: "https://example.com/posts/1", Interval: time.Minute, State: watcher.StateActive, Running: true},
		{ID: "r2", PostURL: "https://example.com/posts/2", Interval: time.Minute, State: watcher.StateLoginRequired, Running: true},
		{ID: "s1", PostURL: "https://example.com/posts/3", Interval: time.Minute, State: watcher.StateStopped},
		{ID: "i1", PostURL: "https://example.com/posts/4", Interval: time.Minute, State: watcher.StateActive},
	} {
		if err := f.watchers.Save(ctx, w); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	n, err := f.manager.Resume(ctx)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if n != 2 {
		t.Errorf("resumed %d watchers, want 2", n)
	}
	waitFor(t, "resumed snapshots", func() bool { return f.pub.count() >= 2 })

	// Shutdown suspends the loops but keeps them resumable.
	f.cancel()
	f.manager.Wait()
	for _, id := range []string{"r1", "r2"} {
		if w := f.watchers.get(id); !w.Running || w.IsTerminal() {
			t.Errorf("%s after shutdown = %s running=%v, want resumable", id, w.State, w.Running)
		}
	}
}
