package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"bidwatch/internal/domain/watcher"
)

// SessionFactory opens a fresh page session for one watcher.
type SessionFactory func(ctx context.Context) (PageSession, error)

// WatcherStoreForManager defines the watcher store interface needed by the manager.
type WatcherStoreForManager interface {
	WatcherStoreForRunner
	GetByID(ctx context.Context, id string) (watcher.Watcher, error)
	List(ctx context.Context) ([]watcher.Watcher, error)
	ListRunning(ctx context.Context) ([]watcher.Watcher, error)
}

// WatcherManagerDeps holds dependencies for a WatcherManager.
type WatcherManagerDeps struct {
	WatcherStore WatcherStoreForManager
	NewSession   SessionFactory
	// Runner is the template for every runner; Session and WatcherStore are
	// filled in per watcher.
	Runner          WatcherRunnerDeps
	MaxWatchers     int           // defaults to watcher.MaxConcurrent
	DefaultInterval time.Duration // defaults to watcher.DefaultInterval
	GenerateID      func() string
	Now             func() time.Time
}

// StartWatcherInput carries input for starting a watcher.
type StartWatcherInput struct {
	PostURL  string
	MyName   string
	Interval time.Duration // zero selects the manager's default interval
}

type runningWatcher struct {
	postID   string
	runner   *WatcherRunner
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func (rw *runningWatcher) requestStop() {
	rw.stopOnce.Do(func() { close(rw.stopCh) })
}

// WatcherManager is the process-wide registry of running watchers. It caps
// concurrency and allows at most one running watcher per post.
type WatcherManager struct {
	deps WatcherManagerDeps
	ctx  context.Context // process lifetime; cancelling it suspends every loop

	mu      sync.Mutex
	running map[string]*runningWatcher
	wg      sync.WaitGroup
}

// NewWatcherManager creates a manager whose loops live until ctx is cancelled.
// PRE: deps.WatcherStore and deps.NewSession are set
// POST: no watchers are running
func NewWatcherManager(ctx context.Context, deps WatcherManagerDeps) *WatcherManager {
	if deps.MaxWatchers <= 0 {
		deps.MaxWatchers = watcher.MaxConcurrent
	}
	if deps.DefaultInterval <= 0 {
		deps.DefaultInterval = watcher.DefaultInterval
	}
	return &WatcherManager{
		deps:    deps,
		ctx:     ctx,
		running: make(map[string]*runningWatcher),
	}
}

// Start creates and launches a watcher for a post.
// PRE: input.PostURL is non-empty
// POST: the watcher is saved in Starting state and its loop is running
func (m *WatcherManager) Start(ctx context.Context, input StartWatcherInput) (watcher.Watcher, error) {
	interval := input.Interval
	if interval == 0 {
		interval = m.deps.DefaultInterval
	}
	w := watcher.Watcher{
		ID:        m.deps.GenerateID(),
		PostURL:   strings.TrimSpace(input.PostURL),
		MyName:    strings.TrimSpace(input.MyName),
		Interval:  interval,
		State:     watcher.StateStarting,
		Running:   true,
		CreatedAt: m.deps.Now(),
	}
	if err := w.Validate(); err != nil {
		return watcher.Watcher{}, err
	}

	rw, err := m.reserve(w)
	if err != nil {
		return watcher.Watcher{}, err
	}
	if err := m.deps.WatcherStore.Save(ctx, w); err != nil {
		m.release(w.ID, rw)
		return watcher.Watcher{}, fmt.Errorf("save watcher: %w", err)
	}
	if err := m.launch(ctx, w, rw); err != nil {
		return watcher.Watcher{}, err
	}

	slog.Info("watcher_event", "event", "watcher_created", "watcher_id", w.ID, "post_url", w.PostURL)
	return w, nil
}

// reserve claims a concurrency slot for w.
func (m *WatcherManager) reserve(w watcher.Watcher) (*runningWatcher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	postID := w.PostID()
	for _, rw := range m.running {
		if rw.postID == postID {
			return nil, watcher.ErrWatcherExists
		}
	}
	if len(m.running) >= m.deps.MaxWatchers {
		return nil, watcher.ErrWatcherLimit
	}
	rw := &runningWatcher{
		postID: postID,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	m.running[w.ID] = rw
	return rw, nil
}

func (m *WatcherManager) release(id string, rw *runningWatcher) {
	m.mu.Lock()
	if m.running[id] == rw {
		delete(m.running, id)
	}
	m.mu.Unlock()
	close(rw.done)
}

// launch opens a session and starts the watcher loop.
func (m *WatcherManager) launch(ctx context.Context, w watcher.Watcher, rw *runningWatcher) error {
	session, err := m.deps.NewSession(ctx)
	if err != nil {
		m.release(w.ID, rw)
		if setErr := m.deps.WatcherStore.SetRunning(ctx, w.ID, false); setErr != nil {
			slog.Warn("watcher_set_running_failed", "watcher_id", w.ID, "error", setErr)
		}
		return fmt.Errorf("open session: %w", err)
	}

	deps := m.deps.Runner
	deps.Session = session
	deps.WatcherStore = m.deps.WatcherStore
	runner := NewWatcherRunner(w, deps)

	m.mu.Lock()
	rw.runner = runner
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			if m.running[w.ID] == rw {
				delete(m.running, w.ID)
			}
			m.mu.Unlock()
			close(rw.done)
		}()
		runner.Run(m.ctx, rw.stopCh)
	}()
	return nil
}

// Stop requests an explicit stop and waits for the loop to finish its
// current tick. The watcher ends in Stopped and is never resumed.
// PRE: id is non-empty
// POST: returns watcher.ErrWatcherNotFound for unknown ids
func (m *WatcherManager) Stop(ctx context.Context, id string) error {
	m.mu.Lock()
	rw, ok := m.running[id]
	m.mu.Unlock()

	if !ok {
		return m.stopIdle(ctx, id)
	}

	rw.requestStop()
	select {
	case <-rw.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stopIdle marks a persisted watcher without a live loop as Stopped.
func (m *WatcherManager) stopIdle(ctx context.Context, id string) error {
	w, err := m.deps.WatcherStore.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if w.IsTerminal() {
		return nil
	}
	if err := w.Transition(watcher.StateStopped); err != nil {
		return err
	}
	return m.deps.WatcherStore.Save(ctx, w)
}

// List returns every persisted watcher, with live state for running ones.
func (m *WatcherManager) List(ctx context.Context) ([]watcher.Watcher, error) {
	list, err := m.deps.WatcherStore.List(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range list {
		if rw, ok := m.running[w.ID]; ok && rw.runner != nil {
			list[i] = rw.runner.Watcher()
		}
	}
	return list, nil
}

// Active returns the number of watchers holding a concurrency slot.
func (m *WatcherManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

// Resume relaunches watchers that were running when the process last exited.
// Watchers beyond the concurrency cap are left for a later resume.
// POST: returns the number of watchers launched
func (m *WatcherManager) Resume(ctx context.Context) (int, error) {
	list, err := m.deps.WatcherStore.ListRunning(ctx)
	if err != nil {
		return 0, fmt.Errorf("list running watchers: %w", err)
	}
	launched := 0
	for _, w := range list {
		rw, err := m.reserve(w)
		if err != nil {
			slog.Warn("watcher_resume_skipped", "watcher_id", w.ID, "error", err)
			continue
		}
		if err := m.launch(ctx, w, rw); err != nil {
			slog.Error("watcher_resume_failed", "watcher_id", w.ID, "error", err)
			continue
		}
		launched++
	}
	if launched > 0 {
		slog.Info("watchers_resumed", "count", launched)
	}
	return launched, nil
}

// Wait blocks until every loop has exited. Loops exit after Stop or when the
// manager's context is cancelled.
func (m *WatcherManager) Wait() {
	m.wg.Wait()
}
