package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bidwatch/internal/domain/bid"
	"bidwatch/internal/domain/leaderboard"
	"bidwatch/internal/domain/watcher"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testNow() time.Time { return testTime }

// seqIDs returns a generator producing "id-1", "id-2", ...
func seqIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

// mockBidStore is an in-memory bid store keyed like the real unique constraint.
type mockBidStore struct {
	mu      sync.Mutex
	records []bid.Record
	failErr error
}

func (m *mockBidStore) Insert(_ context.Context, r bid.Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return false, m.failErr
	}
	for _, existing := range m.records {
		if existing.Bid.Key() == r.Bid.Key() {
			return false, nil
		}
	}
	m.records = append(m.records, r)
	return true, nil
}

func (m *mockBidStore) DeletePlaceholder(_ context.Context, postID string, item int, amount decimal.Decimal) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []bid.Record
	var removed int64
	for _, r := range m.records {
		if r.Bid.PostID == postID && r.Bid.ItemNumber == item && r.Bid.Amount.Equal(amount) && bid.IsPlaceholder(r.Bid.BidderName) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return removed, nil
}

func (m *mockBidStore) HasKnownBidder(_ context.Context, postID string, item int, amount decimal.Decimal) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return false, m.failErr
	}
	for _, r := range m.records {
		if r.Bid.PostID == postID && r.Bid.ItemNumber == item && r.Bid.Amount.Equal(amount) && r.Bid.HasKnownBidder() {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockBidStore) ListByPost(_ context.Context, postID string) ([]bid.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	var out []bid.Record
	for _, r := range m.records {
		if r.Bid.PostID == postID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockBidStore) SetWithdrawn(_ context.Context, id string, withdrawn bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].ID == id {
			m.records[i].Withdrawn = withdrawn
			return nil
		}
	}
	return errors.New("not found")
}

func (m *mockBidStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// mockWatcherStore keeps watchers in a map.
type mockWatcherStore struct {
	mu       sync.Mutex
	watchers map[string]watcher.Watcher
}

func newMockWatcherStore() *mockWatcherStore {
	return &mockWatcherStore{watchers: make(map[string]watcher.Watcher)}
}

func (m *mockWatcherStore) Save(_ context.Context, w watcher.Watcher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers[w.ID] = w
	return nil
}

func (m *mockWatcherStore) GetByID(_ context.Context, id string) (watcher.Watcher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.watchers[id]
	if !ok {
		return watcher.Watcher{}, watcher.ErrWatcherNotFound
	}
	return w, nil
}

func (m *mockWatcherStore) List(_ context.Context) ([]watcher.Watcher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []watcher.Watcher
	for _, w := range m.watchers {
		out = append(out, w)
	}
	return out, nil
}

func (m *mockWatcherStore) ListRunning(_ context.Context) ([]watcher.Watcher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []watcher.Watcher
	for _, w := range m.watchers {
		if w.Running && w.State != watcher.StateStopped {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *mockWatcherStore) SetRunning(_ context.Context, id string, running bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.watchers[id]
	if !ok {
		return watcher.ErrWatcherNotFound
	}
	w.Running = running
	m.watchers[id] = w
	return nil
}

func (m *mockWatcherStore) UpdateTimestamp(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.watchers[id]
	if !ok {
		return watcher.ErrWatcherNotFound
	}
	w.LastTickAt = at
	m.watchers[id] = w
	return nil
}

func (m *mockWatcherStore) get(id string) watcher.Watcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watchers[id]
}

// mockPublisher records published snapshots.
type mockPublisher struct {
	mu        sync.Mutex
	snapshots []leaderboard.Snapshot
}

func (m *mockPublisher) Publish(s leaderboard.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, s)
}

func (m *mockPublisher) last() leaderboard.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.snapshots) == 0 {
		return leaderboard.Snapshot{}
	}
	return m.snapshots[len(m.snapshots)-1]
}

func (m *mockPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snapshots)
}

// mockRecognizer returns canned OCR text per image.
type mockRecognizer struct {
	text  map[string]string
	calls int
}

func (m *mockRecognizer) Recognize(_ context.Context, imageRef string) string {
	m.calls++
	return m.text[imageRef]
}
