// Package broadcast fans published leaderboard snapshots out to subscribers.
package broadcast

import (
	"log/slog"
	"sort"
	"sync"

	"bidwatch/internal/domain/leaderboard"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 16

// Hub keeps the latest snapshot per watcher and delivers every published
// snapshot to current subscribers. Publish never blocks: a subscriber whose
// buffer is full misses that snapshot.
type Hub struct {
	mu     sync.RWMutex
	latest map[string]leaderboard.Snapshot
	subs   map[int]chan leaderboard.Snapshot
	nextID int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		latest: make(map[string]leaderboard.Snapshot),
		subs:   make(map[int]chan leaderboard.Snapshot),
	}
}

// Publish records snap as the latest for its watcher and fans it out.
func (h *Hub) Publish(snap leaderboard.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest[snap.WatcherID] = snap
	for id, ch := range h.subs {
		select {
		case ch <- snap:
		default:
			slog.Warn("broadcast_dropped", "subscriber", id, "watcher_id", snap.WatcherID)
		}
	}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(buffer int) (<-chan leaderboard.Snapshot, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan leaderboard.Snapshot, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Latest returns the most recent snapshot of a watcher.
func (h *Hub) Latest(watcherID string) (leaderboard.Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.latest[watcherID]
	return s, ok
}

// All returns the latest snapshot of every watcher, ordered by watcher id.
func (h *Hub) All() []leaderboard.Snapshot {
	h.mu.RLock()
	out := make([]leaderboard.Snapshot, 0, len(h.latest))
	for _, s := range h.latest {
		out = append(out, s)
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].WatcherID < out[j].WatcherID })
	return out
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
