package broadcast

import (
	"testing"

	"bidwatch/internal/domain/leaderboard"
)

// TestHub_PublishSubscribe tests delivery and latest tracking.
func TestHub_PublishSubscribe(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(4)
	defer cancel()

	h.Publish(leaderboard.Snapshot{WatcherID: "w2", Status: leaderboard.StatusActive})
	h.Publish(leaderboard.Snapshot{WatcherID: "w1", Status: leaderboard.StatusActive})
	h.Publish(leaderboard.Snapshot{WatcherID: "w2", Status: leaderboard.StatusStopped})

	for _, want := range []string{"w2", "w1", "w2"} {
		got := <-ch
		if got.WatcherID != want {
			t.Errorf("received %s, want %s", got.WatcherID, want)
		}
	}

	latest, ok := h.Latest("w2")
	if !ok || latest.Status != leaderboard.StatusStopped {
		t.Errorf("Latest(w2) = %+v, %v", latest, ok)
	}
	if _, ok := h.Latest("missing"); ok {
		t.Error("Latest reported an unknown watcher")
	}

	all := h.All()
	if len(all) != 2 || all[0].WatcherID != "w1" || all[1].WatcherID != "w2" {
		t.Errorf("All = %+v", all)
	}
}

// TestHub_SlowSubscriber tests that a full buffer never blocks Publish.
func TestHub_SlowSubscriber(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(1)
	defer cancel()

	for i := 0; i < 5; i++ {
		h.Publish(leaderboard.Snapshot{WatcherID: "w1"})
	}
	if got := len(ch); got != 1 {
		t.Errorf("buffered = %d, want 1", got)
	}
}

// TestHub_Cancel tests unsubscription.
func TestHub_Cancel(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(0)
	if h.Subscribers() != 1 {
		t.Fatalf("Subscribers = %d, want 1", h.Subscribers())
	}
	cancel()
	cancel()
	if h.Subscribers() != 0 {
		t.Errorf("Subscribers after cancel = %d", h.Subscribers())
	}
	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}
	h.Publish(leaderboard.Snapshot{WatcherID: "w1"})
}
