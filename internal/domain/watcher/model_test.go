package watcher

import (
	"errors"
	"testing"
	"time"

	"bidwatch/internal/domain/leaderboard"
)

// TestWatcher_Validate tests the watcher invariants.
func TestWatcher_Validate(t *testing.T) {
	tests := []struct {
		name    string
		w       Watcher
		wantErr error
	}{
		{"valid", Watcher{PostURL: "https://example.com/p/1", Interval: MinInterval, State: StateStarting}, nil},
		{"empty url", Watcher{PostURL: " ", Interval: MinInterval, State: StateStarting}, ErrEmptyPostURL},
		{"interval too short", Watcher{PostURL: "u", Interval: 29 * time.Second, State: StateStarting}, ErrIntervalTooShort},
		{"unknown state", Watcher{PostURL: "u", Interval: time.Minute, State: "paused"}, ErrInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.w.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestWatcher_Transition tests the lifecycle graph.
func TestWatcher_Transition(t *testing.T) {
	tests := []struct {
		from, to string
		ok       bool
	}{
		{StateStarting, StateActive, true},
		{StateStarting, StateLoginRequired, true},
		{StateActive, StateLoginRequired, true},
		{StateLoginRequired, StateActive, true},
		{StateLoginRequired, StateLoginRequired, true},
		{StateActive, StateStopped, true},
		{StateActive, StateStarting, false},
		{StateStopped, StateActive, false},
		{StateStopped, StateStopped, false},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			w := Watcher{State: tt.from, Running: true}
			err := w.Transition(tt.to)
			if tt.ok && err != nil {
				t.Fatalf("Transition() = %v, want nil", err)
			}
			if !tt.ok {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("Transition() = %v, want ErrInvalidTransition", err)
				}
				if w.State != tt.from {
					t.Errorf("state changed on rejected transition: %s", w.State)
				}
			}
		})
	}
}

// TestWatcher_StopClearsRunning tests that a stopped watcher is not resumed.
func TestWatcher_StopClearsRunning(t *testing.T) {
	w := Watcher{State: StateActive, Running: true}
	if err := w.Transition(StateStopped); err != nil {
		t.Fatal(err)
	}
	if w.Running || !w.IsTerminal() {
		t.Errorf("got running=%v terminal=%v", w.Running, w.IsTerminal())
	}
}

// TestWatcher_SnapshotStatus tests status strings for each state.
func TestWatcher_SnapshotStatus(t *testing.T) {
	cases := map[string]string{
		StateStarting:      leaderboard.StatusActive,
		StateActive:        leaderboard.StatusActive,
		StateLoginRequired: leaderboard.StatusLoginRequired,
		StateStopped:       leaderboard.StatusStopped,
	}
	for state, want := range cases {
		w := Watcher{State: state}
		if got := w.SnapshotStatus(); got != want {
			t.Errorf("%s: got %q, want %q", state, got, want)
		}
	}
}

// TestNextDelay tests jitter bounds without sleeping.
func TestNextDelay(t *testing.T) {
	interval := 60 * time.Second
	tests := []struct {
		r    float64
		want time.Duration
	}{
		{0, 48 * time.Second},
		{0.5, 60 * time.Second},
		{0.999999, 72 * time.Second},
	}
	for _, tt := range tests {
		got := NextDelay(interval, func() float64 { return tt.r })
		if diff := got - tt.want; diff < -time.Millisecond || diff > time.Millisecond {
			t.Errorf("NextDelay(r=%v) = %v, want ~%v", tt.r, got, tt.want)
		}
	}
}

// TestPostID tests URL normalisation.
func TestPostID(t *testing.T) {
	w := Watcher{PostURL: "  https://example.com/groups/1/posts/2/ "}
	if got := w.PostID(); got != "https://example.com/groups/1/posts/2" {
		t.Errorf("PostID() = %q", got)
	}
}

// TestExtractPostNumber tests listing number detection in a seller's post body.
func TestExtractPostNumber(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{"Auction #123 ends tonight", "123"},
		{"Post 45 - vintage lot", "45"},
		{"post no. 7", "7"},
		{"โพสต์ที่ 88 ประมูล", "88"},
		{"no number here", ""},
	}
	for _, tt := range tests {
		if got := ExtractPostNumber(tt.body); got != tt.want {
			t.Errorf("ExtractPostNumber(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}
