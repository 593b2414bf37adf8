package watcher

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"bidwatch/internal/domain/leaderboard"
)

// State constants for the watcher lifecycle.
const (
	StateStarting      = "starting"
	StateActive        = "active"
	StateLoginRequired = "login_required"
	StateStopped       = "stopped"
)

// Scheduling constants.
const (
	MinInterval     = 30 * time.Second
	DefaultInterval = 60 * time.Second
	DefaultBackoff  = 10 * time.Second
	MaxConcurrent   = 20
	JitterFraction  = 0.2
)

// Domain errors
var (
	ErrEmptyPostURL      = errors.New("watcher post url cannot be empty")
	ErrIntervalTooShort  = errors.New("watcher interval must be at least 30s")
	ErrInvalidState      = errors.New("invalid watcher state")
	ErrInvalidTransition = errors.New("invalid watcher state transition")
	ErrWatcherLimit      = errors.New("maximum number of active watchers reached")
	ErrWatcherExists     = errors.New("a watcher is already running for this post")
	ErrWatcherNotFound   = errors.New("watcher not found")
	ErrSessionInvalid    = errors.New("session invalid: login required")
)

// allowed lists legal state transitions. Stopped is terminal.
var allowed = map[string][]string{
	StateStarting:      {StateActive, StateLoginRequired, StateStopped},
	StateActive:        {StateLoginRequired, StateStopped},
	StateLoginRequired: {StateActive, StateStopped},
	StateStopped:       nil,
}

// Watcher is a monitoring session bound to one post.
type Watcher struct {
	ID         string
	PostURL    string
	MyName     string
	Interval   time.Duration
	State      string // starting, active, login_required, stopped
	PostNumber string // listing number shown by the seller, "" until known
	Running    bool   // persisted so a restarted process can resume
	LastTickAt time.Time
	CreatedAt  time.Time
}

// Validate checks the watcher invariants.
// PRE: Watcher struct is populated
// POST: Returns nil if valid, error otherwise
func (w *Watcher) Validate() error {
	if strings.TrimSpace(w.PostURL) == "" {
		return ErrEmptyPostURL
	}
	if w.Interval < MinInterval {
		return ErrIntervalTooShort
	}
	if _, ok := allowed[w.State]; !ok {
		return ErrInvalidState
	}
	return nil
}

// PostID returns the store key for the watched post.
func (w *Watcher) PostID() string {
	return PostIDFromURL(w.PostURL)
}

// PostIDFromURL normalises a post URL into its store key.
func PostIDFromURL(postURL string) string {
	return strings.TrimRight(strings.TrimSpace(postURL), "/")
}

// CanTransition reports whether moving from the current state to next is legal.
// Staying in the same non-terminal state is always allowed.
func (w *Watcher) CanTransition(next string) bool {
	if w.State == next {
		return w.State != StateStopped
	}
	for _, s := range allowed[w.State] {
		if s == next {
			return true
		}
	}
	return false
}

// Transition moves the watcher to next.
// PRE: next is a known state
// POST: State updated; Running cleared when Stopped
func (w *Watcher) Transition(next string) error {
	if !w.CanTransition(next) {
		return ErrInvalidTransition
	}
	w.State = next
	if next == StateStopped {
		w.Running = false
	}
	return nil
}

// IsTerminal reports whether the watcher can never run again.
func (w *Watcher) IsTerminal() bool {
	return w.State == StateStopped
}

// SnapshotStatus maps the lifecycle state onto the published snapshot status.
func (w *Watcher) SnapshotStatus() string {
	switch w.State {
	case StateLoginRequired:
		return leaderboard.StatusLoginRequired
	case StateStopped:
		return leaderboard.StatusStopped
	default:
		return leaderboard.StatusActive
	}
}

// NextDelay returns interval scaled by a factor in [1-JitterFraction, 1+JitterFraction].
// r must return a value in [0, 1); it is injected so the timing contract can be
// tested without real time passing.
func NextDelay(interval time.Duration, r func() float64) time.Duration {
	factor := 1 - JitterFraction + 2*JitterFraction*r()
	return time.Duration(float64(interval) * factor)
}

var postNumberPattern = regexp.MustCompile(`(?i)(?:#|\bpost\s*(?:no\.?|#)?\s*|โพสต์\s*(?:ที่)?\s*)(\d{1,6})\b`)

// ExtractPostNumber finds the listing number a seller writes in the post body,
// e.g. "#123" or "Post 123". Returns "" when none is present.
func ExtractPostNumber(body string) string {
	m := postNumberPattern.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return m[1]
}
