// Package web serves the watcher control API.
package web

import (
	"context"
	"net/http"
	"time"

	"bidwatch/internal/adapters/http/middleware"
	"bidwatch/internal/adapters/http/perf"
	"bidwatch/internal/application/orchestrators"
	"bidwatch/internal/application/projections"
	"bidwatch/internal/domain/leaderboard"
	"bidwatch/internal/domain/watcher"
)

// WatcherControl starts, stops and lists watchers.
type WatcherControl interface {
	Start(ctx context.Context, input orchestrators.StartWatcherInput) (watcher.Watcher, error)
	Stop(ctx context.Context, id string) error
	List(ctx context.Context) ([]watcher.Watcher, error)
}

// SnapshotSource exposes published leaderboard snapshots.
type SnapshotSource interface {
	Subscribe(buffer int) (<-chan leaderboard.Snapshot, func())
	Latest(watcherID string) (leaderboard.Snapshot, bool)
	All() []leaderboard.Snapshot
}

// BidStore is the bid storage needed by the API.
type BidStore interface {
	projections.BidStore
	orchestrators.BidStoreForWithdraw
}

// Deps holds everything the API needs.
type Deps struct {
	Watchers  WatcherControl
	Snapshots SnapshotSource
	BidStore  BidStore
	Perf      *perf.Collector // optional

	MyName             string        // default for leaderboard queries and new watchers
	CSRFKey            []byte        // 32 bytes
	TrustedOrigins     []string      // extra CSRF origins, host:port
	APIToken           string        // empty disables the token check
	RateLimitPerSecond int           // defaults to 10
	Heartbeat          time.Duration
	SlowRequest        time.Duration // defaults to middleware.DefaultSlowRequest
}

// server carries the dependencies shared by every handler.
type server struct {
	Deps
}

// NewMux wires the API routes and middleware. Background work started for
// the middleware ends when ctx is cancelled.
func NewMux(ctx context.Context, d Deps) http.Handler {
	if d.RateLimitPerSecond <= 0 {
		d.RateLimitPerSecond = 10
	}
	if d.Heartbeat <= 0 {
		d.Heartbeat = 25 * time.Second
	}
	s := &server{Deps: d}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/watchers", s.handleListWatchers)
	mux.HandleFunc("POST /api/watchers", s.handleStartWatcher)
	mux.HandleFunc("POST /api/watchers/stop", s.handleStopWatcher)
	mux.HandleFunc("GET /api/snapshots", s.handleSnapshots)
	mux.HandleFunc("GET /api/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("GET /api/posts", s.handlePosts)
	mux.HandleFunc("GET /api/bids", s.handleListBids)
	mux.HandleFunc("POST /api/bids/withdraw", s.handleWithdrawBid)
	mux.HandleFunc("GET "+middleware.StreamPrefix, s.handleEvents)
	mux.HandleFunc("GET /api/perf", s.handlePerf)

	limiter := middleware.NewRateLimiter(ctx, d.RateLimitPerSecond, time.Second)

	// Timing -> RateLimit -> Token -> CSRF -> SecurityHeaders -> Mux
	return middleware.Chain(mux,
		middleware.SecurityHeaders,
		middleware.CSRF(d.CSRFKey, d.TrustedOrigins...),
		middleware.RequireToken(d.APIToken),
		middleware.RateLimit(limiter),
		middleware.Timing(d.Perf, d.SlowRequest, mux),
	)
}
