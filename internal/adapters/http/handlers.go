package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	bidStore "bidwatch/internal/adapters/storage/bid"
	"bidwatch/internal/application/listutil"
	"bidwatch/internal/application/orchestrators"
	"bidwatch/internal/application/projections"
	domainBid "bidwatch/internal/domain/bid"
	"bidwatch/internal/domain/leaderboard"
	"bidwatch/internal/domain/watcher"
)

// internalError logs the real error and returns a generic message to the client.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// strictDecode decodes JSON from the request body, rejecting unknown fields.
func strictDecode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func isForm(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response_encode_failed", "error", err)
	}
}

// watcherView is the API representation of a watcher.
type watcherView struct {
	ID              string                `json:"id"`
	PostURL         string                `json:"postUrl"`
	MyName          string                `json:"myName"`
	IntervalSeconds int                   `json:"intervalSeconds"`
	State           string                `json:"state"`
	PostNumber      string                `json:"postNumber,omitempty"`
	Running         bool                  `json:"running"`
	LastTickAt      *time.Time            `json:"lastTickAt,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
	Snapshot        *leaderboard.Snapshot `json:"snapshot,omitempty"`
}

func (s *server) view(w watcher.Watcher) watcherView {
	v := watcherView{
		ID:              w.ID,
		PostURL:         w.PostURL,
		MyName:          w.MyName,
		IntervalSeconds: int(w.Interval / time.Second),
		State:           w.State,
		PostNumber:      w.PostNumber,
		Running:         w.Running,
		CreatedAt:       w.CreatedAt,
	}
	if !w.LastTickAt.IsZero() {
		t := w.LastTickAt
		v.LastTickAt = &t
	}
	if snap, ok := s.Snapshots.Latest(w.ID); ok {
		v.Snapshot = &snap
	}
	return v
}

// handleHealth handles GET /healthz
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

// handleListWatchers handles GET /api/watchers
func (s *server) handleListWatchers(w http.ResponseWriter, r *http.Request) {
	list, err := s.Watchers.List(r.Context())
	if err != nil {
		internalError(w, err)
		return
	}
	out := make([]watcherView, 0, len(list))
	for _, wt := range list {
		out = append(out, s.view(wt))
	}
	writeJSON(w, http.StatusOK, out)
}

type startWatcherRequest struct {
	PostURL         string `json:"postUrl"`
	MyName          string `json:"myName"`
	IntervalSeconds int    `json:"intervalSeconds"`
}

// handleStartWatcher handles POST /api/watchers
func (s *server) handleStartWatcher(w http.ResponseWriter, r *http.Request) {
	var req startWatcherRequest
	if isForm(r) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form submission", http.StatusBadRequest)
			return
		}
		req.PostURL = r.FormValue("post_url")
		req.MyName = r.FormValue("my_name")
		if v := r.FormValue("interval_seconds"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				http.Error(w, "interval_seconds must be a number", http.StatusBadRequest)
				return
			}
			req.IntervalSeconds = n
		}
	} else if err := strictDecode(r, &req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.MyName) == "" {
		req.MyName = s.MyName
	}

	wt, err := s.Watchers.Start(r.Context(), orchestrators.StartWatcherInput{
		PostURL:  req.PostURL,
		MyName:   req.MyName,
		Interval: time.Duration(req.IntervalSeconds) * time.Second,
	})
	switch {
	case errors.Is(err, watcher.ErrEmptyPostURL), errors.Is(err, watcher.ErrIntervalTooShort):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, watcher.ErrWatcherExists):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, watcher.ErrWatcherLimit):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
		return
	case err != nil:
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.view(wt))
}

// handleStopWatcher handles POST /api/watchers/stop?id=
func (s *server) handleStopWatcher(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}
	err := s.Watchers.Stop(r.Context(), id)
	if errors.Is(err, watcher.ErrWatcherNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSnapshots handles GET /api/snapshots
func (s *server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Snapshots.All())
}

type leaderboardResponse struct {
	PostID    string              `json:"postId"`
	Items     []leaderboard.Entry `json:"items"`
	BidCount  int                 `json:"bidCount"`
	Withdrawn int                 `json:"withdrawn"`
}

// handleLeaderboard handles GET /api/leaderboard?post=&me=
func (s *server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	post := q.Get("post")
	if strings.TrimSpace(post) == "" {
		http.Error(w, "missing post", http.StatusBadRequest)
		return
	}
	me := q.Get("me")
	if me == "" {
		me = s.MyName
	}
	res, err := projections.QueryGetLeaderboard(r.Context(), projections.GetLeaderboardQuery{
		PostURL: post,
		MyName:  me,
	}, projections.GetLeaderboardDeps{BidStore: s.BidStore})
	if err != nil {
		internalError(w, err)
		return
	}
	items := res.Items
	if items == nil {
		items = []leaderboard.Entry{}
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{
		PostID:    res.PostID,
		Items:     items,
		BidCount:  len(res.Bids),
		Withdrawn: res.Withdrawn,
	})
}

// handlePosts handles GET /api/posts
func (s *server) handlePosts(w http.ResponseWriter, r *http.Request) {
	posts, err := projections.QueryListPosts(r.Context(), projections.GetLeaderboardDeps{BidStore: s.BidStore})
	if err != nil {
		internalError(w, err)
		return
	}
	if posts == nil {
		posts = []string{}
	}
	writeJSON(w, http.StatusOK, posts)
}

// bidView is the API representation of a stored bid.
type bidView struct {
	ID        string        `json:"id"`
	Withdrawn bool          `json:"withdrawn"`
	CreatedAt time.Time     `json:"createdAt"`
	Bid       domainBid.Bid `json:"bid"`
}

type bidPage struct {
	PostID string            `json:"postId"`
	Bids   []bidView         `json:"bids"`
	Page   listutil.PageInfo `json:"page"`
}

// handleListBids handles GET /api/bids?post=&page=&per_page=&sort=&q=&item=&bidder=&withdrawn=
func (s *server) handleListBids(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	post := q.Get("post")
	if strings.TrimSpace(post) == "" {
		http.Error(w, "missing post", http.StatusBadRequest)
		return
	}
	res, err := projections.QueryListBids(r.Context(), projections.ListBidsQuery{
		PostURL: post,
		Params:  listutil.ParseListParams(q, projections.BidSortColumns, projections.BidFilterKeys),
	}, projections.ListBidsDeps{BidStore: s.BidStore})
	if err != nil {
		internalError(w, err)
		return
	}
	out := bidPage{PostID: res.PostID, Bids: make([]bidView, 0, len(res.Bids)), Page: res.Page}
	for _, rec := range res.Bids {
		out.Bids = append(out.Bids, bidView{ID: rec.ID, Withdrawn: rec.Withdrawn, CreatedAt: rec.CreatedAt, Bid: rec.Bid})
	}
	writeJSON(w, http.StatusOK, out)
}

type withdrawBidRequest struct {
	BidID     string `json:"bidId"`
	Withdrawn *bool  `json:"withdrawn"`
}

// handleWithdrawBid handles POST /api/bids/withdraw
func (s *server) handleWithdrawBid(w http.ResponseWriter, r *http.Request) {
	var req withdrawBidRequest
	if isForm(r) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form submission", http.StatusBadRequest)
			return
		}
		req.BidID = r.FormValue("bid_id")
		if v := r.FormValue("withdrawn"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				http.Error(w, "withdrawn must be true or false", http.StatusBadRequest)
				return
			}
			req.Withdrawn = &b
		}
	} else if err := strictDecode(r, &req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.BidID == "" {
		http.Error(w, "missing bid id", http.StatusBadRequest)
		return
	}
	withdrawn := true
	if req.Withdrawn != nil {
		withdrawn = *req.Withdrawn
	}

	err := orchestrators.ExecuteWithdrawBid(r.Context(), orchestrators.WithdrawBidInput{
		BidID:     req.BidID,
		Withdrawn: withdrawn,
	}, orchestrators.WithdrawBidDeps{BidStore: s.BidStore})
	if errors.Is(err, bidStore.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePerf handles GET /api/perf?window=15m
func (s *server) handlePerf(w http.ResponseWriter, r *http.Request) {
	if s.Perf == nil {
		http.Error(w, "perf collection disabled", http.StatusNotFound)
		return
	}
	window := 15 * time.Minute
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			http.Error(w, "invalid window", http.StatusBadRequest)
			return
		}
		window = d
	}
	writeJSON(w, http.StatusOK, s.Perf.Snapshot(time.Now().Add(-window), 10))
}
