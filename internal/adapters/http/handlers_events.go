package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"bidwatch/internal/domain/leaderboard"
)

// handleEvents handles GET /api/events
// Streams snapshots as Server-Sent Events. The latest snapshot of every
// watcher is sent first; ?watcher= limits the stream to one watcher.
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	only := r.URL.Query().Get("watcher")

	ch, cancel := s.Snapshots.Subscribe(0)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(snap leaderboard.Snapshot) error {
		if only != "" && snap.WatcherID != only {
			return nil
		}
		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: snapshot\nid: %s\ndata: %s\n\n", snap.WatcherID, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	for _, snap := range s.Snapshots.All() {
		if err := send(snap); err != nil {
			return
		}
	}

	heartbeat := time.NewTicker(s.Heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case snap, open := <-ch:
			if !open {
				return
			}
			if err := send(snap); err != nil {
				slog.Debug("sse_send_failed", "error", err)
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
