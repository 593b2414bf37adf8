package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newOCRServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req recognizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"bad json"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch req.Image {
		case "https://cdn.example.com/bid.jpg":
			json.NewEncoder(w).Encode(recognizeResponse{Text: "3.120"})
		case "https://cdn.example.com/blank.jpg":
			json.NewEncoder(w).Encode(recognizeResponse{Text: ""})
		default:
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(recognizeResponse{Error: "cannot fetch image"})
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestHTTPRecognizer tests the wire contract with the OCR service.
func TestHTTPRecognizer(t *testing.T) {
	var calls atomic.Int32
	srv := newOCRServer(t, &calls)
	h := NewHTTPRecognizer(srv.URL, time.Second)
	ctx := context.Background()

	text, err := h.RecognizeText(ctx, "https://cdn.example.com/bid.jpg")
	if err != nil || text != "3.120" {
		t.Errorf("RecognizeText = (%q, %v), want (3.120, nil)", text, err)
	}
	if _, err := h.RecognizeText(ctx, "https://cdn.example.com/404.jpg"); err == nil {
		t.Error("expected error for a service failure")
	}
	if _, err := h.RecognizeText(ctx, " "); !errors.Is(err, ErrEmptyImageRef) {
		t.Errorf("empty ref error = %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("service calls = %d, want 2", got)
	}
}

// TestCachedRecognizer tests memoisation of successes and degradation on failure.
func TestCachedRecognizer(t *testing.T) {
	var calls atomic.Int32
	srv := newOCRServer(t, &calls)
	c, err := NewCachedRecognizer(NewHTTPRecognizer(srv.URL, time.Second), 8)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if got := c.Recognize(ctx, "https://cdn.example.com/bid.jpg"); got != "3.120" {
			t.Errorf("Recognize = %q, want 3.120", got)
		}
	}
	if got := c.Recognize(ctx, "https://cdn.example.com/blank.jpg"); got != "" {
		t.Errorf("blank image = %q", got)
	}
	c.Recognize(ctx, "https://cdn.example.com/blank.jpg")

	// Failures degrade to "" and are not cached.
	for i := 0; i < 2; i++ {
		if got := c.Recognize(ctx, "https://cdn.example.com/broken.jpg"); got != "" {
			t.Errorf("failed recognition = %q, want empty", got)
		}
	}

	if got := calls.Load(); got != 4 {
		t.Errorf("service calls = %d, want 4 (1 bid, 1 blank, 2 broken)", got)
	}
	if got := c.Len(); got != 2 {
		t.Errorf("cache len = %d, want 2", got)
	}
}

// TestCachedRecognizer_Unreachable tests a dead service.
func TestCachedRecognizer_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewCachedRecognizer(NewHTTPRecognizer(url, 200*time.Millisecond), 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Recognize(context.Background(), "https://cdn.example.com/bid.jpg"); got != "" {
		t.Errorf("Recognize = %q, want empty", got)
	}
}

// TestNoop tests the disabled recognizer.
func TestNoop(t *testing.T) {
	if got := (Noop{}).Recognize(context.Background(), "x"); got != "" {
		t.Errorf("Noop = %q", got)
	}
}
