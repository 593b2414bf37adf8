// Package ocr turns bid screenshots into text through an external OCR service.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of memoised image texts.
const DefaultCacheSize = 4096

// ErrEmptyImageRef is returned when asked to recognise an empty reference.
var ErrEmptyImageRef = errors.New("image reference is empty")

// TextSource extracts text from one image and reports failures.
type TextSource interface {
	RecognizeText(ctx context.Context, imageRef string) (string, error)
}

type recognizeRequest struct {
	Image string `json:"image"`
}

type recognizeResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// HTTPRecognizer posts image references to an OCR service:
// POST {endpoint} {"image": ref} -> {"text": "..."}.
type HTTPRecognizer struct {
	client   *resty.Client
	endpoint string
}

// NewHTTPRecognizer creates a recognizer for the service at endpoint.
// PRE: endpoint is an absolute URL
// POST: requests time out after timeout (30s when zero)
func NewHTTPRecognizer(endpoint string, timeout time.Duration) *HTTPRecognizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("accept", "application/json")
	return &HTTPRecognizer{client: client, endpoint: endpoint}
}

// RecognizeText returns the service's text for imageRef.
func (h *HTTPRecognizer) RecognizeText(ctx context.Context, imageRef string) (string, error) {
	if strings.TrimSpace(imageRef) == "" {
		return "", ErrEmptyImageRef
	}

	var out recognizeResponse
	res, err := h.client.R().
		SetContext(ctx).
		SetBody(recognizeRequest{Image: imageRef}).
		SetResult(&out).
		SetError(&out).
		Post(h.endpoint)
	if err != nil {
		return "", fmt.Errorf("ocr request: %w", err)
	}
	if res.IsError() {
		return "", fmt.Errorf("ocr service returned %d: %s", res.StatusCode(), out.Error)
	}
	return out.Text, nil
}

// CachedRecognizer memoises successful recognitions per image reference.
// Failures are logged and yield "", and are retried on the next call.
// Safe for concurrent use by every watcher in the process.
type CachedRecognizer struct {
	source TextSource
	cache  *lru.Cache[string, string]
}

// NewCachedRecognizer wraps source with an LRU cache of the given size.
func NewCachedRecognizer(source TextSource, size int) (*CachedRecognizer, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create ocr cache: %w", err)
	}
	return &CachedRecognizer{source: source, cache: cache}, nil
}

// Recognize returns best-effort text for imageRef.
func (c *CachedRecognizer) Recognize(ctx context.Context, imageRef string) string {
	if text, ok := c.cache.Get(imageRef); ok {
		return text
	}
	text, err := c.source.RecognizeText(ctx, imageRef)
	if err != nil {
		slog.Warn("ocr_unavailable", "image", imageRef, "error", err)
		return ""
	}
	c.cache.Add(imageRef, text)
	return text
}

// Len returns the number of cached entries.
func (c *CachedRecognizer) Len() int {
	return c.cache.Len()
}

// Noop never recognises anything. Used when no OCR service is configured.
type Noop struct{}

// Recognize always returns "".
func (Noop) Recognize(context.Context, string) string { return "" }
