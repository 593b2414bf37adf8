package watcher

import (
	"context"
	"time"

	domain "bidwatch/internal/domain/watcher"
)

// Store persists Watcher state.
type Store interface {
	Save(ctx context.Context, w domain.Watcher) error
	GetByID(ctx context.Context, id string) (domain.Watcher, error)
	List(ctx context.Context) ([]domain.Watcher, error)
	ListRunning(ctx context.Context) ([]domain.Watcher, error)
	SetRunning(ctx context.Context, id string, running bool) error
	UpdateTimestamp(ctx context.Context, id string, at time.Time) error
}
