package projections

import (
	"context"

	domainBid "bidwatch/internal/domain/bid"
)

// BidStore interface for bid queries.
type BidStore interface {
	ListByPost(ctx context.Context, postID string) ([]domainBid.Record, error)
	ListPosts(ctx context.Context) ([]string, error)
}
