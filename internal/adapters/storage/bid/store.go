package bid

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	domain "bidwatch/internal/domain/bid"
)

// ErrNotFound is returned when a bid id does not exist.
var ErrNotFound = errors.New("bid not found")

// Store persists bids. Implementations must enforce uniqueness of
// (post_id, item_number, amount, bidder_name) and report a duplicate insert
// as inserted=false rather than an error.
type Store interface {
	Insert(ctx context.Context, r domain.Record) (bool, error)
	DeletePlaceholder(ctx context.Context, postID string, item int, amount decimal.Decimal) (int64, error)
	HasKnownBidder(ctx context.Context, postID string, item int, amount decimal.Decimal) (bool, error)
	ListByPost(ctx context.Context, postID string) ([]domain.Record, error)
	ListPosts(ctx context.Context) ([]string, error)
	SetWithdrawn(ctx context.Context, id string, withdrawn bool) error
}

// placeholderPredicate selects rows whose bidder is a placeholder. It is
// portable between SQLite and Postgres.
var placeholderPredicate = "(TRIM(bidder_name) = '' OR LOWER(TRIM(bidder_name)) = '" +
	strings.ToLower(domain.PlaceholderBidder) + "')"
