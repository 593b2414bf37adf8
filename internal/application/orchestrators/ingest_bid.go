package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"bidwatch/internal/domain/bid"
)

// BidStoreForIngest defines the store interface needed by the ingest gate.
type BidStoreForIngest interface {
	Insert(ctx context.Context, r bid.Record) (bool, error)
	DeletePlaceholder(ctx context.Context, postID string, item int, amount decimal.Decimal) (int64, error)
	HasKnownBidder(ctx context.Context, postID string, item int, amount decimal.Decimal) (bool, error)
}

// IngestBidDeps holds dependencies for IngestBid.
type IngestBidDeps struct {
	BidStore   BidStoreForIngest
	GenerateID func() string
	Now        func() time.Time
}

// IngestResult reports what the gate did with one bid.
type IngestResult struct {
	Inserted            bool
	PlaceholdersRemoved int64
}

// ExecuteIngestBid writes a bid exactly once.
// A duplicate (post, item, amount, bidder) is a normal outcome reported as
// Inserted=false. A placeholder-attributed bid is not stored when a real
// bidder already holds the same (post, item, amount); a real bidder removes
// earlier placeholder rows for that triple.
// PRE: b passes Validate
// POST: at most one row exists per dedup key
func ExecuteIngestBid(ctx context.Context, b bid.Bid, deps IngestBidDeps) (IngestResult, error) {
	if err := b.Validate(); err != nil {
		return IngestResult{}, err
	}

	known := b.HasKnownBidder()
	if !known {
		exists, err := deps.BidStore.HasKnownBidder(ctx, b.PostID, b.ItemNumber, b.Amount)
		if err != nil {
			return IngestResult{}, fmt.Errorf("check known bidder: %w", err)
		}
		if exists {
			slog.Debug("bid_placeholder_suppressed", "post_id", b.PostID, "item", b.ItemNumber, "amount", b.Amount.String())
			return IngestResult{}, nil
		}
	}

	inserted, err := deps.BidStore.Insert(ctx, bid.Record{
		ID:        deps.GenerateID(),
		Bid:       b,
		CreatedAt: deps.Now(),
	})
	if err != nil {
		return IngestResult{}, fmt.Errorf("insert bid: %w", err)
	}

	res := IngestResult{Inserted: inserted}
	if known {
		removed, err := deps.BidStore.DeletePlaceholder(ctx, b.PostID, b.ItemNumber, b.Amount)
		if err != nil {
			// best effort; the next known insert for this triple retries it
			slog.Warn("bid_placeholder_cleanup_failed", "post_id", b.PostID, "item", b.ItemNumber, "error", err)
		}
		res.PlaceholdersRemoved = removed
	}

	if inserted {
		slog.Info("bid_ingested",
			"post_id", b.PostID,
			"item", b.ItemNumber,
			"amount", b.Amount.String(),
			"bidder", b.BidderName,
			"summary", b.IsSummary,
			"placeholders_removed", res.PlaceholdersRemoved,
		)
	}
	return res, nil
}

// IngestSummary aggregates gate outcomes for one render pass.
type IngestSummary struct {
	New                 int
	Duplicates          int
	PlaceholdersRemoved int64
}

// ExecuteIngestBids runs the gate over bids in order.
// PRE: every bid passes Validate
// POST: returns on the first store error; earlier bids stay ingested
func ExecuteIngestBids(ctx context.Context, bids []bid.Bid, deps IngestBidDeps) (IngestSummary, error) {
	var sum IngestSummary
	for _, b := range bids {
		res, err := ExecuteIngestBid(ctx, b, deps)
		if err != nil {
			return sum, err
		}
		if res.Inserted {
			sum.New++
		} else {
			sum.Duplicates++
		}
		sum.PlaceholdersRemoved += res.PlaceholdersRemoved
	}
	return sum, nil
}
