package orchestrators

import (
	"context"
	"errors"
	"log/slog"
)

// BidStoreForWithdraw defines the store interface needed by WithdrawBid.
type BidStoreForWithdraw interface {
	SetWithdrawn(ctx context.Context, id string, withdrawn bool) error
}

// WithdrawBidInput carries input for the withdraw orchestrator.
type WithdrawBidInput struct {
	BidID     string
	Withdrawn bool // false reinstates a previously withdrawn bid
}

// WithdrawBidDeps holds dependencies for WithdrawBid.
type WithdrawBidDeps struct {
	BidStore BidStoreForWithdraw
}

// ExecuteWithdrawBid flags a stored bid as withdrawn so the leaderboard skips it.
// PRE: BidID must be non-empty
// POST: the row keeps its dedup key; only the withdrawn flag changes
func ExecuteWithdrawBid(ctx context.Context, input WithdrawBidInput, deps WithdrawBidDeps) error {
	if input.BidID == "" {
		return errors.New("bid ID is required")
	}

	if err := deps.BidStore.SetWithdrawn(ctx, input.BidID, input.Withdrawn); err != nil {
		return err
	}

	event := "bid_withdrawn"
	if !input.Withdrawn {
		event = "bid_reinstated"
	}
	slog.Info("bid_event", "event", event, "bid_id", input.BidID)
	return nil
}
