package orchestrators

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"bidwatch/internal/domain/bid"
	"bidwatch/internal/domain/leaderboard"
)

// TestExecuteWithdrawBid tests that a withdrawn bid drops off the leaderboard.
func TestExecuteWithdrawBid(t *testing.T) {
	store := &mockBidStore{records: []bid.Record{
		{ID: "b1", Bid: bid.Bid{PostID: "p", ItemNumber: 1, Amount: decimal.NewFromInt(300), BidderName: "A"}},
		{ID: "b2", Bid: bid.Bid{PostID: "p", ItemNumber: 1, Amount: decimal.NewFromInt(200), BidderName: "B"}},
	}}
	ctx := context.Background()
	deps := WithdrawBidDeps{BidStore: store}

	if err := ExecuteWithdrawBid(ctx, WithdrawBidInput{BidID: "b1", Withdrawn: true}, deps); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	records, _ := store.ListByPost(ctx, "p")
	entries := leaderboard.Aggregate(records, "")
	if len(entries) != 1 || entries[0].Leader.BidderName != "B" {
		t.Errorf("leader after withdraw = %+v, want B", entries)
	}

	if err := ExecuteWithdrawBid(ctx, WithdrawBidInput{BidID: "b1", Withdrawn: false}, deps); err != nil {
		t.Fatalf("reinstate: %v", err)
	}
	records, _ = store.ListByPost(ctx, "p")
	if entries := leaderboard.Aggregate(records, ""); entries[0].Leader.BidderName != "A" {
		t.Errorf("leader after reinstate = %s, want A", entries[0].Leader.BidderName)
	}
}

// TestExecuteWithdrawBid_Errors tests input and lookup failures.
func TestExecuteWithdrawBid_Errors(t *testing.T) {
	deps := WithdrawBidDeps{BidStore: &mockBidStore{}}
	ctx := context.Background()
	if err := ExecuteWithdrawBid(ctx, WithdrawBidInput{}, deps); err == nil {
		t.Error("expected error for empty id")
	}
	if err := ExecuteWithdrawBid(ctx, WithdrawBidInput{BidID: "missing", Withdrawn: true}, deps); err == nil {
		t.Error("expected error for unknown id")
	}
}
