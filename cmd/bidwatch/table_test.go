package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"bidwatch/internal/application/projections"
	"bidwatch/internal/domain/bid"
	"bidwatch/internal/domain/leaderboard"
)

// TestRenderBids tests that each parsed bid gets a row and a total.
func TestRenderBids(t *testing.T) {
	var buf bytes.Buffer
	renderBids(&buf, []bid.Bid{
		{ItemNumber: 1, Amount: decimal.NewFromInt(50), BidderName: "Bob", RawText: "1. 50\n2. 80"},
		{ItemNumber: 2, Amount: decimal.NewFromInt(80), BidderName: "Bob", RawText: "1. 50\n2. 80", IsSummary: true},
	})
	out := buf.String()
	for _, want := range []string{"ITEM", "Bob", "50", "80", "yes", "1. 50"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "2. 80") {
		t.Errorf("source column should keep only the first line:\n%s", out)
	}
}

// TestRenderLeaderboard tests the leader and ownership columns.
func TestRenderLeaderboard(t *testing.T) {
	leader := bid.Bid{ItemNumber: 3, Amount: decimal.NewFromInt(300), BidderName: "Carol"}
	var buf bytes.Buffer
	renderLeaderboard(&buf, projections.GetLeaderboardResult{
		PostID: "https://example.com/posts/1",
		Items: []leaderboard.Entry{{
			ItemNumber:           3,
			Leader:               leader,
			History:              []bid.Bid{leader, {ItemNumber: 3, Amount: decimal.NewFromInt(200), BidderName: "Bob"}},
			EverParticipatedMine: true,
		}},
		Bids:      make([]bid.Record, 3),
		Withdrawn: 1,
	})
	// headers and footers are upper-cased by the table style
	out := strings.ToLower(buf.String())
	for _, want := range []string{"https://example.com/posts/1", "carol", "outbid", "300 carol, 200 bob", "3 (1 withdrawn)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

// TestReadInput tests the stdin and file sources.
func TestReadInput(t *testing.T) {
	got, err := readInput(strings.NewReader("1. 100"), nil)
	if err != nil || got != "1. 100" {
		t.Errorf("stdin = %q, %v", got, err)
	}

	path := filepath.Join(t.TempDir(), "comment.txt")
	if err := os.WriteFile(path, []byte("2 = 250"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err = readInput(strings.NewReader("ignored"), []string{path})
	if err != nil || got != "2 = 250" {
		t.Errorf("file = %q, %v", got, err)
	}

	if _, err := readInput(nil, []string{filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Error("expected error for missing file")
	}
}
