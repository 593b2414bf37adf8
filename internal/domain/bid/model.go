package bid

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Item number bounds for a single listing post.
const (
	MinItemNumber = 1
	MaxItemNumber = 50
)

// PlaceholderBidder is recorded when no bidder name could be resolved for a comment.
const PlaceholderBidder = "Unknown"

// MinAmount is the smallest amount accepted as a bid.
var MinAmount = decimal.NewFromInt(10)

// Domain errors
var (
	ErrEmptyPostID       = errors.New("bid post id cannot be empty")
	ErrInvalidItemNumber = errors.New("bid item number must be between 1 and 50")
	ErrAmountTooLow      = errors.New("bid amount must be at least 10")
	ErrEmptyBidder       = errors.New("bid bidder name cannot be empty")
)

// Bid is one extracted (item, amount, bidder) assertion from a comment or image.
// A Bid is never mutated after construction; the store decides persistence.
type Bid struct {
	PostID       string          `json:"postId"`
	ItemNumber   int             `json:"itemNumber"`
	Amount       decimal.Decimal `json:"amount"`
	BidderName   string          `json:"bidderName"`
	RawText      string          `json:"rawText"`
	RelativeTime string          `json:"relativeTime"`
	Images       []string        `json:"images"`
	IsSummary    bool            `json:"isSummary"`
}

// Validate checks the bid invariants.
// PRE: Bid struct is populated
// POST: Returns nil if valid, error otherwise
func (b Bid) Validate() error {
	if strings.TrimSpace(b.PostID) == "" {
		return ErrEmptyPostID
	}
	if !ValidItemNumber(b.ItemNumber) {
		return ErrInvalidItemNumber
	}
	if !ValidAmount(b.Amount) {
		return ErrAmountTooLow
	}
	if strings.TrimSpace(b.BidderName) == "" {
		return ErrEmptyBidder
	}
	return nil
}

// ValidItemNumber reports whether n is inside [MinItemNumber, MaxItemNumber].
func ValidItemNumber(n int) bool {
	return n >= MinItemNumber && n <= MaxItemNumber
}

// ValidAmount reports whether amount meets MinAmount.
func ValidAmount(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(MinAmount)
}

// Key identifies a bid for deduplication: two bids with equal keys are the same bid.
type Key struct {
	PostID     string
	ItemNumber int
	Amount     string // canonical decimal string
	BidderName string
}

// Key returns the dedup key of the bid.
// INVARIANT: Amounts that compare equal produce equal keys ("500" and "500.0").
func (b Bid) Key() Key {
	return Key{
		PostID:     b.PostID,
		ItemNumber: b.ItemNumber,
		Amount:     CanonicalAmount(b.Amount),
		BidderName: b.BidderName,
	}
}

// CanonicalAmount renders an amount without trailing fractional zeros.
func CanonicalAmount(amount decimal.Decimal) string {
	return amount.String()
}

// IsPlaceholder reports whether a bidder name is a low-confidence placeholder.
func IsPlaceholder(name string) bool {
	name = strings.TrimSpace(name)
	return name == "" || strings.EqualFold(name, PlaceholderBidder)
}

// HasKnownBidder reports whether the bid is attributed to a real name.
func (b Bid) HasKnownBidder() bool {
	return !IsPlaceholder(b.BidderName)
}

// NameMatches reports whether candidate appears in name, ignoring case.
// Names are scraped free text and may carry extra tokens around the real name.
func NameMatches(name, candidate string) bool {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return false
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(candidate))
}

// Record is a stored bid row.
type Record struct {
	ID        string
	Bid       Bid
	Withdrawn bool
	CreatedAt time.Time
}
