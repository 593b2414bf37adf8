package leaderboard

import (
	"sort"
	"time"

	"bidwatch/internal/domain/bid"
)

// HistoryLimit is the number of top bids kept per item.
const HistoryLimit = 5

// Snapshot statuses as shown to viewers.
const (
	StatusActive        = "Active"
	StatusStopped       = "Stopped"
	StatusLoginRequired = "Login required - update cookies"
)

// Entry is the derived ranking of one item. Entries are never persisted.
type Entry struct {
	ItemNumber           int       `json:"itemNumber"`
	Leader               bid.Bid   `json:"leaderBid"`
	History              []bid.Bid `json:"history"`
	IsMine               bool      `json:"isMine"`
	EverParticipatedMine bool      `json:"everParticipatedMine"`
}

// Snapshot is the published state of one watched post after a tick.
type Snapshot struct {
	WatcherID   string    `json:"watcherId"`
	PostURL     string    `json:"postUrl"`
	PostNumber  string    `json:"postNumber,omitempty"`
	Items       []Entry   `json:"items"`
	LastUpdated time.Time `json:"lastUpdated"`
	Status      string    `json:"status"`
}

// Aggregate ranks the bid history of one post per item.
// PRE: records are in insertion order
// POST: entries are sorted by item number ascending; ties on amount keep the
// first-seen bid as leader
// INVARIANT: withdrawn records never appear in the output
func Aggregate(records []bid.Record, myName string) []Entry {
	groups := make(map[int][]bid.Bid)
	for _, r := range records {
		if r.Withdrawn {
			continue
		}
		groups[r.Bid.ItemNumber] = append(groups[r.Bid.ItemNumber], r.Bid)
	}

	entries := make([]Entry, 0, len(groups))
	for item, bids := range groups {
		sort.SliceStable(bids, func(i, j int) bool {
			return bids[i].Amount.GreaterThan(bids[j].Amount)
		})

		history := bids
		if len(history) > HistoryLimit {
			history = history[:HistoryLimit]
		}

		everMine := false
		for _, b := range bids {
			if bid.NameMatches(b.BidderName, myName) {
				everMine = true
				break
			}
		}

		entries = append(entries, Entry{
			ItemNumber:           item,
			Leader:               bids[0],
			History:              append([]bid.Bid(nil), history...),
			IsMine:               bid.NameMatches(bids[0].BidderName, myName),
			EverParticipatedMine: everMine,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ItemNumber < entries[j].ItemNumber
	})
	return entries
}

// Find returns the entry for item, if present.
func Find(entries []Entry, item int) (Entry, bool) {
	for _, e := range entries {
		if e.ItemNumber == item {
			return e, true
		}
	}
	return Entry{}, false
}
