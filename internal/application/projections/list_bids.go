package projections

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"bidwatch/internal/application/listutil"
	domainBid "bidwatch/internal/domain/bid"
	"bidwatch/internal/domain/watcher"
)

// Sort columns and filter keys accepted by QueryListBids.
var (
	BidSortColumns = []string{"item", "amount", "bidder", "created"}
	BidFilterKeys  = []string{"item", "bidder", "withdrawn"}
)

// ListBidsQuery carries query parameters.
type ListBidsQuery struct {
	PostURL string
	Params  listutil.ListParams
}

// ListBidsResult carries one page of stored bids.
type ListBidsResult struct {
	PostID string
	Bids   []domainBid.Record
	Page   listutil.PageInfo
}

// ListBidsDeps holds dependencies for ListBids.
type ListBidsDeps struct {
	BidStore BidStore
}

// QueryListBids pages through the raw bid history of a post, withdrawn bids
// included, so an operator can find the id of a bid to withdraw.
// PRE: PostURL is non-empty
// POST: without a sort column bids keep insertion order
func QueryListBids(ctx context.Context, query ListBidsQuery, deps ListBidsDeps) (ListBidsResult, error) {
	postID := watcher.PostIDFromURL(query.PostURL)
	if postID == "" {
		return ListBidsResult{}, errors.New("post is required")
	}
	records, err := deps.BidStore.ListByPost(ctx, postID)
	if err != nil {
		return ListBidsResult{}, err
	}

	records = filterBids(records, query.Params.FilterParams)
	sortBids(records, query.Params.SortParams)
	page, info := listutil.Paginate(records, query.Params.PageParams)
	return ListBidsResult{PostID: postID, Bids: page, Page: info}, nil
}

func filterBids(records []domainBid.Record, f listutil.FilterParams) []domainBid.Record {
	search := strings.ToLower(f.Search)
	out := make([]domainBid.Record, 0, len(records))
	for _, r := range records {
		if v, ok := f.Filters["item"]; ok && strconv.Itoa(r.Bid.ItemNumber) != v {
			continue
		}
		if v, ok := f.Filters["bidder"]; ok && !strings.EqualFold(r.Bid.BidderName, v) {
			continue
		}
		if v, ok := f.Filters["withdrawn"]; ok {
			if want, err := strconv.ParseBool(v); err == nil && r.Withdrawn != want {
				continue
			}
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(r.Bid.BidderName), search) &&
			!strings.Contains(strings.ToLower(r.Bid.RawText), search) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func sortBids(records []domainBid.Record, s listutil.SortParams) {
	var less func(a, b domainBid.Record) bool
	switch s.Sort {
	case "item":
		less = func(a, b domainBid.Record) bool { return a.Bid.ItemNumber < b.Bid.ItemNumber }
	case "amount":
		less = func(a, b domainBid.Record) bool { return a.Bid.Amount.LessThan(b.Bid.Amount) }
	case "bidder":
		less = func(a, b domainBid.Record) bool {
			return strings.ToLower(a.Bid.BidderName) < strings.ToLower(b.Bid.BidderName)
		}
	case "created":
		less = func(a, b domainBid.Record) bool { return a.CreatedAt.Before(b.CreatedAt) }
	default:
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		if s.Desc {
			return less(records[j], records[i])
		}
		return less(records[i], records[j])
	})
}
