package projections

import (
	"context"
	"errors"

	domainBid "bidwatch/internal/domain/bid"
	"bidwatch/internal/domain/leaderboard"
	"bidwatch/internal/domain/watcher"
)

// GetLeaderboardQuery carries query parameters.
type GetLeaderboardQuery struct {
	PostURL string
	MyName  string
}

// GetLeaderboardResult carries the query result.
type GetLeaderboardResult struct {
	PostID    string
	Items     []leaderboard.Entry
	Bids      []domainBid.Record // every stored bid, withdrawn included, in insertion order
	Withdrawn int
}

// GetLeaderboardDeps holds dependencies for GetLeaderboard.
type GetLeaderboardDeps struct {
	BidStore BidStore
}

// QueryGetLeaderboard rebuilds the leaderboard of a post from stored bids.
// PRE: PostURL is non-empty
// POST: Items match what a watcher would publish for the same post
// INVARIANT: withdrawn bids are listed in Bids but never lead an item
func QueryGetLeaderboard(ctx context.Context, query GetLeaderboardQuery, deps GetLeaderboardDeps) (GetLeaderboardResult, error) {
	postID := watcher.PostIDFromURL(query.PostURL)
	if postID == "" {
		return GetLeaderboardResult{}, errors.New("post is required")
	}

	records, err := deps.BidStore.ListByPost(ctx, postID)
	if err != nil {
		return GetLeaderboardResult{}, err
	}

	withdrawn := 0
	for _, r := range records {
		if r.Withdrawn {
			withdrawn++
		}
	}

	return GetLeaderboardResult{
		PostID:    postID,
		Items:     leaderboard.Aggregate(records, query.MyName),
		Bids:      records,
		Withdrawn: withdrawn,
	}, nil
}

// QueryListPosts returns every post id with stored bids.
func QueryListPosts(ctx context.Context, deps GetLeaderboardDeps) ([]string, error) {
	return deps.BidStore.ListPosts(ctx)
}
