package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"bidwatch/internal/adapters/http/perf"
	"bidwatch/internal/application/projections"
)

var (
	leaderboardMe   string
	leaderboardJSON bool
)

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard [post-url]",
	Short: "Print the stored leaderboard of a post, or list posts with bids.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		bids, _, err := openStores(ctx, cfg, perf.NewCollector(perf.DefaultRingSize))
		if err != nil {
			return err
		}
		defer bids.Close()
		deps := projections.GetLeaderboardDeps{BidStore: bids}
		out := cmd.OutOrStdout()

		if len(args) == 0 {
			posts, err := projections.QueryListPosts(ctx, deps)
			if err != nil {
				return err
			}
			for _, p := range posts {
				fmt.Fprintln(out, p)
			}
			return nil
		}

		myName := leaderboardMe
		if myName == "" {
			myName = cfg.MyName
		}
		res, err := projections.QueryGetLeaderboard(ctx, projections.GetLeaderboardQuery{PostURL: args[0], MyName: myName}, deps)
		if err != nil {
			return err
		}
		if leaderboardJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res.Items)
		}
		renderLeaderboard(out, res)
		return nil
	},
}

func init() {
	leaderboardCmd.Flags().StringVar(&leaderboardMe, "me", "", "bidder name to mark as mine (defaults to my_name)")
	leaderboardCmd.Flags().BoolVar(&leaderboardJSON, "json", false, "print items as JSON")
}
