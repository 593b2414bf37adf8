package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"bidwatch/internal/domain/bidparse"
)

var (
	parseAuthor  string
	parsePostID  string
	parseSellers []string
	parseJSON    bool
)

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Run the bid parser over comment text from a file or stdin.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		text, err := readInput(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}

		aliases := append(append([]string{}, cfg.SellerAliases...), parseSellers...)
		bids := bidparse.New(aliases).Parse(bidparse.Source{
			PostID: parsePostID,
			Author: parseAuthor,
			Text:   text,
		})

		out := cmd.OutOrStdout()
		if parseJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(bids)
		}
		renderBids(out, bids)
		return nil
	},
}

func init() {
	parseCmd.Flags().StringVarP(&parseAuthor, "author", "a", "", "comment author used when the text names no bidder")
	parseCmd.Flags().StringVar(&parsePostID, "post", "cli", "post id attached to parsed bids")
	parseCmd.Flags().StringSliceVar(&parseSellers, "seller", nil, "extra seller alias whose bids are ignored (repeatable)")
	parseCmd.Flags().BoolVar(&parseJSON, "json", false, "print bids as JSON")
}

func readInput(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(data), nil
}
