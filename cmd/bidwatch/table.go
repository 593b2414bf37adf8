package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"bidwatch/internal/application/projections"
	"bidwatch/internal/domain/bid"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

// renderBids prints parsed bids in input order.
func renderBids(w io.Writer, bids []bid.Bid) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Item", "Amount", "Bidder", "Summary", "Source"})
	for _, b := range bids {
		summary := ""
		if b.IsSummary {
			summary = "yes"
		}
		t.AppendRow(table.Row{b.ItemNumber, b.Amount.String(), b.BidderName, summary, firstLine(b.RawText)})
	}
	t.AppendFooter(table.Row{"", "", "", "Total", len(bids)})
	t.Render()
}

// renderLeaderboard prints one row per item with its leader and runner-up bids.
func renderLeaderboard(w io.Writer, res projections.GetLeaderboardResult) {
	t := newTable(w)
	t.SetTitle(res.PostID)
	t.AppendHeader(table.Row{"Item", "Leader", "Amount", "Mine", "History"})
	for _, e := range res.Items {
		mine := ""
		switch {
		case e.IsMine:
			mine = "leading"
		case e.EverParticipatedMine:
			mine = "outbid"
		}
		history := make([]string, 0, len(e.History))
		for _, h := range e.History {
			history = append(history, fmt.Sprintf("%s %s", h.Amount.String(), h.BidderName))
		}
		t.AppendRow(table.Row{e.ItemNumber, e.Leader.BidderName, e.Leader.Amount.String(), mine, strings.Join(history, ", ")})
	}
	t.AppendFooter(table.Row{"", "", "", "Bids", fmt.Sprintf("%d (%d withdrawn)", len(res.Bids), res.Withdrawn)})
	t.Render()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const maxLen = 40
	if r := []rune(s); len(r) > maxLen {
		s = string(r[:maxLen-1]) + "…"
	}
	return s
}
