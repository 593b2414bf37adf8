// Package browser renders posts in a real browser and extracts comment
// blocks from the rendered markup.
package browser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"bidwatch/internal/application/orchestrators"
	"bidwatch/internal/domain/comment"
	"bidwatch/internal/domain/watcher"
)

// Strategy is one way of locating comment blocks in a rendered page.
// Field selectors are evaluated inside each block.
type Strategy struct {
	Name   string
	Block  string
	Author string
	Text   string
	Time   string
	Image  string
}

// Selectors configures extraction. Strategies are tried in order and the
// first one that yields at least one block wins.
type Selectors struct {
	Strategies []Strategy
	PostBody   []string // first match is the seller's post text
	TimeTokens []string // page-wide relative-time labels, in addition to per-block ones
	LoginWall  []string // any match means the session is no longer valid
	Expanders  []string // clickable "more comments" controls
}

// DefaultSelectors returns selectors for the social network post layout
// in current use, with an older layout as fallback.
func DefaultSelectors() Selectors {
	return Selectors{
		Strategies: []Strategy{
			{
				Name:   "article",
				Block:  `div[role="article"][aria-label]`,
				Author: `a[role="link"] span[dir="auto"], a[role="link"] > span`,
				Text:   `div[dir="auto"]`,
				Time:   `ul li a[role="link"], a[href*="comment_id"]`,
				Image:  `a[href*="photo"] img, img[referrerpolicy]`,
			},
			{
				Name:   "legacy",
				Block:  `div[data-testid="UFI2Comment/root_depth_0"], div.comment`,
				Author: `a.actor, .comment-author`,
				Text:   `[data-testid="UFI2Comment/body"], .comment-body`,
				Time:   `abbr, .comment-time`,
				Image:  `img.comment-image, .comment-attachment img`,
			},
		},
		PostBody: []string{
			`div[data-ad-preview="message"]`,
			`div[data-ad-comet-preview="message"]`,
			`[data-testid="post_message"]`,
			`.post-body`,
		},
		TimeTokens: []string{`abbr[data-utime]`},
		LoginWall: []string{
			`form#login_form`,
			`form[action*="/login"]`,
			`input[name="pass"]`,
			`[data-testid="royal_login_form"]`,
		},
		Expanders: []string{
			`div[role="button"]:has-text("View more comments")`,
			`div[role="button"]:has-text("ดูความคิดเห็นเพิ่มเติม")`,
		},
	}
}

// ExtractRender parses rendered HTML into one extraction pass.
// PRE: html is the full document markup
// POST: returns watcher.ErrSessionInvalid when the page is a login wall
func ExtractRender(html string, sel Selectors) (orchestrators.Render, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return orchestrators.Render{}, fmt.Errorf("parse html: %w", err)
	}
	if IsLoginWall(doc, sel.LoginWall) {
		return orchestrators.Render{}, watcher.ErrSessionInvalid
	}

	// Line breaks inside comments separate bids.
	doc.Find("br").ReplaceWithHtml("\n")

	var render orchestrators.Render
	for _, s := range sel.Strategies {
		blocks := extractBlocks(doc, s)
		if len(blocks) > 0 {
			render.Blocks = blocks
			break
		}
	}
	for _, b := range render.Blocks {
		if b.RelativeTime != "" {
			render.TimeTokens = append(render.TimeTokens, b.RelativeTime)
		}
	}
	for _, q := range sel.TimeTokens {
		doc.Find(q).Each(func(_ int, s *goquery.Selection) {
			if t := cleanText(s.Text()); t != "" {
				render.TimeTokens = append(render.TimeTokens, t)
			}
		})
	}
	render.PostBody = firstText(doc, sel.PostBody)
	return render, nil
}

// IsLoginWall reports whether any login marker is present.
func IsLoginWall(doc *goquery.Document, markers []string) bool {
	for _, m := range markers {
		if doc.Find(m).Length() > 0 {
			return true
		}
	}
	return false
}

func extractBlocks(doc *goquery.Document, s Strategy) []comment.Block {
	var out []comment.Block
	doc.Find(s.Block).Each(func(_ int, el *goquery.Selection) {
		b := comment.Block{
			Author:       cleanText(el.Find(s.Author).First().Text()),
			Text:         joinTexts(el.Find(s.Text)),
			RelativeTime: cleanText(el.Find(s.Time).First().Text()),
		}
		el.Find(s.Image).Each(func(_ int, img *goquery.Selection) {
			if src, ok := img.Attr("src"); ok && keepImage(src) {
				b.Images = append(b.Images, comment.ImageRef(src))
			}
		})
		if b.Text == "" && !b.HasImages() {
			return
		}
		out = append(out, b)
	})
	return out
}

// keepImage drops inline data URIs and emoji sprites.
func keepImage(src string) bool {
	src = strings.TrimSpace(src)
	if src == "" || strings.HasPrefix(src, "data:") {
		return false
	}
	return !strings.Contains(src, "/emoji")
}

// joinTexts returns the distinct texts of sel, one per line. Matches nested
// inside another match repeat their parent's text and are skipped.
func joinTexts(sel *goquery.Selection) string {
	var lines []string
	seen := make(map[string]bool)
	sel.Each(func(_ int, s *goquery.Selection) {
		if s.Parents().FilterSelection(sel).Length() > 0 {
			return
		}
		t := strings.TrimSpace(s.Text())
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		lines = append(lines, t)
	})
	return strings.Join(lines, "\n")
}

func firstText(doc *goquery.Document, queries []string) string {
	for _, q := range queries {
		if t := strings.TrimSpace(doc.Find(q).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
