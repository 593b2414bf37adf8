// Package bidparse turns free-text comment bodies (and OCR text of attached
// images) into candidate bids.
//
// Two grammars run over every physical line:
//
//   - summary announcements, "<item><sep><amount>-<winner name>", attribute
//     the bid to the named winner and may repeat along a line;
//   - standard lines carry one or more "<item><sep><amount>" pairs and
//     attribute every pair to the comment author.
//
// Candidates that fail validation are dropped silently: most chat lines are
// not bids, and a miss is not an error.
package bidparse

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"bidwatch/internal/domain/bid"
)

// summaryHead matches the "<item><sep><amount>-" lead of an announcement
// anywhere on a line. The winner's name runs up to the next head.
// Group 1 = head start (optional "#"/"no."/"item" prefix), 2 = item,
// 3 = amount, where grouping must come in thousands.
var summaryHead = regexp.MustCompile(
	`(?:^|[^\d.])((?:(?:#|(?i:no\.?|item))\s*)?(\d{1,2}))[.,\s]+(\d{1,3}(?:[.,\s]\d{3})+|\d+)\s*-\s*`)

// standardPattern matches one "<item><punct><currency?><amount>" pair.
// Group 1 = item, 2 = amount. The item must not be glued to a preceding number.
var standardPattern = regexp.MustCompile(
	`(?i)(?:^|[^\d.,])(\d{1,2})(?:\s*[.,)=/-]\s*|\s+)(?:(?:฿|\$|thb\.?|baht|บาท)\s*)?(\d+(?:[.,]\d+)*)`)

// Source is one text blob to parse together with its attribution context.
type Source struct {
	PostID       string
	Author       string
	Text         string // comment body
	OCRText      string // recognized text of attached images, one line per image
	RelativeTime string
	Images       []string
}

// Parser extracts bids from comment text.
// A Parser is safe for concurrent use.
type Parser struct {
	seller SellerFilter
}

// New creates a Parser that drops bids attributed to any of sellerAliases.
func New(sellerAliases []string) *Parser {
	return &Parser{seller: NewSellerFilter(sellerAliases)}
}

// Parse returns every valid, non-seller bid found in src.
// Comment text is parsed with integral amounts; OCR text additionally accepts
// fractional amounts ("1.120.50"). Identical bids within one source are
// returned once, in first-seen order.
// PRE: none
// POST: every returned Bid passes Validate and is not a self-bid
func (p *Parser) Parse(src Source) []bid.Bid {
	author := strings.TrimSpace(src.Author)
	if author == "" {
		author = bid.PlaceholderBidder
	}

	var out []bid.Bid
	seen := make(map[bid.Key]bool)
	emit := func(b bid.Bid) {
		if b.Validate() != nil {
			return
		}
		if p.seller.IsSeller(b.BidderName) {
			return
		}
		k := b.Key()
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, b)
	}

	for _, chunk := range []struct {
		text          string
		allowFraction bool
	}{
		{src.Text, false},
		{src.OCRText, true},
	} {
		for _, line := range strings.Split(normalize(chunk.text), "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			for _, c := range p.parseLine(line, chunk.allowFraction) {
				b := bid.Bid{
					PostID:       src.PostID,
					ItemNumber:   c.item,
					Amount:       c.amount,
					BidderName:   author,
					RawText:      strings.TrimSpace(line),
					RelativeTime: src.RelativeTime,
					Images:       src.Images,
					IsSummary:    c.summary,
				}
				if c.summary {
					b.BidderName = c.bidder
				}
				emit(b)
			}
		}
	}
	return out
}

type candidate struct {
	item    int
	amount  decimal.Decimal
	bidder  string
	summary bool
}

// parseLine runs both grammars over one line. Announcements are taken
// first; the standard grammar only scans the text before the first one so
// an announced amount is not also counted as the author's bid.
func (p *Parser) parseLine(line string, allowFraction bool) []candidate {
	summaries, cut := p.matchSummaries(line)
	return append(scanStandard(line[:cut], allowFraction), summaries...)
}

// matchSummaries returns the valid announcements on line and the offset
// where the first one starts, or len(line) when there is none. A rejected
// announcement (seller won, bad item) still ends the author's bids.
func (p *Parser) matchSummaries(line string) ([]candidate, int) {
	heads := summaryHead.FindAllStringSubmatchIndex(line, -1)
	var out []candidate
	cut := len(line)
	for i, h := range heads {
		nameEnd := len(line)
		if i+1 < len(heads) {
			nameEnd = heads[i+1][2]
		}
		name := cleanName(line[h[1]:nameEnd])
		if !isName(name) {
			// "1.500-2.600" is two bids, not a winner announcement
			continue
		}
		if cut == len(line) {
			cut = h[2]
		}
		item, ok := parseItem(line[h[4]:h[5]])
		if !ok {
			continue
		}
		amount, ok := validAmount(stripGrouping(line[h[6]:h[7]]))
		if !ok || p.seller.IsSeller(name) {
			continue
		}
		out = append(out, candidate{item: item, amount: amount, bidder: name, summary: true})
	}
	return out, cut
}

// scanStandard collects every standard pair in text. An amount the grammar
// over-reads ("50,2" in "1.50,2.80") is cut back to its longest valid
// prefix and scanning resumes after the separator that follows it.
func scanStandard(text string, allowFraction bool) []candidate {
	var out []candidate
	pos := 0
	for pos < len(text) {
		m := standardPattern.FindStringSubmatchIndex(text[pos:])
		if m == nil {
			break
		}
		raw := text[pos+m[4] : pos+m[5]]
		amount, n, ok := leadingAmount(raw, allowFraction)
		if item, itemOK := parseItem(text[pos+m[2] : pos+m[3]]); itemOK && ok {
			out = append(out, candidate{item: item, amount: amount})
		}
		next := pos + m[4] + n
		if n < len(raw) {
			next++ // skip the separator; the next pair starts right after it
		}
		pos = next
	}
	return out
}

// leadingAmount returns the longest prefix of raw, cut at a dot or comma,
// that parses as an amount, together with its length. A shorter prefix is
// only taken when the text after its separator opens another pair, and
// fractions are only read from the whole run. When nothing is valid the
// length covers the first run of digits.
func leadingAmount(raw string, allowFraction bool) (decimal.Decimal, int, bool) {
	var ends []int
	for i := 0; i < len(raw); i++ {
		if raw[i] == '.' || raw[i] == ',' {
			ends = append(ends, i)
		}
	}
	ends = append(ends, len(raw))
	for i := len(ends) - 1; i >= 0; i-- {
		whole := i == len(ends)-1
		if !whole && !opensPair(raw[ends[i]+1:]) {
			continue
		}
		if amount, ok := parseAmount(raw[:ends[i]], allowFraction && whole); ok {
			return amount, ends[i], true
		}
	}
	return decimal.Zero, ends[0], false
}

// opensPair reports whether s starts with a standard "<item><sep><amount>" pair.
func opensPair(s string) bool {
	m := standardPattern.FindStringSubmatchIndex(s)
	return m != nil && m[2] == 0
}

func parseItem(raw string) (int, bool) {
	n := 0
	for _, r := range raw {
		n = n*10 + int(r-'0')
	}
	return n, bid.ValidItemNumber(n)
}

// parseAmount interprets a matched amount. Groups of exactly three digits
// after a dot or comma are grouping ("1,500" = 1500). When allowFraction is
// set, a trailing group of one or two digits is the fractional part
// ("120.50"). Anything else is rejected.
func parseAmount(raw string, allowFraction bool) (decimal.Decimal, bool) {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == '.' || r == ',' })
	if len(parts) == 0 {
		return decimal.Zero, false
	}

	grouped := true
	for _, part := range parts[1:] {
		if len(part) != 3 {
			grouped = false
			break
		}
	}
	if grouped {
		return validAmount(strings.Join(parts, ""))
	}

	if !allowFraction || len(parts) < 2 {
		return decimal.Zero, false
	}
	last := parts[len(parts)-1]
	if len(last) > 2 {
		return decimal.Zero, false
	}
	whole := parts[:len(parts)-1]
	for _, part := range whole[1:] {
		if len(part) != 3 {
			return decimal.Zero, false
		}
	}
	return validAmount(strings.Join(whole, "") + "." + last)
}

func validAmount(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil || !bid.ValidAmount(d) {
		return decimal.Zero, false
	}
	return d, true
}

// cleanName trims whitespace and trailing punctuation from an announced name.
func cleanName(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '.' || r == ',' || r == '!' || r == '-'
	})
}

// isName reports whether s reads as a person's name: it has a letter and
// does not open with a digit.
func isName(s string) bool {
	if s == "" || unicode.IsDigit([]rune(s)[0]) {
		return false
	}
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
