package bidparse

import "strings"

// SellerFilter recognises names belonging to the listing owner.
type SellerFilter struct {
	aliases []string // lower-cased, non-empty
}

// NewSellerFilter builds a filter from configured seller aliases.
// Blank aliases are ignored so an empty config never filters every bidder.
func NewSellerFilter(aliases []string) SellerFilter {
	f := SellerFilter{}
	for _, a := range aliases {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			f.aliases = append(f.aliases, a)
		}
	}
	return f
}

// IsSeller reports whether name contains any seller alias, ignoring case.
func (f SellerFilter) IsSeller(name string) bool {
	lower := strings.ToLower(name)
	for _, a := range f.aliases {
		if strings.Contains(lower, a) {
			return true
		}
	}
	return false
}
