package listutil

import (
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestParsePageParams verifies defaults and clamping.
func TestParsePageParams(t *testing.T) {
	tests := []struct {
		name string
		q    url.Values
		want PageParams
	}{
		{"defaults", url.Values{}, PageParams{Page: 1, PerPage: DefaultPerPage}},
		{"valid", url.Values{"page": {"3"}, "per_page": {"25"}}, PageParams{Page: 3, PerPage: 25}},
		{"negative page", url.Values{"page": {"-1"}}, PageParams{Page: 1, PerPage: DefaultPerPage}},
		{"garbage per_page", url.Values{"per_page": {"lots"}}, PageParams{Page: 1, PerPage: DefaultPerPage}},
		{"per_page capped", url.Values{"per_page": {"5000"}}, PageParams{Page: 1, PerPage: MaxPerPage}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParsePageParams(tt.q); got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

// TestParseSortParams verifies column allow-listing and the descending prefix.
func TestParseSortParams(t *testing.T) {
	allowed := []string{"amount", "item"}
	tests := []struct {
		raw  string
		want SortParams
	}{
		{"amount", SortParams{Sort: "amount"}},
		{"-item", SortParams{Sort: "item", Desc: true}},
		{"bidder_name; DROP TABLE bid", SortParams{}},
		{"", SortParams{}},
	}
	for _, tt := range tests {
		if got := ParseSortParams(url.Values{"sort": {tt.raw}}, allowed); got != tt.want {
			t.Errorf("ParseSortParams(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
	}
}

// TestParseFilterParams verifies search and filter extraction from query values.
func TestParseFilterParams(t *testing.T) {
	q := url.Values{"q": {" bob "}, "bidder": {"Bob"}, "unknown": {"x"}}
	f := ParseFilterParams(q, []string{"bidder", "item"})
	want := FilterParams{Search: "bob", Filters: map[string]string{"bidder": "Bob"}}
	if diff := cmp.Diff(want, f); diff != "" {
		t.Errorf("filters mismatch (-want +got):\n%s", diff)
	}
}

// TestNewPageInfo verifies pagination metadata computation.
func TestNewPageInfo(t *testing.T) {
	tests := []struct {
		name       string
		page       int
		perPage    int
		total      int
		wantPages  int
		wantPage   int
		wantOffset int
	}{
		{"basic", 1, 20, 85, 5, 1, 0},
		{"page2", 2, 20, 85, 5, 2, 20},
		{"lastPage", 5, 20, 85, 5, 5, 80},
		{"pageBeyondTotal", 10, 20, 85, 5, 5, 80},
		{"emptyList", 1, 20, 0, 1, 1, 0},
		{"exactFit", 1, 10, 10, 1, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pi := NewPageInfo(tt.page, tt.perPage, tt.total)
			if pi.TotalPages != tt.wantPages || pi.Page != tt.wantPage || pi.Offset() != tt.wantOffset {
				t.Errorf("got %+v offset=%d, want pages=%d page=%d offset=%d",
					pi, pi.Offset(), tt.wantPages, tt.wantPage, tt.wantOffset)
			}
		})
	}
}

// TestPaginate verifies slicing at the edges.
func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	tests := []struct {
		name string
		p    PageParams
		want []int
	}{
		{"first", PageParams{Page: 1, PerPage: 2}, []int{1, 2}},
		{"last partial", PageParams{Page: 3, PerPage: 2}, []int{5}},
		{"beyond clamps to last", PageParams{Page: 9, PerPage: 2}, []int{5}},
		{"all", PageParams{Page: 1, PerPage: 10}, []int{1, 2, 3, 4, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, info := Paginate(items, tt.p)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("page mismatch (-want +got):\n%s", diff)
			}
			if info.Total != len(items) {
				t.Errorf("Total = %d", info.Total)
			}
		})
	}

	empty, info := Paginate([]int(nil), PageParams{Page: 2, PerPage: 10})
	if len(empty) != 0 || info.Page != 1 {
		t.Errorf("empty = %v %+v", empty, info)
	}
}
