// Package listutil parses paging, sorting and filter query parameters for
// list endpoints such as the admin member roster.
package listutil

import (
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// DefaultPerPage is the default number of rows per page.
const DefaultPerPage = 20

// PerPageOptions are the allowed rows-per-page values.
var PerPageOptions = []int{10, 20, 50, 100}

// PageParams is the requested page.
type PageParams struct {
	Page    int // 1-indexed
	PerPage int
}

// SortParams is the requested ordering. Sort is empty when the caller asked
// for a column that is not allowed.
type SortParams struct {
	Sort string
	Dir  string // "asc" or "desc"
}

// FilterParams carries free-text search and exact-match filters.
type FilterParams struct {
	Search  string
	Filters map[string]string // e.g. access_level=lirf
}

// ListParams combines all list view parameters.
type ListParams struct {
	PageParams
	SortParams
	FilterParams
}

// PageInfo is the pagination block of a list response.
type PageInfo struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
}

// ParseListParams reads page, per_page, sort, dir, q and the named filters.
// PRE: sortable and filterKeys list the accepted column and filter names
// POST: Unknown or malformed values fall back to defaults; unknown filters are dropped
func ParseListParams(q url.Values, sortable, filterKeys []string) ListParams {
	lp := ListParams{
		PageParams: PageParams{Page: 1, PerPage: DefaultPerPage},
		SortParams: SortParams{Dir: "asc"},
		FilterParams: FilterParams{
			Search:  strings.TrimSpace(q.Get("q")),
			Filters: make(map[string]string),
		},
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 1 {
		lp.Page = page
	}
	if perPage, err := strconv.Atoi(q.Get("per_page")); err == nil && slices.Contains(PerPageOptions, perPage) {
		lp.PerPage = perPage
	}
	if col := q.Get("sort"); slices.Contains(sortable, col) {
		lp.Sort = col
	}
	if q.Get("dir") == "desc" {
		lp.Dir = "desc"
	}
	for _, key := range filterKeys {
		if v := q.Get(key); v != "" {
			lp.Filters[key] = v
		}
	}
	return lp
}

// NewPageInfo computes pagination metadata, clamping page into range.
// PRE: total >= 0
// POST: 1 <= Page <= TotalPages; TotalPages is 1 for an empty list
func NewPageInfo(page, perPage, total int) PageInfo {
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	totalPages := max((total+perPage-1)/perPage, 1)
	page = min(max(page, 1), totalPages)
	return PageInfo{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// Offset returns the SQL OFFSET for the current page.
func (p PageInfo) Offset() int {
	return (p.Page - 1) * p.PerPage
}
