package listutil

import (
	"net/url"
	"strconv"
	"strings"
)

// Time filters accepted as ?when= on list endpoints.
const (
	WhenAll      = "all"
	WhenUpcoming = "upcoming"
	WhenPast     = "past"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// PageParams is the requested page, 1-indexed.
type PageParams struct {
	Page    int
	PerPage int
}

// FilterParams is the ?q= search and the ?when= time filter.
type FilterParams struct {
	Search string
	When   string
}

type ListParams struct {
	PageParams
	FilterParams
}

// PageInfo describes the page actually served. Prev and Next are page numbers,
// zero when there is none.
type PageInfo struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
	Prev       int `json:"prev,omitempty"`
	Next       int `json:"next,omitempty"`
}

// ParsePageParams reads ?page= and ?per_page=. Missing or unusable values fall
// back to page 1 and DefaultPerPage; per_page above MaxPerPage is capped.
func ParsePageParams(q url.Values) PageParams {
	p := PageParams{Page: 1, PerPage: DefaultPerPage}
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		p.Page = n
	}
	if n, err := strconv.Atoi(q.Get("per_page")); err == nil && n > 0 {
		p.PerPage = min(n, MaxPerPage)
	}
	return p
}

// ParseFilterParams reads ?q= and ?when=.
// POST: When is one of the When constants, defaultWhen when absent or unknown
func ParseFilterParams(q url.Values, defaultWhen string) FilterParams {
	f := FilterParams{Search: strings.TrimSpace(q.Get("q")), When: defaultWhen}
	switch when := strings.ToLower(strings.TrimSpace(q.Get("when"))); when {
	case WhenAll, WhenUpcoming, WhenPast:
		f.When = when
	}
	return f
}

func ParseListParams(q url.Values, defaultWhen string) ListParams {
	return ListParams{ParsePageParams(q), ParseFilterParams(q, defaultWhen)}
}

// NewPageInfo clamps page into the range that total rows allow.
// POST: 1 <= Page <= TotalPages
func NewPageInfo(page, perPage, total int) PageInfo {
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	pages := max(1, (total+perPage-1)/perPage)
	info := PageInfo{
		Page:       min(max(page, 1), pages),
		PerPage:    perPage,
		Total:      total,
		TotalPages: pages,
	}
	if info.Page > 1 {
		info.Prev = info.Page - 1
	}
	if info.Page < pages {
		info.Next = info.Page + 1
	}
	return info
}

// Offset is the number of rows before this page.
func (p PageInfo) Offset() int {
	return (p.Page - 1) * p.PerPage
}
