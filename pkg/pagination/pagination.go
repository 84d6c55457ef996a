// Package pagination reads page windows from list requests and describes the
// page a query returned.
package pagination

import (
	"net/http"
	"strconv"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Params is a page window. Offset is derived from Page and PerPage.
type Params struct {
	Page    int
	PerPage int
	Offset  int
}

// DefaultParams is the first page at the default size.
func DefaultParams() Params {
	return Params{Page: 1, PerPage: DefaultPerPage}
}

// FromRequest reads the page and perPage query parameters. Unparsable or
// non-positive values fall back to the defaults; oversized pages are clamped.
func FromRequest(r *http.Request) Params {
	q := r.URL.Query()
	p := DefaultParams()
	if v := positive(q.Get("page")); v > 0 {
		p.Page = v
	}
	if v := positive(q.Get("perPage")); v > 0 {
		p.PerPage = min(v, MaxPerPage)
	}
	p.Offset = (p.Page - 1) * p.PerPage
	return p
}

func positive(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return 0
	}
	return v
}

// Result is one page of items plus the totals needed to navigate.
type Result[T any] struct {
	Data       []T
	TotalCount int
	Page       int
	PerPage    int
	TotalPages int
	HasNext    bool
	HasPrev    bool
}

// NewResult builds the page description for items out of total.
func NewResult[T any](items []T, total int, p Params) Result[T] {
	if p.PerPage <= 0 {
		p.PerPage = DefaultPerPage
	}
	pages := (total + p.PerPage - 1) / p.PerPage
	return Result[T]{
		Data:       items,
		TotalCount: total,
		Page:       p.Page,
		PerPage:    p.PerPage,
		TotalPages: pages,
		HasNext:    p.Page < pages,
		HasPrev:    p.Page > 1,
	}
}
