package common

import (
	"net/http"
	"strconv"
)

// MaxPerPage caps the limit query parameter.
const MaxPerPage = 100

// Pagination is the metadata block returned next to list data.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// PageParams is a parsed ?page=&limit= pair.
type PageParams struct {
	Page    int
	PerPage int
}

// Offset converts the page number into a row offset.
func (p PageParams) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PerPage
}

// Meta builds the response metadata for a result set of total rows.
func (p PageParams) Meta(total int64) Pagination {
	pages := 0
	if p.PerPage > 0 {
		pages = int((total + int64(p.PerPage) - 1) / int64(p.PerPage))
	}
	return Pagination{Page: p.Page, PerPage: p.PerPage, TotalItems: int(total), TotalPages: pages}
}

// ParsePagination reads page and limit from the query string. Invalid values
// fall back to page 1 and defaultPerPage; limit is capped at MaxPerPage.
func ParsePagination(r *http.Request, defaultPerPage int) PageParams {
	q := r.URL.Query()
	p := PageParams{Page: 1, PerPage: defaultPerPage}
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		p.PerPage = v
	}
	p.PerPage = min(p.PerPage, MaxPerPage)
	return p
}
