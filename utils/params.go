package utils

import (
	"net/http"
	"strconv"
	"strings"
)

type QueryOptions struct {
	Page     int
	PerPage  int
	Search   string
	Category string
	Sort     string
	Status   string
}

// Skip is the number of documents before the current page.
func (q QueryOptions) Skip() int64 {
	return int64((q.Page - 1) * q.PerPage)
}

// ParseQueryOptions reads page/per_page (clamped to maxPerPage) and filters.
func ParseQueryOptions(r *http.Request, defPerPage, maxPerPage int) QueryOptions {
	q := r.URL.Query()

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}

	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if perPage < 1 {
		perPage = defPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	return QueryOptions{
		Page:     page,
		PerPage:  perPage,
		Search:   strings.TrimSpace(q.Get("q")),
		Category: strings.TrimSpace(q.Get("category")),
		Sort:     q.Get("sort"),
		Status:   strings.ToLower(strings.TrimSpace(q.Get("status"))),
	}
}

// ParseID parses a positive integer path parameter.
func ParseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
