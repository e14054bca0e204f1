package shared

import "math"

const (
	// DefaultPerPage is used when no limit is requested.
	DefaultPerPage = 10
	// MaxPerPage caps listing sizes.
	MaxPerPage = 100
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Offset     int `json:"offset"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Offset: (page - 1) * perPage, Total: total, TotalPages: totalPages}
}

// Window resolves page/skip/limit query values into a limit and offset.
// An explicit page wins over skip.
func Window(page, skip, limit int) (int, int) {
	if limit <= 0 {
		limit = DefaultPerPage
	}
	if limit > MaxPerPage {
		limit = MaxPerPage
	}
	if page > 0 {
		return limit, (page - 1) * limit
	}
	if skip < 0 {
		skip = 0
	}
	return limit, skip
}
