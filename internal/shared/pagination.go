package shared

const (
	// DefaultPerPage applies when a listing request omits per_page.
	DefaultPerPage = 20
	// MaxPerPage caps per_page.
	MaxPerPage = 100
)

// Pagination is the page envelope returned with list responses.
type Pagination struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
}

// NewPagination clamps page and perPage and derives the page count.
func NewPagination(page, perPage, total int) Pagination {
	switch {
	case perPage <= 0:
		perPage = DefaultPerPage
	case perPage > MaxPerPage:
		perPage = MaxPerPage
	}
	page = max(page, 1)
	total = max(total, 0)
	pages := (total + perPage - 1) / perPage
	return Pagination{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: pages,
		HasNext:    page < pages,
	}
}

// Offset returns the number of rows to skip for the current page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}
