package shared

// Pagination describes the page window requested by a client.
type Pagination struct {
	Page    int
	PerPage int
}

// Normalize clamps the window to sane bounds.
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = 20
	}
	if p.PerPage > 100 {
		p.PerPage = 100
	}
	return p
}

// Offset returns the row offset for the window.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// TotalPages computes the page count for total rows.
func (p Pagination) TotalPages(total int) int {
	if p.PerPage == 0 {
		return 0
	}
	return (total + p.PerPage - 1) / p.PerPage
}
