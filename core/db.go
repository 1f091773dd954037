package core

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// Pagination is a 1-based page request.
type Pagination struct {
	Page    int
	PerPage int
}

func (p Pagination) Normalize(defaultPerPage int) Pagination {
	if p.PerPage <= 0 {
		p.PerPage = defaultPerPage
	}
	if p.Page <= 0 {
		p.Page = 1
	}
	return p
}

func (p Pagination) Offset() int { return (p.Page - 1) * p.PerPage }

type PageInfo struct {
	Page     int  `json:"page"`
	NumPages int  `json:"num_pages"`
	Total    int  `json:"total"`
	HasNext  bool `json:"has_next"`
	HasPrev  bool `json:"has_previous"`
}

// NewPageInfo clamps p to the available pages.
func NewPageInfo(p Pagination, total int) PageInfo {
	numPages := 1
	if total > 0 && p.PerPage > 0 {
		numPages = (total + p.PerPage - 1) / p.PerPage
	}
	page := p.Page
	if page > numPages {
		page = numPages
	}
	if page < 1 {
		page = 1
	}
	return PageInfo{
		Page:     page,
		NumPages: numPages,
		Total:    total,
		HasNext:  page < numPages,
		HasPrev:  page > 1,
	}
}
