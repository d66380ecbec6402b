package repository

const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Sortable flag listing columns. Anything else falls back to SortByName
// so request input can never reach the ORDER BY clause verbatim.
type SortField string

const (
	SortByName      SortField = "name"
	SortByType      SortField = "flag_type"
	SortByUpdatedAt SortField = "updated_at"
)

type PageRequest struct {
	Page     int
	PageSize int
	Sort     SortField
}

type PageResult[T any] struct {
	Items      []T
	Page       int
	PageSize   int
	Total      int64
	TotalPages int
}

func (p PageResult[T]) HasNext() bool {
	return p.Page < p.TotalPages
}

func (p PageRequest) offset() int {
	return (p.Page - 1) * p.PageSize
}

func (p PageRequest) orderClause() string {
	switch p.Sort {
	case SortByType:
		return "flag_type asc, name asc"
	case SortByUpdatedAt:
		return "updated_at desc, name asc"
	default:
		return "name asc"
	}
}

func normalizePageRequest(in PageRequest) PageRequest {
	out := in
	if out.Page < 1 {
		out.Page = DefaultPage
	}
	if out.PageSize < 1 {
		out.PageSize = DefaultPageSize
	}
	if out.PageSize > MaxPageSize {
		out.PageSize = MaxPageSize
	}
	switch out.Sort {
	case SortByName, SortByType, SortByUpdatedAt:
	default:
		out.Sort = SortByName
	}
	return out
}

func calcTotalPages(total int64, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	ps := int64(pageSize)
	pages := total / ps
	if total%ps != 0 {
		pages++
	}
	maxInt := int64(^uint(0) >> 1)
	if pages > maxInt {
		return int(maxInt)
	}
	return int(pages)
}
