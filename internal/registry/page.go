package registry

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

type Page[T any] struct {
	Items   []T `json:"items"`
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// Paginate returns one page of items. Pages are 1-based; out of range pages
// yield no items.
func Paginate[T any](items []T, page, perPage int) Page[T] {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	perPage = min(perPage, MaxPerPage)

	p := Page[T]{Items: []T{}, Total: len(items), Page: page, PerPage: perPage}
	// Compare before multiplying so huge page numbers cannot overflow.
	if page-1 >= (len(items)+perPage-1)/perPage {
		return p
	}
	start := (page - 1) * perPage
	end := min(start+perPage, len(items))
	p.Items = items[start:end]
	return p
}
