package invoice

const (
	// MaxPerPage is the largest page size the provider listing renders.
	MaxPerPage     = 50
	DefaultPerPage = 25
)

// Page is the pagination state of one listing request. It is not a cursor:
// every request is self-contained.
type Page struct {
	Number  int `json:"page"`
	PerPage int `json:"per_page"`
}

// NewPage builds a normalized Page.
func NewPage(number, perPage int) Page {
	return Page{Number: number, PerPage: perPage}.Normalize()
}

// Normalize clamps the page to 1.. and the size to 1..MaxPerPage.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	switch {
	case p.PerPage < 1:
		p.PerPage = DefaultPerPage
	case p.PerPage > MaxPerPage:
		p.PerPage = MaxPerPage
	}
	return p
}
