package service

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

// Page is a skip/limit window over an ordered listing.
type Page struct {
	Skip  int
	Limit int
}

func (p Page) bounds() (offset, limit int) {
	offset = p.Skip
	if offset < 0 {
		offset = 0
	}
	limit = p.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return offset, limit
}
