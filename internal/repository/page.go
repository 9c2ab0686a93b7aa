package repository

import (
	sq "github.com/Masterminds/squirrel"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Page selects a window of a listing. Page numbers start at 0.
type Page struct {
	Number int
	Size   int
}

// Normalize clamps the page to valid bounds.
func (p Page) Normalize() Page {
	if p.Number < 0 {
		p.Number = 0
	}
	if p.Size <= 0 {
		p.Size = defaultPageSize
	}
	if p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	return p
}

func (p Page) apply(b sq.SelectBuilder) sq.SelectBuilder {
	p = p.Normalize()
	return b.Limit(uint64(p.Size)).Offset(uint64(p.Number * p.Size))
}
