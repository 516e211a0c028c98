package model

import (
	"context"
	"fmt"
)

// Page is one page of a paginated query
type Page struct {
	Items       []*Entity `json:"data"`
	Total       int64     `json:"total"`
	PerPage     int       `json:"per_page"`
	CurrentPage int       `json:"current_page"`
	LastPage    int       `json:"last_page"`
	// From and To are the 1-based row indices of the page; nil when empty
	From *int `json:"from"`
	To   *int `json:"to"`
}

// Paginate runs a count query and one page-window query
func (q *Query) Paginate(ctx context.Context, perPage, page int) (*Page, error) {
	if perPage <= 0 {
		return nil, fmt.Errorf("per page must be positive, got %d", perPage)
	}
	if page < 1 {
		page = 1
	}

	total, err := q.Count(ctx)
	if err != nil {
		return nil, err
	}

	b, err := q.prepared(ctx)
	if err != nil {
		return nil, err
	}
	items, err := q.run(ctx, b.ForPage(page, perPage))
	if err != nil {
		return nil, err
	}

	p := &Page{
		Items:       items,
		Total:       total,
		PerPage:     perPage,
		CurrentPage: page,
		LastPage:    int((total + int64(perPage) - 1) / int64(perPage)),
	}
	if len(items) > 0 {
		from := (page-1)*perPage + 1
		to := from + len(items) - 1
		p.From, p.To = &from, &to
	}
	return p, nil
}

// Chunk runs the query in page windows of size rows and passes each batch
// to fn. Iteration ends when fn returns false, or after a short batch.
// Windows are offset based: rows inserted or deleted during iteration can
// be skipped or seen twice.
func (q *Query) Chunk(ctx context.Context, size int, fn func(ctx context.Context, batch []*Entity) (bool, error)) error {
	if size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", size)
	}

	base := q.Clone()
	if !base.ordered && base.typ != nil {
		base.OrderBy(base.typ.qualify(base.typ.desc.PrimaryKey), "asc")
	}

	for page := 1; ; page++ {
		b, err := base.prepared(ctx)
		if err != nil {
			return err
		}
		batch, err := base.run(ctx, b.ForPage(page, size))
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		more, err := fn(ctx, batch)
		if err != nil {
			return err
		}
		if !more || len(batch) < size {
			return nil
		}
	}
}

// Each walks the query entity by entity, loading size rows at a time.
// Returning false from fn stops the walk.
func (q *Query) Each(ctx context.Context, size int, fn func(ctx context.Context, e *Entity) (bool, error)) error {
	return q.Chunk(ctx, size, func(ctx context.Context, batch []*Entity) (bool, error) {
		for _, e := range batch {
			more, err := fn(ctx, e)
			if err != nil || !more {
				return false, err
			}
		}
		return true, nil
	})
}
