package content

import (
	"context"
	"errors"
	"fmt"

	ierrors "github.com/Aman-CERP/contentindex/internal/errors"
	"github.com/Aman-CERP/contentindex/internal/valueset"
)

// Source reads entities through their own read unit and builds value sets.
type Source struct {
	repo *Repository
}

// NewSource creates a Source over repo.
func NewSource(repo *Repository) *Source {
	return &Source{repo: repo}
}

// Load builds the value sets of one entity. A missing entity, or one of another
// category, yields no value sets and no error.
func (s *Source) Load(ctx context.Context, category valueset.Category, id int) ([]*valueset.ValueSet, error) {
	b, ok := BuilderFor(category)
	if !ok {
		return nil, ierrors.InvalidInput(fmt.Sprintf("unknown category %q", category))
	}

	unit, err := s.repo.BeginRead(ctx)
	if err != nil {
		return nil, err
	}
	defer unit.Close()

	e, err := unit.Get(ctx, id)
	if errors.Is(err, ierrors.ErrEntityNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if e.Category != category {
		return nil, nil
	}
	return b.Build(e), nil
}

// Scan builds value sets for up to limit entities of category after afterID.
// next is the last entity id read, or 0 when the category is exhausted.
func (s *Source) Scan(ctx context.Context, category valueset.Category, afterID, limit int) (sets []*valueset.ValueSet, next int, err error) {
	b, ok := BuilderFor(category)
	if !ok {
		return nil, 0, ierrors.InvalidInput(fmt.Sprintf("unknown category %q", category))
	}

	unit, err := s.repo.BeginRead(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer unit.Close()

	entities, err := unit.List(ctx, category, afterID, limit)
	if err != nil {
		return nil, 0, err
	}
	for _, e := range entities {
		sets = append(sets, b.Build(e)...)
		next = e.ID
	}
	if len(entities) < limit {
		return sets, 0, nil
	}
	return sets, next, nil
}

// Count returns the number of entities of category.
func (s *Source) Count(ctx context.Context, category valueset.Category) (int, error) {
	return s.repo.Count(ctx, category)
}
