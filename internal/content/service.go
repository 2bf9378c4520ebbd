package content

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	ierrors "github.com/Aman-CERP/contentindex/internal/errors"
	"github.com/Aman-CERP/contentindex/internal/scope"
	"github.com/Aman-CERP/contentindex/internal/valueset"
)

// ChangeHandler receives the change notifications raised by Service.
type ChangeHandler interface {
	Reindex(ctx context.Context, category valueset.Category, id int, published bool) error
	DeleteFromIndex(ctx context.Context, ids []string, keepIfUnpublished bool) error
	DeleteDocumentsForContentTypes(ctx context.Context, typeIDs []int) error
}

// Invalidator drops cached access decisions.
type Invalidator interface {
	Invalidate()
}

// Service performs content operations inside a unit of work and notifies the
// ChangeHandler. Notifications raised inside a scope are only acted upon when
// the scope commits.
type Service struct {
	repo    *Repository
	scopes  *scope.Provider
	handler ChangeHandler
	access  Invalidator
}

// NewService creates a Service. access may be nil.
func NewService(repo *Repository, scopes *scope.Provider, handler ChangeHandler, access Invalidator) *Service {
	return &Service{repo: repo, scopes: scopes, handler: handler, access: access}
}

// Repository returns the underlying repository.
func (s *Service) Repository() *Repository {
	return s.repo
}

// inScope runs fn in a unit of work that commits when fn succeeds.
func (s *Service) inScope(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	ctx, sc, err := s.scopes.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := sc.Close(ctx); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := fn(ctx); err != nil {
		return err
	}
	return sc.Complete()
}

// Save persists e and reindexes it with its current publish state.
func (s *Service) Save(ctx context.Context, e *Entity) error {
	return s.inScope(ctx, func(ctx context.Context) error {
		if err := s.repo.Save(ctx, e); err != nil {
			return err
		}
		return s.handler.Reindex(ctx, e.Category, e.ID, e.Published)
	})
}

// Publish marks content published, optionally for specific cultures only, and reindexes it.
func (s *Service) Publish(ctx context.Context, id int, cultures ...string) error {
	return s.inScope(ctx, func(ctx context.Context) error {
		e, err := s.requireContent(ctx, id)
		if err != nil {
			return err
		}
		if e.IsTrashed() {
			return ierrors.InvalidInput(fmt.Sprintf("cannot publish trashed content %d", id))
		}

		e.Published = true
		if e.VariesByCulture {
			if e.Cultures == nil {
				e.Cultures = make(map[string]Culture)
			}
			if len(cultures) == 0 {
				for c := range e.Cultures {
					cultures = append(cultures, c)
				}
			}
			for _, c := range cultures {
				cs := e.Cultures[c]
				cs.Published = true
				e.Cultures[c] = cs
			}
		}
		if err := s.repo.Save(ctx, e); err != nil {
			return err
		}
		return s.handler.Reindex(ctx, e.Category, e.ID, true)
	})
}

// Unpublish takes content and its descendants out of published-only indexes
// and reindexes the node as unpublished.
func (s *Service) Unpublish(ctx context.Context, id int) error {
	return s.inScope(ctx, func(ctx context.Context) error {
		e, err := s.requireContent(ctx, id)
		if err != nil {
			return err
		}
		e.Published = false
		for c, cs := range e.Cultures {
			cs.Published = false
			e.Cultures[c] = cs
		}
		if err := s.repo.Save(ctx, e); err != nil {
			return err
		}

		ids, err := s.subtreeIDs(ctx, e.ID)
		if err != nil {
			return err
		}
		if err := s.handler.DeleteFromIndex(ctx, ids, true); err != nil {
			return err
		}
		return s.handler.Reindex(ctx, e.Category, e.ID, false)
	})
}

// MoveToRecycleBin moves an entity and its subtree into the category's recycle bin.
// Trashed content leaves every index; trashed media leaves published-only indexes
// and is reindexed so the remaining indexes see its new location.
func (s *Service) MoveToRecycleBin(ctx context.Context, id int) error {
	return s.inScope(ctx, func(ctx context.Context) error {
		e, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		bin, ok := valueset.RecycleBinFor(e.Category)
		if !ok {
			return ierrors.InvalidInput(fmt.Sprintf("%s has no recycle bin", e.Category))
		}

		ids, err := s.subtreeIDs(ctx, e.ID)
		if err != nil {
			return err
		}
		moved, err := s.repo.Move(ctx, e.ID, bin)
		if err != nil {
			return err
		}

		slog.Debug("moved_to_recycle_bin",
			slog.Int("entity_id", moved.ID),
			slog.String("category", string(moved.Category)),
			slog.Int("subtree", len(ids)))

		if moved.Category == valueset.CategoryContent {
			return s.handler.DeleteFromIndex(ctx, ids, false)
		}
		if err := s.handler.DeleteFromIndex(ctx, ids, true); err != nil {
			return err
		}
		return s.handler.Reindex(ctx, moved.Category, moved.ID, moved.Published)
	})
}

// Restore moves a trashed entity back under parentID and reindexes its subtree.
func (s *Service) Restore(ctx context.Context, id, parentID int) error {
	return s.inScope(ctx, func(ctx context.Context) error {
		moved, err := s.repo.Move(ctx, id, parentID)
		if err != nil {
			return err
		}
		return s.reindexSubtree(ctx, moved)
	})
}

// Delete removes an entity and its subtree from the repository and every index.
func (s *Service) Delete(ctx context.Context, id int) error {
	return s.inScope(ctx, func(ctx context.Context) error {
		removed, err := s.repo.Delete(ctx, id)
		if err != nil {
			return err
		}
		return s.handler.DeleteFromIndex(ctx, itoas(removed), false)
	})
}

// SaveMember persists a member and reindexes it. Approved members count as published.
func (s *Service) SaveMember(ctx context.Context, m *Entity) error {
	if m.Category == "" {
		m.Category = valueset.CategoryMember
	}
	if m.Category != valueset.CategoryMember {
		return ierrors.InvalidInput(fmt.Sprintf("entity %d is not a member", m.ID))
	}
	return s.Save(ctx, m)
}

// DeleteMember removes a member from the repository and every index.
func (s *Service) DeleteMember(ctx context.Context, id int) error {
	return s.Delete(ctx, id)
}

// Protect adds an access rule on content. The subtree leaves published-only
// indexes and is reindexed so each index applies its own protection setting.
func (s *Service) Protect(ctx context.Context, id int) error {
	return s.inScope(ctx, func(ctx context.Context) error {
		e, err := s.requireContent(ctx, id)
		if err != nil {
			return err
		}
		if err := s.repo.Protect(ctx, id); err != nil {
			return err
		}
		if err := s.invalidateAccess(ctx); err != nil {
			return err
		}

		ids, err := s.subtreeIDs(ctx, e.ID)
		if err != nil {
			return err
		}
		if err := s.handler.DeleteFromIndex(ctx, ids, true); err != nil {
			return err
		}
		return s.reindexSubtree(ctx, e)
	})
}

// Unprotect removes the access rule on content and reindexes the subtree.
func (s *Service) Unprotect(ctx context.Context, id int) error {
	return s.inScope(ctx, func(ctx context.Context) error {
		e, err := s.requireContent(ctx, id)
		if err != nil {
			return err
		}
		if err := s.repo.Unprotect(ctx, id); err != nil {
			return err
		}
		if err := s.invalidateAccess(ctx); err != nil {
			return err
		}
		return s.reindexSubtree(ctx, e)
	})
}

// DeleteContentType removes every entity of typeID and purges their documents
// from the indexes. The purge runs synchronously after the repository commit.
func (s *Service) DeleteContentType(ctx context.Context, typeID int) error {
	err := s.inScope(ctx, func(ctx context.Context) error {
		ids, err := s.repo.IDsByType(ctx, typeID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := s.repo.Delete(ctx, id); err != nil && !isNotFound(err) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.handler.DeleteDocumentsForContentTypes(ctx, []int{typeID})
}

func (s *Service) requireContent(ctx context.Context, id int) (*Entity, error) {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Category != valueset.CategoryContent {
		return nil, ierrors.InvalidInput(fmt.Sprintf("entity %d is %s, not content", id, e.Category))
	}
	return e, nil
}

func (s *Service) subtreeIDs(ctx context.Context, id int) ([]string, error) {
	desc, err := s.repo.Descendants(ctx, id)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(desc)+1)
	ids = append(ids, strconv.Itoa(id))
	for _, d := range desc {
		ids = append(ids, strconv.Itoa(d.ID))
	}
	return ids, nil
}

func (s *Service) reindexSubtree(ctx context.Context, e *Entity) error {
	if err := s.handler.Reindex(ctx, e.Category, e.ID, e.Published); err != nil {
		return err
	}
	desc, err := s.repo.Descendants(ctx, e.ID)
	if err != nil {
		return err
	}
	for _, d := range desc {
		if err := s.handler.Reindex(ctx, d.Category, d.ID, d.Published); err != nil {
			return err
		}
	}
	return nil
}

// accessInvalidateKey names the access-cache enlistment on a scope.
const accessInvalidateKey = "contentindex.access-invalidate"

// invalidateAccess drops cached access decisions now and again once the scope
// ends, before deferred indexing runs.
func (s *Service) invalidateAccess(ctx context.Context) error {
	if s.access == nil {
		return nil
	}
	s.access.Invalidate()
	sc, ok := scope.Current(ctx)
	if !ok {
		return nil
	}
	return sc.EnlistOnCompletion(accessInvalidateKey, scope.PhaseInvalidate, func(context.Context, bool) {
		s.access.Invalidate()
	})
}

func isNotFound(err error) bool {
	return ierrors.GetCode(err) == ierrors.ErrCodeEntityNotFound
}

func itoas(ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.Itoa(id)
	}
	return out
}
