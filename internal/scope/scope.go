// Package scope provides ambient unit-of-work scopes carried on a context.Context.
//
// A scope optionally wraps a database transaction. Side effects that must only
// happen once the unit of work is durable are enlisted on the scope and run when
// the outermost scope closes, with a flag telling them whether it completed.
// Nested scopes join their parent: they share its transaction and enlistments,
// and closing a nested scope without completing it vetoes the whole unit.
package scope

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	ierrors "github.com/Aman-CERP/contentindex/internal/errors"
)

// Phase orders enlisted callbacks when a scope closes.
type Phase int

const (
	// PhaseInvalidate runs first after the transaction ends. Caches read by
	// later phases are dropped here.
	PhaseInvalidate Phase = iota
	// PhaseAfterCommit runs right after PhaseInvalidate.
	PhaseAfterCommit
	// PhaseBeforeClose runs last, after every PhaseAfterCommit callback.
	PhaseBeforeClose
)

func (p Phase) String() string {
	switch p {
	case PhaseInvalidate:
		return "invalidate"
	case PhaseAfterCommit:
		return "after_commit"
	case PhaseBeforeClose:
		return "before_close"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

type ctxKey struct{}

// Current returns the innermost scope carried by ctx.
func Current(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Scope)
	return s, ok && s != nil
}

// Provider begins scopes. With a nil database no transaction is opened.
type Provider struct {
	db *sql.DB
}

// NewProvider creates a Provider backed by db, which may be nil.
func NewProvider(db *sql.DB) *Provider {
	return &Provider{db: db}
}

// Begin starts a scope and returns a context carrying it. When ctx already
// carries an open scope the new scope is nested inside it.
func (p *Provider) Begin(ctx context.Context) (context.Context, *Scope, error) {
	if parent, ok := Current(ctx); ok {
		if parent.isClosed() {
			return ctx, nil, ierrors.ScopeError(ierrors.ErrCodeScopeMisuse, "cannot nest a scope inside a closed scope")
		}
		s := &Scope{id: uuid.NewString(), root: parent.root, parent: parent}
		return context.WithValue(ctx, ctxKey{}, s), s, nil
	}

	s := &Scope{id: uuid.NewString()}
	s.root = s
	if p.db != nil {
		tx, err := p.db.BeginTx(ctx, nil)
		if err != nil {
			return ctx, nil, ierrors.RepositoryError("begin transaction", err)
		}
		s.tx = tx
	}
	return context.WithValue(ctx, ctxKey{}, s), s, nil
}

// Callback is invoked once when the outermost scope closes.
type Callback func(ctx context.Context, completed bool)

type enlistment struct {
	key   string
	phase Phase
	seq   int
	state any
	run   func(ctx context.Context, completed bool)
}

// Scope is one unit of work. Methods are safe for concurrent use.
type Scope struct {
	id     string
	root   *Scope
	parent *Scope
	tx     *sql.Tx

	mu        sync.Mutex
	completed bool
	closed    bool

	// Only used on the root scope.
	vetoed      bool
	enlistments map[string]*enlistment
}

// ID returns the scope's unique id.
func (s *Scope) ID() string {
	return s.id
}

// IsRoot reports whether s is the outermost scope.
func (s *Scope) IsRoot() bool {
	return s.root == s
}

// Tx returns the transaction shared by the unit of work, or nil.
func (s *Scope) Tx() *sql.Tx {
	return s.root.tx
}

// Complete marks the scope as successful. It must be called before Close for
// the unit of work to commit.
func (s *Scope) Complete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ierrors.ScopeError(ierrors.ErrCodeScopeMisuse, "cannot complete a closed scope")
	}
	s.completed = true
	return nil
}

func (s *Scope) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Enlist registers state under key on the unit of work. The first call for a
// key creates the state and registers run; later calls return the same state.
// run receives the state once the outermost scope closes.
func Enlist[T any](s *Scope, key string, phase Phase, create func() T, run func(ctx context.Context, completed bool, state T)) (T, error) {
	var zero T

	s.mu.Lock()
	closed, completed := s.closed, s.completed
	s.mu.Unlock()
	if closed {
		return zero, ierrors.ScopeError(ierrors.ErrCodeScopeMisuse, "cannot enlist on a closed scope")
	}
	if completed {
		return zero, ierrors.ScopeError(ierrors.ErrCodeScopeCompleted, "cannot enlist on a completed scope")
	}

	root := s.root
	root.mu.Lock()
	defer root.mu.Unlock()

	if root.closed {
		return zero, ierrors.ScopeError(ierrors.ErrCodeScopeMisuse, "cannot enlist on a closed scope")
	}
	if e, ok := root.enlistments[key]; ok {
		state, ok := e.state.(T)
		if !ok {
			return zero, ierrors.ScopeError(ierrors.ErrCodeScopeMisuse,
				fmt.Sprintf("enlistment %q already holds %T", key, e.state))
		}
		return state, nil
	}

	if root.enlistments == nil {
		root.enlistments = make(map[string]*enlistment)
	}
	state := create()
	root.enlistments[key] = &enlistment{
		key:   key,
		phase: phase,
		seq:   len(root.enlistments),
		state: state,
		run: func(ctx context.Context, completed bool) {
			run(ctx, completed, state)
		},
	}
	return state, nil
}

// Lookup returns the state enlisted under key on the unit of work, if any.
func Lookup[T any](s *Scope, key string) (T, bool) {
	var zero T
	root := s.root
	root.mu.Lock()
	defer root.mu.Unlock()

	e, ok := root.enlistments[key]
	if !ok {
		return zero, false
	}
	state, ok := e.state.(T)
	return state, ok
}

// EnlistOnCompletion registers a callback under key. A key already present is
// left untouched.
func (s *Scope) EnlistOnCompletion(key string, phase Phase, cb Callback) error {
	_, err := Enlist(s, key, phase, func() Callback { return cb }, func(ctx context.Context, completed bool, cb Callback) {
		cb(ctx, completed)
	})
	return err
}

// Close ends the scope. Closing a nested scope that was not completed vetoes
// the unit of work. Closing the outermost scope commits or rolls back the
// transaction and then runs enlisted callbacks in phase order. A failed commit
// is reported to callbacks as not completed and returned.
func (s *Scope) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ierrors.ScopeError(ierrors.ErrCodeScopeMisuse, "scope already closed")
	}
	s.closed = true
	completed := s.completed
	s.mu.Unlock()

	if !s.IsRoot() {
		if !completed {
			s.root.mu.Lock()
			s.root.vetoed = true
			s.root.mu.Unlock()
		}
		return nil
	}

	s.mu.Lock()
	completed = completed && !s.vetoed
	pending := make([]*enlistment, 0, len(s.enlistments))
	for _, e := range s.enlistments {
		pending = append(pending, e)
	}
	s.mu.Unlock()

	var closeErr error
	if s.tx != nil {
		if completed {
			if err := s.tx.Commit(); err != nil {
				closeErr = ierrors.RepositoryError("commit transaction", err)
				completed = false
			}
		} else if err := s.tx.Rollback(); err != nil {
			slog.Warn("scope_rollback_failed",
				slog.String("scope_id", s.id),
				slog.String("error", err.Error()))
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		if pending[i].phase != pending[j].phase {
			return pending[i].phase < pending[j].phase
		}
		return pending[i].seq < pending[j].seq
	})

	cbCtx := context.WithoutCancel(ctx)
	for _, e := range pending {
		s.runEnlistment(cbCtx, e, completed)
	}

	slog.Debug("scope_closed",
		slog.String("scope_id", s.id),
		slog.Bool("completed", completed),
		slog.Int("enlistments", len(pending)))

	return closeErr
}

func (s *Scope) runEnlistment(ctx context.Context, e *enlistment, completed bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scope_callback_panicked",
				slog.String("scope_id", s.id),
				slog.String("key", e.key),
				slog.String("phase", e.phase.String()),
				slog.Any("panic", r))
		}
	}()
	e.run(ctx, completed)
}
