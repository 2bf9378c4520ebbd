// Package deferred holds indexing side effects back until the ambient unit of
// work commits. Actions enlisted within one scope run once, in enlistment order,
// after a successful commit and are discarded otherwise. Without an active scope
// an action runs immediately.
package deferred

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Aman-CERP/contentindex/internal/scope"
	"github.com/Aman-CERP/contentindex/internal/valueset"
)

// EnlistKey prefixes each coordinator's enlistment key on a scope.
const EnlistKey = "contentindex.deferred-actions"

var coordinatorSeq atomic.Uint64

// Action is a pending indexing side effect. The set of actions is closed:
// ReindexEntity and DeleteFromIndex.
type Action interface {
	isAction()
	fmt.Stringer
}

// ReindexEntity rebuilds the documents of one entity.
type ReindexEntity struct {
	Category  valueset.Category
	EntityID  int
	Published bool
}

func (ReindexEntity) isAction() {}

func (a ReindexEntity) String() string {
	return fmt.Sprintf("reindex %s %d (published=%t)", a.Category, a.EntityID, a.Published)
}

// DeleteFromIndex removes documents by id.
type DeleteFromIndex struct {
	IDs               []string
	KeepIfUnpublished bool
}

func (DeleteFromIndex) isAction() {}

func (a DeleteFromIndex) String() string {
	return fmt.Sprintf("delete %d ids (keepIfUnpublished=%t)", len(a.IDs), a.KeepIfUnpublished)
}

// Executor performs actions once they are due.
type Executor interface {
	ExecuteReindex(ctx context.Context, a ReindexEntity) error
	ExecuteDelete(ctx context.Context, a DeleteFromIndex) error
}

// Stats counts actions by outcome.
type Stats struct {
	Immediate int64 `json:"immediate"`
	Fired     int64 `json:"fired"`
	Discarded int64 `json:"discarded"`
	Errors    int64 `json:"errors"`
}

// Coordinator enlists actions on the ambient scope.
type Coordinator struct {
	exec Executor
	key  string

	immediate atomic.Int64
	fired     atomic.Int64
	discarded atomic.Int64
	errors    atomic.Int64
}

// NewCoordinator creates a Coordinator dispatching to exec.
func NewCoordinator(exec Executor) *Coordinator {
	return &Coordinator{
		exec: exec,
		key:  fmt.Sprintf("%s/%d", EnlistKey, coordinatorSeq.Add(1)),
	}
}

// actionList is the per-scope state shared by every enlistment of one coordinator.
type actionList struct {
	mu      sync.Mutex
	actions []Action
}

func (l *actionList) add(a Action) {
	l.mu.Lock()
	l.actions = append(l.actions, a)
	l.mu.Unlock()
}

func (l *actionList) drain() []Action {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.actions
	l.actions = nil
	return out
}

// Enlist defers a to the scope carried by ctx. Without a scope, a runs
// immediately and its error is returned. Scope misuse errors are returned
// unchanged.
func (c *Coordinator) Enlist(ctx context.Context, a Action) error {
	s, ok := scope.Current(ctx)
	if !ok {
		c.immediate.Add(1)
		return c.dispatch(ctx, a)
	}

	list, err := scope.Enlist(s, c.key, scope.PhaseAfterCommit,
		func() *actionList { return &actionList{} },
		func(ctx context.Context, completed bool, l *actionList) {
			c.complete(ctx, s.ID(), completed, l.drain())
		})
	if err != nil {
		return err
	}
	list.add(a)
	return nil
}

func (c *Coordinator) complete(ctx context.Context, scopeID string, completed bool, actions []Action) {
	if !completed {
		c.discarded.Add(int64(len(actions)))
		slog.Debug("deferred_actions_discarded",
			slog.String("scope_id", scopeID),
			slog.Int("count", len(actions)))
		return
	}

	for _, a := range actions {
		c.fired.Add(1)
		if err := c.dispatch(ctx, a); err != nil {
			slog.Warn("deferred_action_failed",
				slog.String("scope_id", scopeID),
				slog.String("action", a.String()),
				slog.String("error", err.Error()))
		}
	}
}

func (c *Coordinator) dispatch(ctx context.Context, a Action) error {
	var err error
	switch a := a.(type) {
	case ReindexEntity:
		err = c.exec.ExecuteReindex(ctx, a)
	case DeleteFromIndex:
		err = c.exec.ExecuteDelete(ctx, a)
	default:
		err = fmt.Errorf("unknown deferred action %T", a)
	}
	if err != nil {
		c.errors.Add(1)
	}
	return err
}

// Pending returns the number of actions waiting on the scope carried by ctx.
func (c *Coordinator) Pending(ctx context.Context) int {
	s, ok := scope.Current(ctx)
	if !ok {
		return 0
	}
	list, ok := scope.Lookup[*actionList](s, c.key)
	if !ok {
		return 0
	}
	list.mu.Lock()
	defer list.mu.Unlock()
	return len(list.actions)
}

// Stats returns a snapshot of the counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Immediate: c.immediate.Load(),
		Fired:     c.fired.Load(),
		Discarded: c.discarded.Load(),
		Errors:    c.errors.Load(),
	}
}
