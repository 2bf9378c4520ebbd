// Package indexing keeps the registered search indexes in step with the content
// repository. Change notifications are deferred to the ambient scope, fired
// after commit onto the background worker, and validated per index before any
// document is written.
package indexing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/Aman-CERP/contentindex/internal/async"
	"github.com/Aman-CERP/contentindex/internal/deferred"
	ierrors "github.com/Aman-CERP/contentindex/internal/errors"
	"github.com/Aman-CERP/contentindex/internal/lifecycle"
	"github.com/Aman-CERP/contentindex/internal/metrics"
	"github.com/Aman-CERP/contentindex/internal/registry"
	"github.com/Aman-CERP/contentindex/internal/valueset"
)

// PurgePageSize is the number of ids fetched per page when purging documents
// of removed content types.
const PurgePageSize = 500

// Source loads value sets from the repository through its own read unit.
type Source interface {
	Load(ctx context.Context, category valueset.Category, id int) ([]*valueset.ValueSet, error)
	Scan(ctx context.Context, category valueset.Category, afterID, limit int) ([]*valueset.ValueSet, int, error)
	Count(ctx context.Context, category valueset.Category) (int, error)
}

// HandlerConfig contains the collaborators of a Handler.
type HandlerConfig struct {
	// Registry holds the indexes and their configuration.
	Registry *registry.Registry

	// Source builds value sets for entities.
	Source Source

	// Access answers protected-path lookups for validation (optional).
	Access valueset.AccessPolicy

	// Arbiter decides whether this process owns the index writers.
	// Defaults to a static owner.
	Arbiter lifecycle.Arbiter

	// Worker configures the background queue.
	Worker async.WorkerConfig

	// DataDir holds rebuild markers (optional).
	DataDir string

	// BreakerFailures and BreakerReset configure the per-index circuit breakers.
	BreakerFailures int
	BreakerReset    time.Duration

	// Metrics receives pipeline counters. Defaults to a private set.
	Metrics *metrics.Metrics
}

// Handler receives change notifications and drives index writes.
type Handler struct {
	config      HandlerConfig
	registry    *registry.Registry
	source      Source
	validator   *valueset.Validator
	worker      *async.Worker
	coordinator *deferred.Coordinator
	metrics     *metrics.Metrics

	owner   func() bool
	enabled func() bool

	mu       sync.Mutex
	breakers map[string]*ierrors.CircuitBreaker
	rebuilds map[string]*async.RebuildProgress
}

// NewHandler creates a Handler. Call Start before raising notifications.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Arbiter == nil {
		cfg.Arbiter = lifecycle.StaticArbiter(true)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	h := &Handler{
		config:    cfg,
		registry:  cfg.Registry,
		source:    cfg.Source,
		validator: valueset.NewValidator(cfg.Access),
		metrics:   cfg.Metrics,
		breakers:  make(map[string]*ierrors.CircuitBreaker),
		rebuilds:  make(map[string]*async.RebuildProgress),
	}
	h.worker = async.NewWorker(cfg.Worker, h.process)
	h.coordinator = deferred.NewCoordinator(h)
	h.owner = sync.OnceValue(h.acquire)
	h.enabled = sync.OnceValue(func() bool {
		return h.owner() && h.registry.AnyEnabled()
	})
	return h
}

func (h *Handler) acquire() bool {
	ok, err := h.config.Arbiter.TryAcquire()
	if err != nil {
		slog.Warn("index_writer_lock_failed", slog.String("error", err.Error()))
		return false
	}
	if !ok {
		slog.Info("index_writer_held_elsewhere")
	}
	return ok
}

// Start launches the background worker.
func (h *Handler) Start(ctx context.Context) {
	h.worker.Start(ctx)
}

// IsEnabled reports whether this process writes to the indexes: it must own
// the writers and at least one index must have event handling enabled.
// Computed once per Handler.
func (h *Handler) IsEnabled() bool {
	return h.enabled()
}

// Reindex rebuilds the documents of one entity in every relevant index once
// the ambient scope commits, or right away without a scope.
func (h *Handler) Reindex(ctx context.Context, category valueset.Category, id int, published bool) error {
	if !h.IsEnabled() {
		return nil
	}
	return h.coordinator.Enlist(ctx, deferred.ReindexEntity{Category: category, EntityID: id, Published: published})
}

// DeleteFromIndex removes documents once the ambient scope commits. With
// keepIfUnpublished only published-only indexes are affected.
func (h *Handler) DeleteFromIndex(ctx context.Context, ids []string, keepIfUnpublished bool) error {
	if !h.IsEnabled() || len(ids) == 0 {
		return nil
	}
	return h.coordinator.Enlist(ctx, deferred.DeleteFromIndex{IDs: ids, KeepIfUnpublished: keepIfUnpublished})
}

// ExecuteReindex hands a due reindex to the worker.
func (h *Handler) ExecuteReindex(ctx context.Context, a deferred.ReindexEntity) error {
	targets := h.reindexTargets(a.Category, a.Published)
	if len(targets) == 0 {
		return nil
	}
	return h.enqueue(async.Item{
		Kind:      async.ItemReindex,
		Category:  a.Category,
		EntityID:  a.EntityID,
		Published: a.Published,
		Indexes:   targets,
	})
}

// ExecuteDelete hands a due delete to the worker.
func (h *Handler) ExecuteDelete(ctx context.Context, a deferred.DeleteFromIndex) error {
	targets := h.deleteTargets(a.KeepIfUnpublished)
	if len(targets) == 0 {
		return nil
	}
	return h.enqueue(async.Item{Kind: async.ItemDelete, IDs: a.IDs, Indexes: targets})
}

func (h *Handler) enqueue(item async.Item) error {
	err := h.worker.Enqueue(item)
	if ierrors.GetCode(err) == ierrors.ErrCodeQueueFull {
		h.metrics.ItemDropped(string(item.Kind))
	}
	return err
}

// reindexTargets lists the enabled indexes that accept category and, for
// published-only indexes, only when the change is published. Members carry no
// publish workflow, so the hint does not apply to them.
func (h *Handler) reindexTargets(category valueset.Category, published bool) []string {
	var out []string
	for _, e := range h.registry.Enabled() {
		if !e.Config.AcceptsCategory(category) {
			continue
		}
		if e.Config.PublishedValuesOnly && !published && category != valueset.CategoryMember {
			continue
		}
		out = append(out, e.Name)
	}
	return out
}

// deleteTargets lists the enabled indexes a delete applies to.
func (h *Handler) deleteTargets(keepIfUnpublished bool) []string {
	var out []string
	for _, e := range h.registry.Enabled() {
		if e.Config.PublishedValuesOnly || !keepIfUnpublished {
			out = append(out, e.Name)
		}
	}
	return out
}

func (h *Handler) process(ctx context.Context, item async.Item) (err error) {
	start := time.Now()
	defer func() {
		h.metrics.ObserveItem(string(item.Kind), err, time.Since(start).Seconds())
	}()

	if item.Kind == async.ItemDelete {
		return h.deleteFrom(ctx, item.Indexes, item.IDs)
	}
	return h.build(ctx, item)
}

// build loads the entity, validates its value sets against each target index
// and writes the valid ones.
func (h *Handler) build(ctx context.Context, item async.Item) error {
	sets, err := h.source.Load(ctx, item.Category, item.EntityID)
	if err != nil {
		return ierrors.New(ierrors.ErrCodeBuildFailed, fmt.Sprintf("build %s %d", item.Category, item.EntityID), err)
	}
	if len(sets) == 0 {
		slog.Debug("entity_gone",
			slog.String("category", string(item.Category)),
			slog.Int("entity_id", item.EntityID))
		return nil
	}

	var errs []error
	for _, name := range item.Indexes {
		entry, ok := h.registry.Get(name)
		if !ok || !entry.Enabled() {
			continue
		}
		valid := h.validateAll(sets, entry)
		if len(valid) == 0 {
			continue
		}
		if err := h.write(ctx, entry, valid); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// validateAll returns the redacted value sets that entry accepts. Filtered and
// Failed outcomes are expected and logged at debug.
func (h *Handler) validateAll(sets []*valueset.ValueSet, entry registry.Entry) []*valueset.ValueSet {
	var valid []*valueset.ValueSet
	for _, vs := range sets {
		res := h.validator.Validate(vs, entry.Config)
		h.metrics.Validated(entry.Name, res.Status.String())
		if res.IsValid() {
			valid = append(valid, res.ValueSet)
			continue
		}
		slog.Debug("valueset_skipped",
			slog.String("index", entry.Name),
			slog.String("entity_id", vs.ID),
			slog.String("category", string(vs.Category)),
			slog.String("status", res.Status.String()),
			slog.String("reason", res.Reason))
	}
	return valid
}

func (h *Handler) write(ctx context.Context, entry registry.Entry, sets []*valueset.ValueSet) error {
	err := h.breaker(entry.Name).Execute(func() error {
		return entry.Index.WriteItems(ctx, sets)
	})
	if errors.Is(err, ierrors.ErrCircuitOpen) {
		slog.Warn("index_circuit_open", slog.String("index", entry.Name), slog.Int("documents", len(sets)))
	}
	if err != nil {
		return ierrors.IndexWriteError(entry.Name, err)
	}
	h.metrics.Written(entry.Name, len(sets))
	return nil
}

func (h *Handler) deleteFrom(ctx context.Context, indexes, ids []string) error {
	var errs []error
	for _, name := range indexes {
		entry, ok := h.registry.Get(name)
		if !ok {
			continue
		}
		err := h.breaker(name).Execute(func() error {
			return entry.Index.DeleteItems(ctx, ids)
		})
		if err != nil {
			errs = append(errs, ierrors.IndexWriteError(name, err))
			continue
		}
		h.metrics.Deleted(name, len(ids))
	}
	return errors.Join(errs...)
}

// DeleteDocumentsForContentTypes removes every document whose node type is in
// typeIDs from every index. It runs synchronously: ids are collected page by
// page until the reported total is reached, then deleted one by one.
func (h *Handler) DeleteDocumentsForContentTypes(ctx context.Context, typeIDs []int) error {
	if !h.IsEnabled() {
		return nil
	}

	var errs []error
	for _, entry := range h.registry.Entries() {
		searcher, ok := entry.Index.(registry.Searcher)
		if !ok {
			slog.Debug("purge_skipped_not_searchable", slog.String("index", entry.Name))
			continue
		}
		for _, typeID := range typeIDs {
			ids, err := collectByType(ctx, searcher, typeID)
			if err != nil {
				errs = append(errs, ierrors.IndexWriteError(entry.Name, err))
				continue
			}
			deleted := 0
			for _, id := range ids {
				if err := entry.Index.DeleteItems(ctx, []string{id}); err != nil {
					errs = append(errs, ierrors.IndexWriteError(entry.Name, err))
					continue
				}
				deleted++
			}
			h.metrics.Purged(entry.Name, deleted)
			if len(ids) > 0 {
				slog.Info("content_type_purged",
					slog.String("index", entry.Name),
					slog.Int("type_id", typeID),
					slog.Int("documents", len(ids)))
			}
		}
	}
	return errors.Join(errs...)
}

func collectByType(ctx context.Context, s registry.Searcher, typeID int) ([]string, error) {
	var ids []string
	value := strconv.Itoa(typeID)
	for {
		page, total, err := s.SearchField(ctx, valueset.FieldNodeType, value, len(ids), PurgePageSize)
		if err != nil {
			return nil, err
		}
		ids = append(ids, page...)
		if len(page) == 0 || len(ids) >= total {
			return ids, nil
		}
	}
}

func (h *Handler) breaker(name string) *ierrors.CircuitBreaker {
	h.mu.Lock()
	defer h.mu.Unlock()

	cb, ok := h.breakers[name]
	if !ok {
		cb = ierrors.NewCircuitBreaker(name,
			ierrors.WithMaxFailures(h.config.BreakerFailures),
			ierrors.WithResetTimeout(h.config.BreakerReset))
		h.breakers[name] = cb
	}
	return cb
}

// Validate builds the value sets of one entity and validates them against the
// named index. A Failed outcome is returned as an error alongside the results.
func (h *Handler) Validate(ctx context.Context, category valueset.Category, id int, index string) ([]valueset.Result, error) {
	entry, ok := h.registry.Get(index)
	if !ok {
		return nil, ierrors.New(ierrors.ErrCodeUnknownIndex, fmt.Sprintf("unknown index %q", index), nil)
	}
	sets, err := h.source.Load(ctx, category, id)
	if err != nil {
		return nil, ierrors.New(ierrors.ErrCodeBuildFailed, fmt.Sprintf("build %s %d", category, id), err)
	}
	if len(sets) == 0 {
		return nil, ierrors.New(ierrors.ErrCodeEntityNotFound, fmt.Sprintf("%s %d not found", category, id), nil)
	}

	results := make([]valueset.Result, 0, len(sets))
	var failed *valueset.Result
	for _, vs := range sets {
		res := h.validator.Validate(vs, entry.Config)
		results = append(results, res)
		if res.Status == valueset.Failed && failed == nil {
			failed = &results[len(results)-1]
		}
	}
	if failed != nil {
		return results, ierrors.New(ierrors.ErrCodeInvalidInput,
			fmt.Sprintf("%s %d rejected by %s: %s", category, id, index, failed.Reason), nil)
	}
	return results, nil
}

// Pending returns the number of actions waiting on the scope carried by ctx.
func (h *Handler) Pending(ctx context.Context) int {
	return h.coordinator.Pending(ctx)
}

// Metrics returns the pipeline counters.
func (h *Handler) Metrics() *metrics.Metrics {
	return h.metrics
}

// Drain waits until the worker queue is empty.
func (h *Handler) Drain(ctx context.Context) error {
	return h.worker.Drain(ctx)
}

// Close stops the worker, waiting for queued items until ctx ends, and
// releases the writer role.
func (h *Handler) Close(ctx context.Context) error {
	err := h.worker.Stop(ctx)
	if releaseErr := h.config.Arbiter.Release(); releaseErr != nil {
		err = errors.Join(err, releaseErr)
	}
	return err
}
