package indexing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/contentindex/internal/async"
	ierrors "github.com/Aman-CERP/contentindex/internal/errors"
	"github.com/Aman-CERP/contentindex/internal/registry"
	"github.com/Aman-CERP/contentindex/internal/valueset"
)

// RebuildPageSize is the number of entities read per page during a rebuild.
const RebuildPageSize = 100

// categories in rebuild order.
var categories = []valueset.Category{valueset.CategoryContent, valueset.CategoryMedia, valueset.CategoryMember}

// Rebuild clears the named index and refills it from the repository. It works
// whether or not event handling is enabled for the index, but requires this
// process to own the writers.
func (h *Handler) Rebuild(ctx context.Context, index string) (async.RebuildSnapshot, error) {
	entry, ok := h.registry.Get(index)
	if !ok {
		return async.RebuildSnapshot{}, ierrors.New(ierrors.ErrCodeUnknownIndex, fmt.Sprintf("unknown index %q", index), nil)
	}
	if !h.owner() {
		return async.RebuildSnapshot{}, ierrors.New(ierrors.ErrCodeScopeMisuse, "this process does not own the index writers", nil).
			WithSuggestion("Stop the process holding the writer lock or run with main_instance: main")
	}

	progress, err := h.startRebuild(index)
	if err != nil {
		return async.RebuildSnapshot{}, err
	}
	defer h.finishRebuild(index)

	if h.config.DataDir != "" {
		done, err := async.MarkRebuildStarted(h.config.DataDir, index)
		if err != nil {
			slog.Warn("rebuild_marker_failed", slog.String("index", index), slog.String("error", err.Error()))
		} else {
			defer done()
		}
	}

	start := time.Now()
	err = h.rebuild(ctx, entry, progress)
	h.metrics.ObserveRebuild(index, err, time.Since(start).Seconds())
	if err != nil {
		progress.SetError(err.Error())
		slog.Error("index_rebuild_failed", slog.String("index", index), slog.String("error", err.Error()))
		return progress.Snapshot(), err
	}
	progress.SetReady()

	snap := progress.Snapshot()
	slog.Info("index_rebuilt",
		slog.String("index", index),
		slog.Int("entities", snap.EntitiesProcessed),
		slog.Int("written", snap.DocumentsWritten),
		slog.Int("skipped", snap.DocumentsSkipped),
		slog.Duration("elapsed", time.Since(start)))
	return snap, nil
}

func (h *Handler) rebuild(ctx context.Context, entry registry.Entry, progress *async.RebuildProgress) error {
	progress.SetStage(async.StageClearing, 0)
	if c, ok := entry.Index.(registry.Clearer); ok {
		if err := c.Clear(ctx); err != nil {
			return ierrors.IndexWriteError(entry.Name, err)
		}
	}

	total := 0
	for _, cat := range categories {
		if !entry.Config.AcceptsCategory(cat) {
			continue
		}
		n, err := h.source.Count(ctx, cat)
		if err != nil {
			return err
		}
		total += n
	}
	progress.SetStage(async.StageLoading, total)

	for _, cat := range categories {
		if !entry.Config.AcceptsCategory(cat) {
			continue
		}
		after := 0
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			sets, next, err := h.source.Scan(ctx, cat, after, RebuildPageSize)
			if err != nil {
				return err
			}

			progress.SetStage(async.StageWriting, total)
			valid := h.validateAll(sets, entry)
			if len(valid) > 0 {
				if err := entry.Index.WriteItems(ctx, valid); err != nil {
					return ierrors.IndexWriteError(entry.Name, err)
				}
				h.metrics.Written(entry.Name, len(valid))
			}
			countPage(progress, sets, valid)

			if next == 0 {
				break
			}
			after = next
		}
	}
	return nil
}

// countPage records progress per value set. Builders emit one value set per
// entity.
func countPage(progress *async.RebuildProgress, sets, valid []*valueset.ValueSet) {
	written := make(map[string]bool, len(valid))
	for _, vs := range valid {
		written[vs.ID] = true
	}
	for _, vs := range sets {
		if written[vs.ID] {
			progress.EntityDone(1, 0)
		} else {
			progress.EntityDone(0, 1)
		}
	}
}

func (h *Handler) startRebuild(index string) (*async.RebuildProgress, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if p, ok := h.rebuilds[index]; ok && p.IsRebuilding() {
		return nil, ierrors.New(ierrors.ErrCodeScopeMisuse, fmt.Sprintf("index %q is already rebuilding", index), nil)
	}
	p := async.NewRebuildProgress(index)
	h.rebuilds[index] = p
	return p, nil
}

func (h *Handler) finishRebuild(index string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if p, ok := h.rebuilds[index]; ok && p.IsRebuilding() {
		p.SetError("rebuild interrupted")
	}
}

// RebuildStatus returns the progress of the last rebuild of index.
func (h *Handler) RebuildStatus(index string) (async.RebuildSnapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.rebuilds[index]
	if !ok {
		return async.RebuildSnapshot{}, false
	}
	return p.Snapshot(), true
}
