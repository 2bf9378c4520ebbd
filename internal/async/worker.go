// Package async provides the background processing infrastructure for contentindex:
// the bounded build-and-write queue and rebuild progress tracking.
package async

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	ierrors "github.com/Aman-CERP/contentindex/internal/errors"
	"github.com/Aman-CERP/contentindex/internal/valueset"
)

// ItemKind distinguishes the work an Item asks for.
type ItemKind string

const (
	// ItemReindex builds the entity's value sets and writes them.
	ItemReindex ItemKind = "reindex"
	// ItemDelete removes documents by id.
	ItemDelete ItemKind = "delete"
)

// Item is one unit of index work.
type Item struct {
	Kind ItemKind

	// Reindex only.
	Category  valueset.Category
	EntityID  int
	Published bool

	// Delete only.
	IDs []string

	// Indexes names the target indexes.
	Indexes []string
}

func (it Item) attrs() []any {
	if it.Kind == ItemDelete {
		return []any{
			slog.String("kind", string(it.Kind)),
			slog.Int("ids", len(it.IDs)),
			slog.Any("indexes", it.Indexes),
		}
	}
	return []any{
		slog.String("kind", string(ItemReindex)),
		slog.String("category", string(it.Category)),
		slog.Int("entity_id", it.EntityID),
		slog.Bool("published", it.Published),
	}
}

// ProcessFunc performs the work for one item. It must honour ctx.
type ProcessFunc func(ctx context.Context, item Item) error

// WorkerConfig configures the Worker.
type WorkerConfig struct {
	// Workers is the number of concurrent worker loops (default: 2).
	Workers int

	// QueueSize bounds the number of pending items (default: 1024).
	QueueSize int

	// EnqueueTimeout is how long Enqueue waits for room before dropping the item (default: 50ms).
	EnqueueTimeout time.Duration

	// ItemTimeout bounds the processing of a single item (default: 5s).
	ItemTimeout time.Duration
}

// DefaultWorkerConfig returns the default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Workers:        2,
		QueueSize:      1024,
		EnqueueTimeout: 50 * time.Millisecond,
		ItemTimeout:    5 * time.Second,
	}
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	d := DefaultWorkerConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = d.EnqueueTimeout
	}
	if c.ItemTimeout <= 0 {
		c.ItemTimeout = d.ItemTimeout
	}
	return c
}

// Worker runs items from a bounded FIFO queue on a fixed pool of goroutines.
// A failing or panicking item is logged and dropped; it never stops the pool.
type Worker struct {
	config  WorkerConfig
	process ProcessFunc

	queue  chan Item
	cancel context.CancelFunc
	group  *errgroup.Group

	// mu guards the queue against sends after Stop closes it.
	mu      sync.RWMutex
	started bool
	stopped bool

	dropLog rate.Sometimes

	enqueued  atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	busy      atomic.Int64

	// pending counts items enqueued but not yet finished.
	pending atomic.Int64
}

// NewWorker creates a stopped Worker.
func NewWorker(cfg WorkerConfig, process ProcessFunc) *Worker {
	cfg = cfg.withDefaults()
	return &Worker{
		config:  cfg,
		process: process,
		queue:   make(chan Item, cfg.QueueSize),
		dropLog: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// Start launches the worker loops. Items run with a context derived from ctx,
// which is cancelled by Stop when its deadline passes. Start is idempotent.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true

	ctx, w.cancel = context.WithCancel(ctx)
	w.group, ctx = errgroup.WithContext(ctx)
	for i := 0; i < w.config.Workers; i++ {
		w.group.Go(func() error {
			w.loop(ctx)
			return nil
		})
	}

	slog.Debug("index_worker_started",
		slog.Int("workers", w.config.Workers),
		slog.Int("queue_size", w.config.QueueSize))
}

// Enqueue adds an item without waiting for it to run. When the queue stays
// full for EnqueueTimeout the item is dropped and ErrQueueFull is returned.
func (w *Worker) Enqueue(item Item) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return ierrors.New(ierrors.ErrCodeQueueFull, "index worker is stopped", nil)
	}

	w.pending.Add(1)
	select {
	case w.queue <- item:
		w.enqueued.Add(1)
		return nil
	default:
	}

	timer := time.NewTimer(w.config.EnqueueTimeout)
	defer timer.Stop()

	select {
	case w.queue <- item:
		w.enqueued.Add(1)
		return nil
	case <-timer.C:
		w.pending.Add(-1)
		n := w.dropped.Add(1)
		w.dropLog.Do(func() {
			slog.Warn("index_queue_full",
				append(item.attrs(), slog.Int64("dropped_total", n))...)
		})
		return ierrors.New(ierrors.ErrCodeQueueFull,
			fmt.Sprintf("index queue full (%d items)", w.config.QueueSize), nil).
			WithDetail("entity_id", fmt.Sprint(item.EntityID)).
			WithDetail("category", string(item.Category))
	}
}

func (w *Worker) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-w.queue:
			if !ok {
				return
			}
			w.run(ctx, item)
		}
	}
}

func (w *Worker) run(ctx context.Context, item Item) {
	w.busy.Add(1)
	defer func() {
		w.busy.Add(-1)
		w.pending.Add(-1)
	}()

	ctx, cancel := context.WithTimeout(ctx, w.config.ItemTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			w.failed.Add(1)
			slog.Error("index_item_panicked",
				append(item.attrs(),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))...)
		}
	}()

	start := time.Now()
	if err := w.process(ctx, item); err != nil {
		w.failed.Add(1)
		slog.Error("index_item_failed",
			append(item.attrs(),
				slog.String("error", err.Error()),
				slog.Duration("elapsed", time.Since(start)))...)
		return
	}
	w.processed.Add(1)
}

// Stop closes the queue and waits for queued items to finish. If ctx ends
// first, in-flight items are cancelled and the remaining queue is abandoned.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.queue)
	started := w.started
	w.mu.Unlock()

	if !started {
		w.abandon()
		return nil
	}

	done := make(chan struct{})
	go func() {
		_ = w.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.cancel()
		return nil
	case <-ctx.Done():
		w.cancel()
		<-done
		slog.Warn("index_worker_stopped_undrained",
			slog.Int("abandoned", w.abandon()))
		return ctx.Err()
	}
}

// abandon empties the closed queue once the loops have exited so pending
// no longer counts items that will never run.
func (w *Worker) abandon() int {
	n := 0
	for range w.queue {
		n++
	}
	w.pending.Add(int64(-n))
	return n
}

// Drain blocks until the queue is empty and no item is running, or ctx ends.
func (w *Worker) Drain(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if w.pending.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stats returns a snapshot of the worker counters.
func (w *Worker) Stats() WorkerStats {
	w.mu.RLock()
	status := WorkerIdle
	switch {
	case w.stopped:
		status = WorkerStopped
	case w.started:
		status = WorkerRunning
	}
	w.mu.RUnlock()

	return WorkerStats{
		Status:    string(status),
		Workers:   w.config.Workers,
		Queued:    len(w.queue),
		Capacity:  w.config.QueueSize,
		Busy:      int(w.busy.Load()),
		Enqueued:  w.enqueued.Load(),
		Processed: w.processed.Load(),
		Failed:    w.failed.Load(),
		Dropped:   w.dropped.Load(),
	}
}
