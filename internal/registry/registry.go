// Package registry holds the named search indexes and the configuration that
// governs what each of them accepts.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	ierrors "github.com/Aman-CERP/contentindex/internal/errors"
	"github.com/Aman-CERP/contentindex/internal/valueset"
)

// Index is a writable search index.
type Index interface {
	// WriteItems adds or replaces documents keyed by ValueSet.ID.
	WriteItems(ctx context.Context, items []*valueset.ValueSet) error

	// DeleteItems removes documents by id. Unknown ids are ignored.
	DeleteItems(ctx context.Context, ids []string) error

	// Exists reports whether the index storage has been created.
	Exists() bool
}

// Searcher is implemented by indexes that support exact field lookup.
type Searcher interface {
	// SearchField returns one page of ids whose field equals value, plus the total match count.
	SearchField(ctx context.Context, field, value string, skip, take int) (ids []string, total int, err error)
}

// Counter is implemented by indexes that can report their size.
type Counter interface {
	DocumentCount(ctx context.Context) (int, error)
}

// Clearer is implemented by indexes that can drop every document at once.
type Clearer interface {
	Clear(ctx context.Context) error
}

// Entry is a registered index with its configuration.
type Entry struct {
	Name   string
	Index  Index
	Config valueset.IndexConfiguration
}

// Enabled reports whether the index participates in event-driven synchronization.
func (e Entry) Enabled() bool {
	return e.Config.EnableDefaultEventHandler
}

// Registry maps index names to indexes and their configuration.
// Iteration follows registration order. Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
	byName  map[string]int
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{byName: make(map[string]int)}
}

// Register adds an index. Names are unique.
func (r *Registry) Register(name string, idx Index, cfg valueset.IndexConfiguration) error {
	if name == "" {
		return ierrors.InvalidInput("index name is required")
	}
	if idx == nil {
		return ierrors.InvalidInput(fmt.Sprintf("index %q is nil", name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[name]; ok {
		return ierrors.InvalidInput(fmt.Sprintf("index %q already registered", name))
	}
	r.byName[name] = len(r.entries)
	r.entries = append(r.entries, Entry{Name: name, Index: idx, Config: cfg})
	return nil
}

// Names returns the registered index names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name
	}
	return names
}

// Entries returns a snapshot of all registered entries.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Enabled returns the entries whose configuration enables event-driven synchronization.
func (r *Registry) Enabled() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Entry
	for _, e := range r.entries {
		if e.Enabled() {
			out = append(out, e)
		}
	}
	return out
}

// Get returns the entry registered under name.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.byName[name]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// Index returns the index registered under name, or ErrUnknownIndex.
func (r *Registry) Index(name string) (Index, error) {
	e, ok := r.Get(name)
	if !ok {
		return nil, ierrors.New(ierrors.ErrCodeUnknownIndex, fmt.Sprintf("unknown index %q", name), nil)
	}
	return e.Index, nil
}

// ConfigurationFor returns the configuration for name. Unknown names yield a
// disabled configuration so that callers skip them.
func (r *Registry) ConfigurationFor(name string) valueset.IndexConfiguration {
	e, ok := r.Get(name)
	if !ok {
		return valueset.Disabled()
	}
	return e.Config
}

// AnyEnabled reports whether at least one registered index is enabled.
func (r *Registry) AnyEnabled() bool {
	return len(r.Enabled()) > 0
}

// Close closes every index that implements io.Closer.
func (r *Registry) Close() error {
	var errs []error
	for _, e := range r.Entries() {
		if c, ok := e.Index.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", e.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}
