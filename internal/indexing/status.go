package indexing

import (
	"context"

	"github.com/Aman-CERP/contentindex/internal/async"
	"github.com/Aman-CERP/contentindex/internal/deferred"
	"github.com/Aman-CERP/contentindex/internal/registry"
)

// IndexStatus describes one registered index.
type IndexStatus struct {
	Name                string                 `json:"name"`
	EventHandling       bool                   `json:"event_handling"`
	PublishedValuesOnly bool                   `json:"published_values_only"`
	Exists              bool                   `json:"exists"`
	Documents           int                    `json:"documents"`
	Circuit             string                 `json:"circuit"`
	Rebuild             *async.RebuildSnapshot `json:"rebuild,omitempty"`
}

// Status is a point-in-time view of the handler.
type Status struct {
	Enabled  bool              `json:"enabled"`
	Indexes  []IndexStatus     `json:"indexes"`
	Worker   async.WorkerStats `json:"worker"`
	Deferred deferred.Stats    `json:"deferred"`
}

// Status collects the state of every index, the worker and the coordinator.
// A document count that cannot be read is reported as -1.
func (h *Handler) Status(ctx context.Context) Status {
	st := Status{
		Enabled:  h.IsEnabled(),
		Worker:   h.worker.Stats(),
		Deferred: h.coordinator.Stats(),
	}
	for _, e := range h.registry.Entries() {
		is := IndexStatus{
			Name:                e.Name,
			EventHandling:       e.Enabled(),
			PublishedValuesOnly: e.Config.PublishedValuesOnly,
			Exists:              e.Index.Exists(),
			Circuit:             h.breaker(e.Name).State().String(),
		}
		if c, ok := e.Index.(registry.Counter); ok {
			n, err := c.DocumentCount(ctx)
			if err != nil {
				n = -1
			}
			is.Documents = n
		}
		if snap, ok := h.RebuildStatus(e.Name); ok {
			is.Rebuild = &snap
		}
		st.Indexes = append(st.Indexes, is)
	}
	return st
}
