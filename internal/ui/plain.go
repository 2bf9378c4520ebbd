package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// plainSteps is the number of progress lines printed per stage.
const plainSteps = 10

// PlainRenderer prints a line per stage change and per tenth of progress,
// for CI logs and pipes.
type PlainRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	index   string
	stage   Stage
	bucket  int
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := 0
	if event.Total > 0 {
		bucket = event.Current * plainSteps / event.Total
	}
	if event.Index == r.index && event.Stage == r.stage && bucket <= r.bucket {
		return
	}
	r.index = event.Index
	r.stage = event.Stage
	r.bucket = bucket

	if event.Total > 0 {
		_, _ = fmt.Fprintf(r.out, "[%s] %s %d/%d\n", event.Stage.Icon(), event.Index, event.Current, event.Total)
	} else {
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), event.Index)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.index = ""
	r.stage = ""
	r.bucket = 0
	_, _ = fmt.Fprintf(r.out, "[%s] %s %d/%d in %s\n",
		StageComplete.Icon(), stats.Index, stats.Written, stats.Entities, formatDuration(stats.Duration))
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

var _ Renderer = (*PlainRenderer)(nil)
