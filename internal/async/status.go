package async

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// WorkerStatus represents the lifecycle state of a Worker.
type WorkerStatus string

const (
	// WorkerIdle indicates the worker has not been started.
	WorkerIdle WorkerStatus = "idle"
	// WorkerRunning indicates the worker loops are consuming the queue.
	WorkerRunning WorkerStatus = "running"
	// WorkerStopped indicates the queue is closed.
	WorkerStopped WorkerStatus = "stopped"
)

// WorkerStats is an immutable snapshot of worker counters.
type WorkerStats struct {
	Status    string `json:"status"`
	Workers   int    `json:"workers"`
	Queued    int    `json:"queued"`
	Capacity  int    `json:"capacity"`
	Busy      int    `json:"busy"`
	Enqueued  int64  `json:"enqueued"`
	Processed int64  `json:"processed"`
	Failed    int64  `json:"failed"`
	Dropped   int64  `json:"dropped"`
}

// RebuildStatus represents the overall state of a manual rebuild.
type RebuildStatus string

const (
	// StatusRebuilding indicates a rebuild is in progress.
	StatusRebuilding RebuildStatus = "rebuilding"
	// StatusReady indicates the rebuild finished.
	StatusReady RebuildStatus = "ready"
	// StatusError indicates the rebuild failed.
	StatusError RebuildStatus = "error"
)

// RebuildStage represents the current stage of a rebuild.
type RebuildStage string

const (
	// StageClearing indicates existing documents are being removed.
	StageClearing RebuildStage = "clearing"
	// StageLoading indicates entities are being read from the repository.
	StageLoading RebuildStage = "loading"
	// StageWriting indicates documents are being written to the index.
	StageWriting RebuildStage = "writing"
)

// RebuildSnapshot is an immutable snapshot of rebuild progress.
type RebuildSnapshot struct {
	Index             string  `json:"index"`
	Status            string  `json:"status"`
	Stage             string  `json:"stage"`
	EntitiesTotal     int     `json:"entities_total"`
	EntitiesProcessed int     `json:"entities_processed"`
	DocumentsWritten  int     `json:"documents_written"`
	DocumentsSkipped  int     `json:"documents_skipped"`
	ProgressPct       float64 `json:"progress_pct"`
	ElapsedSeconds    int     `json:"elapsed_seconds"`
	ErrorMessage      string  `json:"error_message,omitempty"`
}

// RebuildProgress provides thread-safe tracking of a rebuild.
type RebuildProgress struct {
	mu sync.RWMutex

	index             string
	status            RebuildStatus
	stage             RebuildStage
	entitiesTotal     int
	entitiesProcessed int
	documentsWritten  int
	documentsSkipped  int
	startTime         time.Time
	errorMessage      string
}

// NewRebuildProgress creates a progress tracker for the named index.
func NewRebuildProgress(index string) *RebuildProgress {
	return &RebuildProgress{
		index:     index,
		status:    StatusRebuilding,
		stage:     StageClearing,
		startTime: time.Now(),
	}
}

// SetStage updates the current stage and resets the entity total.
func (p *RebuildProgress) SetStage(stage RebuildStage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.entitiesTotal = total
}

// EntityDone records one processed entity and the documents it produced.
func (p *RebuildProgress) EntityDone(written, skipped int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entitiesProcessed++
	p.documentsWritten += written
	p.documentsSkipped += skipped
}

// SetError marks the rebuild as failed.
func (p *RebuildProgress) SetError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusError
	p.errorMessage = message
}

// SetReady marks the rebuild as complete.
func (p *RebuildProgress) SetReady() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusReady
}

// IsRebuilding returns true while the rebuild is in progress.
func (p *RebuildProgress) IsRebuilding() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.status == StatusRebuilding
}

// Snapshot returns an immutable copy of the current progress.
func (p *RebuildProgress) Snapshot() RebuildSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var pct float64
	if p.entitiesTotal > 0 {
		pct = float64(p.entitiesProcessed) / float64(p.entitiesTotal) * 100.0
	}

	return RebuildSnapshot{
		Index:             p.index,
		Status:            string(p.status),
		Stage:             string(p.stage),
		EntitiesTotal:     p.entitiesTotal,
		EntitiesProcessed: p.entitiesProcessed,
		DocumentsWritten:  p.documentsWritten,
		DocumentsSkipped:  p.documentsSkipped,
		ProgressPct:       pct,
		ElapsedSeconds:    int(time.Since(p.startTime).Seconds()),
		ErrorMessage:      p.errorMessage,
	}
}

const rebuildMarker = "rebuild.lock"

// MarkRebuildStarted writes a marker into dataDir that survives a crash.
// The returned func removes it and should be deferred by the caller.
func MarkRebuildStarted(dataDir, index string) (func(), error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}
	path := filepath.Join(dataDir, rebuildMarker)
	body := index + " " + time.Now().Format(time.RFC3339)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		return nil, err
	}
	return func() { _ = os.Remove(path) }, nil
}

// HasIncompleteRebuild reports whether a previous rebuild in dataDir did not finish.
func HasIncompleteRebuild(dataDir string) bool {
	_, err := os.Stat(filepath.Join(dataDir, rebuildMarker))
	return err == nil
}
