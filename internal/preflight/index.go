package preflight

import (
	"fmt"

	"github.com/Aman-CERP/contentindex/internal/async"
	"github.com/Aman-CERP/contentindex/internal/lifecycle"
	"github.com/Aman-CERP/contentindex/internal/store"
)

// CheckWriterLock reports whether this process could take the index writer
// role. The lock is released again immediately.
func (c *Checker) CheckWriterLock(dataDir string) CheckResult {
	result := CheckResult{
		Name: "writer_lock",
	}

	arbiter := lifecycle.NewFileArbiter(dataDir)
	ok, err := arbiter.TryAcquire()
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("cannot take %s: %v", arbiter.Path(), err)
		return result
	}
	if !ok {
		result.Status = StatusWarn
		result.Message = "held by another process; this instance will not write to the indexes"
		result.Details = arbiter.Path()
		return result
	}
	_ = arbiter.Release()

	result.Status = StatusPass
	result.Message = "available"
	return result
}

// CheckRebuildMarkers warns about rebuilds that never finished.
func (c *Checker) CheckRebuildMarkers(dataDir string) CheckResult {
	result := CheckResult{
		Name: "rebuilds",
	}
	if async.HasIncompleteRebuild(dataDir) {
		result.Status = StatusWarn
		result.Message = "a rebuild was interrupted"
		result.Details = "Run 'contentindex rebuild' to refill the indexes"
		return result
	}
	result.Status = StatusPass
	result.Message = "none interrupted"
	return result
}

// CheckIndex compares the backend found on disk with the configured one.
// A missing index passes: it is created on first open.
func (c *Checker) CheckIndex(idx IndexTarget) CheckResult {
	result := CheckResult{
		Name:     "index:" + idx.Name,
		Required: true,
	}

	want, err := store.ParseBackend(idx.Backend)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}

	switch found := store.DetectBackend(idx.Path); found {
	case "":
		result.Status = StatusPass
		result.Message = fmt.Sprintf("not created yet (%s)", want)
	case want:
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%s at %s", want, store.IndexPath(idx.Path, want))
	default:
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("found a %s index but %s is configured", found, want)
		result.Details = "The configured backend starts empty; run 'contentindex rebuild " + idx.Name + "'"
	}
	return result
}
