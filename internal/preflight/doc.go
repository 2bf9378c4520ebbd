// Package preflight checks that the host and data directory can run
// contentindex before any index is opened.
//
// The checks cover:
//   - write permissions and free space in the data directory
//   - the open file descriptor limit (bleve keeps many segment files open)
//   - whether another process holds the index writer lock
//   - rebuilds interrupted before they finished
//   - index directories whose backend differs from the configuration
//
// Use the Checker type to run every check:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, preflight.Target{DataDir: dir})
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
