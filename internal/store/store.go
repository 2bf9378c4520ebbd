// Package store provides the search index backends that receive value sets:
// a bleve index (default) and a SQLite index. Both store every field as exact
// string terms so that documents can be found by field value.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/contentindex/internal/registry"
	"github.com/Aman-CERP/contentindex/internal/valueset"
)

// FieldCategory carries the value set category on every stored document.
const FieldCategory = "__IndexType"

// Backend names an index implementation.
type Backend string

const (
	// BackendBleve stores the index in a bleve directory (default).
	BackendBleve Backend = "bleve"

	// BackendSQLite stores the index in a SQLite database with WAL enabled,
	// so other processes can read it while this one writes.
	BackendSQLite Backend = "sqlite"
)

// Backends lists the valid backend names.
var Backends = []Backend{BackendBleve, BackendSQLite}

// ParseBackend validates a backend name. An empty name selects the default.
func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case BackendBleve, "":
		return BackendBleve, nil
	case BackendSQLite:
		return BackendSQLite, nil
	default:
		return "", fmt.Errorf("unknown index backend: %s (valid options: bleve, sqlite)", s)
	}
}

// Index is the full surface both backends implement.
type Index interface {
	registry.Index
	registry.Searcher
	registry.Counter
	registry.Clearer
	Close() error
}

// New opens or creates an index using backend. basePath is the location
// without extension; ".bleve" or ".db" is appended. An empty basePath creates
// an in-memory index.
func New(backend Backend, basePath string) (Index, error) {
	switch backend {
	case BackendBleve, "":
		return NewBleveIndex(IndexPath(basePath, BackendBleve))
	case BackendSQLite:
		return NewSQLiteIndex(IndexPath(basePath, BackendSQLite))
	default:
		return nil, fmt.Errorf("unknown index backend: %s", backend)
	}
}

// IndexPath returns the on-disk location for basePath and backend, or "" for
// an in-memory index.
func IndexPath(basePath string, backend Backend) string {
	if basePath == "" {
		return ""
	}
	if backend == BackendSQLite {
		return basePath + ".db"
	}
	return basePath + ".bleve"
}

// DetectBackend reports which backend an existing index at basePath uses,
// or "" if there is none.
func DetectBackend(basePath string) Backend {
	if fileExists(basePath + ".db") {
		return BackendSQLite
	}
	if dirExists(basePath + ".bleve") {
		return BackendBleve
	}
	return ""
}

// DefaultPath returns the base path of a named index under dataDir.
func DefaultPath(dataDir, name string) string {
	return filepath.Join(dataDir, "indexes", name)
}

// document flattens a value set into string terms per field.
func document(vs *valueset.ValueSet) map[string][]string {
	doc := make(map[string][]string, len(vs.Fields)+1)
	for _, name := range vs.FieldNames() {
		if vals := vs.Strings(name); len(vals) > 0 {
			doc[name] = vals
		}
	}
	doc[FieldCategory] = []string{string(vs.Category)}
	return doc
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
