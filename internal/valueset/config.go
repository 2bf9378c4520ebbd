package valueset

import (
	"slices"
	"strings"
)

// IndexConfiguration is the declarative configuration of one named index.
// It is read-only once the index is registered.
type IndexConfiguration struct {
	// EnableDefaultEventHandler lets the index receive automatic reindex and
	// delete traffic. When false the index is only filled by a manual rebuild.
	EnableDefaultEventHandler bool

	// PublishedValuesOnly keeps unpublished entities and culture variants out of the index.
	PublishedValuesOnly bool

	// Categories limits the entity categories routed to the index. Empty accepts all.
	Categories []Category

	IncludeItemTypes []string
	ExcludeItemTypes []string

	// IncludeFields and ExcludeFields redact fields; they never change the status.
	IncludeFields []string
	ExcludeFields []string

	// ParentID, when non-zero, requires the entity to live below that node.
	ParentID int

	// IncludeProtected admits content under access-restricted nodes.
	IncludeProtected bool
}

// Disabled is the configuration returned for unknown indexes.
func Disabled() IndexConfiguration {
	return IndexConfiguration{}
}

// AcceptsCategory reports whether entities of category are routed to the index.
func (c IndexConfiguration) AcceptsCategory(category Category) bool {
	return len(c.Categories) == 0 || slices.Contains(c.Categories, category)
}

// includesType reports include-list membership; an empty list admits everything.
func (c IndexConfiguration) includesType(itemType string) bool {
	if len(c.IncludeItemTypes) == 0 {
		return true
	}
	return containsFold(c.IncludeItemTypes, itemType)
}

func (c IndexConfiguration) excludesType(itemType string) bool {
	return containsFold(c.ExcludeItemTypes, itemType)
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
