// Package valueset defines the flat field-map document exchanged between the
// synchronization pipeline and a search index, plus the rule engine that decides
// whether a document may reach a given index and which of its fields it may carry.
//
// Validation is pure: Validate never mutates its input, performs no I/O other than
// the protected-path lookup delegated to an AccessPolicy, and returns the same
// Result for the same input and configuration.
package valueset

import (
	"sort"
	"strings"
)

// Category is the coarse kind of the source entity.
type Category string

const (
	CategoryContent Category = "content"
	CategoryMedia   Category = "media"
	CategoryMember  Category = "member"
)

// ParseCategory parses a category name case-insensitively.
func ParseCategory(s string) (Category, bool) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryContent:
		return CategoryContent, true
	case CategoryMedia:
		return CategoryMedia, true
	case CategoryMember:
		return CategoryMember, true
	default:
		return "", false
	}
}

// Well-known field names.
const (
	FieldID              = "id"
	FieldPath            = "path"
	FieldKey             = "__Key"
	FieldNodeName        = "nodeName"
	FieldParentID        = "parentID"
	FieldLevel           = "level"
	FieldNodeType        = "nodeType"
	FieldPublished       = "__published"
	FieldVariesByCulture = "__variesByCulture"
	FieldCreateDate      = "createDate"
	FieldUpdateDate      = "updateDate"
)

// publishedCulturePrefix starts the per-culture published marker, e.g. "__published_en-us".
const publishedCulturePrefix = FieldPublished + "_"

// Tree sentinels. Paths are comma-separated ancestor ids from the root to the node itself.
const (
	RootID              = -1
	RecycleBinContentID = -20
	RecycleBinMediaID   = -21
)

// Yes and No are the values of the published and varies-by-culture marker fields.
const (
	Yes = "y"
	No  = "n"
)

// systemFields are never removed by include-field redaction.
var systemFields = map[string]struct{}{
	FieldID:       {},
	FieldPath:     {},
	FieldNodeType: {},
}

// IsSystemField reports whether name is protected from include-field redaction.
func IsSystemField(name string) bool {
	_, ok := systemFields[name]
	return ok
}

// IsPurgeKey reports whether name survives every redaction. Content type
// purges find documents by it.
func IsPurgeKey(name string) bool {
	return name == FieldNodeType
}

// ValueSet is one searchable document before it reaches an index.
// Fields map a field name to one or more scalar values.
type ValueSet struct {
	ID       string
	Category Category
	ItemType string
	Fields   map[string][]any
}

// New creates a ValueSet. fields may be nil.
func New(id string, category Category, itemType string, fields map[string][]any) *ValueSet {
	vs := &ValueSet{
		ID:       id,
		Category: category,
		ItemType: itemType,
		Fields:   make(map[string][]any, len(fields)),
	}
	for k, v := range fields {
		vs.Set(k, v...)
	}
	return vs
}

// Set replaces the values of a field. The last write for a key wins.
func (v *ValueSet) Set(name string, values ...any) {
	if v.Fields == nil {
		v.Fields = make(map[string][]any)
	}
	cp := make([]any, len(values))
	copy(cp, values)
	v.Fields[name] = cp
}

// Values returns the values of a field and whether it is present.
func (v *ValueSet) Values(name string) ([]any, bool) {
	vals, ok := v.Fields[name]
	return vals, ok
}

// First returns the first value of a field rendered as a string.
// Missing or empty fields yield "", false.
func (v *ValueSet) First(name string) (string, bool) {
	vals, ok := v.Fields[name]
	if !ok || len(vals) == 0 || vals[0] == nil {
		return "", false
	}
	return toString(vals[0]), true
}

// Strings returns every non-nil value of a field rendered as a string.
func (v *ValueSet) Strings(name string) []string {
	vals := v.Fields[name]
	out := make([]string, 0, len(vals))
	for _, val := range vals {
		if val != nil {
			out = append(out, toString(val))
		}
	}
	return out
}

// Path returns the ancestor path, if present.
func (v *ValueSet) Path() (string, bool) {
	p, ok := v.First(FieldPath)
	if !ok || p == "" {
		return "", false
	}
	return p, true
}

// FieldNames returns the field names in sorted order.
func (v *ValueSet) FieldNames() []string {
	names := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the field map and identity.
func (v *ValueSet) Clone() *ValueSet {
	return New(v.ID, v.Category, v.ItemType, v.Fields)
}

// PathContainsAncestor reports whether id appears in path as a strict ancestor,
// i.e. followed by another segment. The node itself (last segment) does not count.
func PathContainsAncestor(path string, id int) bool {
	segments := strings.Split(path, ",")
	needle := itoa(id)
	for i := 0; i < len(segments)-1; i++ {
		if strings.TrimSpace(segments[i]) == needle {
			return true
		}
	}
	return false
}

// RecycleBinFor returns the recycle bin sentinel for a category.
func RecycleBinFor(category Category) (int, bool) {
	switch category {
	case CategoryContent:
		return RecycleBinContentID, true
	case CategoryMedia:
		return RecycleBinMediaID, true
	default:
		return 0, false
	}
}
