// Package content is the system of record for content, media and members.
// It persists entities in SQLite, turns them into value sets for indexing and
// raises change notifications from its service operations.
package content

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/contentindex/internal/valueset"
)

// Culture is the per-culture state of a variant entity.
type Culture struct {
	Name      string `json:"name" yaml:"name"`
	Published bool   `json:"published" yaml:"published"`
}

// InvariantCulture keys invariant property values.
const InvariantCulture = ""

// Entity is a content node, media item or member.
type Entity struct {
	ID        int
	Key       uuid.UUID
	Category  valueset.Category
	ParentID  int
	Path      string
	Level     int
	TypeID    int
	TypeAlias string
	Name      string

	// Published is the publish state for content and the approved flag for members.
	// Media is always published.
	Published       bool
	VariesByCulture bool
	Cultures        map[string]Culture

	// Properties maps a property alias to its values by culture; InvariantCulture
	// holds the invariant value.
	Properties map[string]map[string]any

	// Member only.
	Email     string
	LoginName string

	CreateDate time.Time
	UpdateDate time.Time
}

// SetProperty sets the value of a property for a culture.
func (e *Entity) SetProperty(alias, culture string, value any) {
	if e.Properties == nil {
		e.Properties = make(map[string]map[string]any)
	}
	if e.Properties[alias] == nil {
		e.Properties[alias] = make(map[string]any)
	}
	e.Properties[alias][strings.ToLower(culture)] = value
}

// IsTrashed reports whether the entity sits in its category's recycle bin.
func (e *Entity) IsTrashed() bool {
	bin, ok := valueset.RecycleBinFor(e.Category)
	return ok && valueset.PathContainsAncestor(e.Path, bin)
}

// childPath returns the path of a child with id under a node at parentPath.
func childPath(parentPath string, id int) string {
	return parentPath + "," + strconv.Itoa(id)
}

// sentinelPath returns the path of a tree sentinel (root or recycle bin).
func sentinelPath(id int) (string, bool) {
	switch id {
	case valueset.RootID:
		return strconv.Itoa(valueset.RootID), true
	case valueset.RecycleBinContentID, valueset.RecycleBinMediaID:
		return strconv.Itoa(valueset.RootID) + "," + strconv.Itoa(id), true
	default:
		return "", false
	}
}

func pathLevel(path string) int {
	return strings.Count(path, ",")
}
