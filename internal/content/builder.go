package content

import (
	"sort"
	"strconv"
	"strings"

	"github.com/Aman-CERP/contentindex/internal/valueset"
)

// Field names emitted in addition to the valueset well-known fields.
const (
	FieldNodeTypeAlias = "__NodeTypeAlias"
	FieldEmail         = "email"
	FieldLoginName     = "loginName"
)

// Builder turns an entity into zero or more value sets.
type Builder interface {
	Build(e *Entity) []*valueset.ValueSet
}

// BuilderFor returns the builder for a category.
func BuilderFor(category valueset.Category) (Builder, bool) {
	switch category {
	case valueset.CategoryContent:
		return ContentBuilder{}, true
	case valueset.CategoryMedia:
		return MediaBuilder{}, true
	case valueset.CategoryMember:
		return MemberBuilder{}, true
	default:
		return nil, false
	}
}

// ContentBuilder builds content value sets, including per-culture fields for
// variant content.
type ContentBuilder struct{}

// Build implements Builder.
func (ContentBuilder) Build(e *Entity) []*valueset.ValueSet {
	vs := baseValueSet(e)
	vs.Set(valueset.FieldPublished, yesNo(e.Published))
	vs.Set(valueset.FieldVariesByCulture, yesNo(e.VariesByCulture))

	if e.VariesByCulture {
		for _, key := range sortedCultures(e.Cultures) {
			c := e.Cultures[key]
			culture := strings.ToLower(key)
			vs.Set(valueset.FieldPublished+"_"+culture, yesNo(c.Published))
			if c.Name != "" {
				vs.Set(valueset.FieldNodeName+"_"+culture, c.Name)
			}
		}
	}
	addProperties(vs, e)
	return []*valueset.ValueSet{vs}
}

// MediaBuilder builds media value sets. Media has no publish workflow and is
// always marked published.
type MediaBuilder struct{}

// Build implements Builder.
func (MediaBuilder) Build(e *Entity) []*valueset.ValueSet {
	vs := baseValueSet(e)
	vs.Set(valueset.FieldPublished, valueset.Yes)
	addProperties(vs, e)
	return []*valueset.ValueSet{vs}
}

// MemberBuilder builds member value sets. The approved flag becomes the published marker.
type MemberBuilder struct{}

// Build implements Builder.
func (MemberBuilder) Build(e *Entity) []*valueset.ValueSet {
	vs := baseValueSet(e)
	vs.Set(valueset.FieldPublished, yesNo(e.Published))
	if e.Email != "" {
		vs.Set(FieldEmail, e.Email)
	}
	if e.LoginName != "" {
		vs.Set(FieldLoginName, e.LoginName)
	}
	addProperties(vs, e)
	return []*valueset.ValueSet{vs}
}

func baseValueSet(e *Entity) *valueset.ValueSet {
	id := strconv.Itoa(e.ID)
	vs := valueset.New(id, e.Category, e.TypeAlias, nil)
	vs.Set(valueset.FieldID, id)
	vs.Set(valueset.FieldKey, e.Key.String())
	vs.Set(valueset.FieldNodeName, e.Name)
	vs.Set(valueset.FieldPath, e.Path)
	vs.Set(valueset.FieldParentID, strconv.Itoa(e.ParentID))
	vs.Set(valueset.FieldLevel, e.Level)
	vs.Set(valueset.FieldNodeType, strconv.Itoa(e.TypeID))
	vs.Set(FieldNodeTypeAlias, e.TypeAlias)
	if !e.CreateDate.IsZero() {
		vs.Set(valueset.FieldCreateDate, e.CreateDate)
	}
	if !e.UpdateDate.IsZero() {
		vs.Set(valueset.FieldUpdateDate, e.UpdateDate)
	}
	return vs
}

// addProperties emits alias for invariant values and alias_<culture> for variant ones.
// Property values never overwrite system fields.
func addProperties(vs *valueset.ValueSet, e *Entity) {
	aliases := make([]string, 0, len(e.Properties))
	for alias := range e.Properties {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	for _, alias := range aliases {
		if _, taken := vs.Fields[alias]; taken {
			continue
		}
		for culture, value := range e.Properties[alias] {
			if value == nil {
				continue
			}
			name := alias
			if culture != InvariantCulture {
				name = alias + "_" + strings.ToLower(culture)
			}
			if vals, ok := value.([]any); ok {
				vs.Set(name, vals...)
			} else {
				vs.Set(name, value)
			}
		}
	}
}

func sortedCultures(cultures map[string]Culture) []string {
	out := make([]string, 0, len(cultures))
	for c := range cultures {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func yesNo(b bool) string {
	if b {
		return valueset.Yes
	}
	return valueset.No
}
