package valueset

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AccessPolicy answers whether a node path lies under an access-restricted node.
type AccessPolicy interface {
	IsProtected(path string) bool
}

// Validator applies the per-index rule table to ValueSets.
// A Validator is safe for concurrent use as long as its AccessPolicy is.
type Validator struct {
	access AccessPolicy
}

// NewValidator creates a Validator. access may be nil, in which case no path is protected.
func NewValidator(access AccessPolicy) *Validator {
	return &Validator{access: access}
}

// Validate decides whether vs may be written to an index configured with cfg.
//
// Rules run in order and the first Failed/Filtered outcome wins:
//  1. item type include/exclude lists (Failed)
//  2. path presence (Failed)
//  3. parent constraint (Filtered)
//  4. recycle bin: content Failed, media Filtered
//  5. published state for published-only indexes (Failed), stripping unpublished cultures
//  6. protected content (Filtered)
//
// Field redaction then runs on Valid results only.
func (v *Validator) Validate(vs *ValueSet, cfg IndexConfiguration) Result {
	out := vs.Clone()

	if !cfg.includesType(vs.ItemType) {
		return Result{Status: Failed, Reason: ReasonItemTypeNotIncluded, ValueSet: out}
	}
	if cfg.excludesType(vs.ItemType) {
		return Result{Status: Failed, Reason: ReasonItemTypeExcluded, ValueSet: out}
	}

	path, ok := out.Path()
	if !ok {
		return Result{Status: Failed, Reason: ReasonMissingPath, ValueSet: out}
	}

	if cfg.ParentID != 0 && !PathContainsAncestor(path, cfg.ParentID) {
		return Result{Status: Filtered, Reason: ReasonOutsideParent, ValueSet: out}
	}

	if bin, ok := RecycleBinFor(vs.Category); ok && PathContainsAncestor(path, bin) {
		// Trashed content must never reach any index; trashed media is only skipped.
		if vs.Category == CategoryContent {
			return Result{Status: Failed, Reason: ReasonRecycleBin, ValueSet: out}
		}
		return Result{Status: Filtered, Reason: ReasonRecycleBin, ValueSet: out}
	}

	if cfg.PublishedValuesOnly {
		if published, _ := out.First(FieldPublished); published != Yes {
			return Result{Status: Failed, Reason: ReasonNotPublished, ValueSet: out}
		}
		if varies, _ := out.First(FieldVariesByCulture); varies == Yes {
			stripUnpublishedCultures(out)
		}
	}

	if !cfg.IncludeProtected && vs.Category == CategoryContent && v.access != nil && v.access.IsProtected(path) {
		return Result{Status: Filtered, Reason: ReasonProtected, ValueSet: out}
	}

	redact(out, cfg)
	return Result{Status: Valid, ValueSet: out}
}

// stripUnpublishedCultures removes every field suffixed with a culture whose
// __published_<culture> marker is not "y", the marker included.
func stripUnpublishedCultures(vs *ValueSet) {
	var suffixes []string
	for name, values := range vs.Fields {
		if !strings.HasPrefix(name, publishedCulturePrefix) {
			continue
		}
		if len(values) > 0 && toString(values[0]) == Yes {
			continue
		}
		culture := name[len(publishedCulturePrefix):]
		if culture == "" {
			continue
		}
		suffixes = append(suffixes, "_"+strings.ToLower(culture))
	}

	if len(suffixes) == 0 {
		return
	}

	for name := range vs.Fields {
		lower := strings.ToLower(name)
		for _, suffix := range suffixes {
			if strings.HasSuffix(lower, suffix) {
				delete(vs.Fields, name)
				break
			}
		}
	}
}

// redact applies the include list and then the exclude list. System fields
// survive the include list; only the purge key survives both.
func redact(vs *ValueSet, cfg IndexConfiguration) {
	if len(cfg.IncludeFields) > 0 {
		keep := make(map[string]struct{}, len(cfg.IncludeFields))
		for _, f := range cfg.IncludeFields {
			keep[f] = struct{}{}
		}
		for name := range vs.Fields {
			if _, ok := keep[name]; ok || IsSystemField(name) {
				continue
			}
			delete(vs.Fields, name)
		}
	}

	for _, f := range cfg.ExcludeFields {
		if IsPurgeKey(f) {
			continue
		}
		delete(vs.Fields, f)
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return Yes
		}
		return No
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
