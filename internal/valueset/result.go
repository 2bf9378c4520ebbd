package valueset

// Status is the terminal outcome of validating a ValueSet against one index.
type Status int

const (
	// Valid means the (possibly redacted) ValueSet may be written.
	Valid Status = iota
	// Filtered means the ValueSet is skipped for this index. Not an error.
	Filtered
	// Failed means the ValueSet must not reach this index and direct callers reject it.
	Failed
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case Valid:
		return "valid"
	case Filtered:
		return "filtered"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Reasons attached to non-valid results, used in logs and CLI output.
const (
	ReasonItemTypeNotIncluded = "item_type_not_included"
	ReasonItemTypeExcluded    = "item_type_excluded"
	ReasonMissingPath         = "missing_path"
	ReasonOutsideParent       = "outside_parent"
	ReasonRecycleBin          = "recycle_bin"
	ReasonNotPublished        = "not_published"
	ReasonProtected           = "protected"
)

// Result is the outcome of Validate. ValueSet is a copy of the input; for Valid
// results it has culture stripping and field redaction applied.
type Result struct {
	Status   Status
	Reason   string
	ValueSet *ValueSet
}

// IsValid reports whether the result may be written to the index.
func (r Result) IsValid() bool {
	return r.Status == Valid
}
