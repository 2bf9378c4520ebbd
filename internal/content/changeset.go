package content

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	ierrors "github.com/Aman-CERP/contentindex/internal/errors"
	"github.com/Aman-CERP/contentindex/internal/valueset"
)

// Changeset operation names.
const (
	OpSave       = "save"
	OpPublish    = "publish"
	OpUnpublish  = "unpublish"
	OpTrash      = "trash"
	OpRestore    = "restore"
	OpDelete     = "delete"
	OpProtect    = "protect"
	OpUnprotect  = "unprotect"
	OpDeleteType = "delete_type"
)

// EntitySpec is the YAML form of an Entity.
type EntitySpec struct {
	ID                int                       `yaml:"id"`
	Category          string                    `yaml:"category"`
	ParentID          int                       `yaml:"parent_id"`
	TypeID            int                       `yaml:"type_id"`
	TypeAlias         string                    `yaml:"type_alias"`
	Name              string                    `yaml:"name"`
	Published         bool                      `yaml:"published"`
	VariesByCulture   bool                      `yaml:"varies_by_culture"`
	Cultures          map[string]Culture        `yaml:"cultures"`
	Properties        map[string]any            `yaml:"properties"`
	VariantProperties map[string]map[string]any `yaml:"variant_properties"`
	Email             string                    `yaml:"email"`
	LoginName         string                    `yaml:"login_name"`
}

// Entity validates s and converts it to an Entity.
func (s EntitySpec) Entity() (*Entity, error) {
	category, ok := valueset.ParseCategory(s.Category)
	if !ok {
		return nil, ierrors.InvalidInput(fmt.Sprintf("entity %d: unknown category %q", s.ID, s.Category))
	}
	e := &Entity{
		ID:              s.ID,
		Category:        category,
		ParentID:        s.ParentID,
		TypeID:          s.TypeID,
		TypeAlias:       s.TypeAlias,
		Name:            s.Name,
		Published:       s.Published,
		VariesByCulture: s.VariesByCulture,
		Cultures:        s.Cultures,
		Email:           s.Email,
		LoginName:       s.LoginName,
	}
	for alias, v := range s.Properties {
		e.SetProperty(alias, InvariantCulture, v)
	}
	for alias, byCulture := range s.VariantProperties {
		for culture, v := range byCulture {
			e.SetProperty(alias, culture, v)
		}
	}
	return e, nil
}

// Operation is one step of a changeset.
type Operation struct {
	Op       string      `yaml:"op"`
	ID       int         `yaml:"id"`
	ParentID int         `yaml:"parent_id"`
	TypeID   int         `yaml:"type_id"`
	Cultures []string    `yaml:"cultures"`
	Entity   *EntitySpec `yaml:"entity"`
}

// Changeset is an ordered list of content operations.
type Changeset struct {
	Operations []Operation `yaml:"operations"`
}

// LoadChangeset reads a changeset from a YAML file.
func LoadChangeset(path string) (*Changeset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ierrors.InvalidInput(fmt.Sprintf("open changeset: %v", err))
	}
	defer f.Close()
	return ParseChangeset(f)
}

// ParseChangeset decodes a changeset and checks every operation.
func ParseChangeset(r io.Reader) (*Changeset, error) {
	var cs Changeset
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cs); err != nil && err != io.EOF {
		return nil, ierrors.InvalidInput(fmt.Sprintf("parse changeset: %v", err))
	}
	for i, op := range cs.Operations {
		if err := op.check(); err != nil {
			return nil, ierrors.InvalidInput(fmt.Sprintf("operation %d: %v", i+1, err))
		}
	}
	return &cs, nil
}

func (o Operation) check() error {
	switch o.Op {
	case OpSave:
		if o.Entity == nil {
			return fmt.Errorf("%s requires entity", o.Op)
		}
	case OpPublish, OpUnpublish, OpTrash, OpDelete, OpProtect, OpUnprotect:
		if o.ID == 0 {
			return fmt.Errorf("%s requires id", o.Op)
		}
	case OpRestore:
		if o.ID == 0 || o.ParentID == 0 {
			return fmt.Errorf("%s requires id and parent_id", o.Op)
		}
	case OpDeleteType:
		if o.TypeID == 0 {
			return fmt.Errorf("%s requires type_id", o.Op)
		}
	default:
		return fmt.Errorf("unknown op %q", o.Op)
	}
	return nil
}

// Apply runs the operations in order through svc, stopping at the first error.
// Callers wrap Apply in a scope to make the changeset one unit of work.
func (cs *Changeset) Apply(ctx context.Context, svc *Service) error {
	for i, op := range cs.Operations {
		if err := op.apply(ctx, svc); err != nil {
			return fmt.Errorf("operation %d (%s): %w", i+1, op.Op, err)
		}
	}
	return nil
}

func (o Operation) apply(ctx context.Context, svc *Service) error {
	switch o.Op {
	case OpSave:
		e, err := o.Entity.Entity()
		if err != nil {
			return err
		}
		return svc.Save(ctx, e)
	case OpPublish:
		return svc.Publish(ctx, o.ID, o.Cultures...)
	case OpUnpublish:
		return svc.Unpublish(ctx, o.ID)
	case OpTrash:
		return svc.MoveToRecycleBin(ctx, o.ID)
	case OpRestore:
		return svc.Restore(ctx, o.ID, o.ParentID)
	case OpDelete:
		return svc.Delete(ctx, o.ID)
	case OpProtect:
		return svc.Protect(ctx, o.ID)
	case OpUnprotect:
		return svc.Unprotect(ctx, o.ID)
	case OpDeleteType:
		return svc.DeleteContentType(ctx, o.TypeID)
	default:
		return fmt.Errorf("unknown op %q", o.Op)
	}
}
