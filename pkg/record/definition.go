// Package record defines the model layer consumed by the transaction
// coordinator: record-type definitions, attribute state with dirty tracking,
// validation rules, lifecycle hooks, and the write-request payloads handed to
// commit stores.
package record

import "fmt"

// Timestamp attribute names maintained automatically when a definition
// declares timestamp tracking.
const (
	AttrCreatedAt = "created_at"
	AttrUpdatedAt = "updated_at"
)

// Definition describes one record type: its table, key schema, declared
// attributes, and the validation and lifecycle behavior attached to it.
// A Definition is built once at startup and must not be mutated afterwards;
// hook and validator lists are resolved at registration time.
type Definition struct {
	// Table is the backing store table name.
	Table string
	// HashKey names the partition key attribute.
	HashKey string
	// RangeKey names the sort key attribute; empty for simple keys.
	RangeKey string
	// Attributes lists the non-key attributes the type declares.
	Attributes []string
	// Timestamps enables created_at/updated_at maintenance.
	Timestamps bool
	// AutoID assigns a generated hash key to first-time creates that have none.
	AutoID bool
	// LockAttribute names an optimistic-lock counter attribute; empty disables
	// lock conditions on staged writes.
	LockAttribute string

	validators []Validator
	hooks      hookSet
}

// RegisterValidator appends a validation rule evaluated during the
// validating phase of every staged save.
func (d *Definition) RegisterValidator(v Validator) {
	d.validators = append(d.validators, v)
}

// Validators returns the registered rules in registration order.
func (d *Definition) Validators() []Validator {
	return d.validators
}

// HasAttribute reports whether name is a declared attribute, a key attribute,
// or one of the automatically maintained attributes.
func (d *Definition) HasAttribute(name string) bool {
	if name == d.HashKey || (d.RangeKey != "" && name == d.RangeKey) {
		return true
	}
	if d.Timestamps && (name == AttrCreatedAt || name == AttrUpdatedAt) {
		return true
	}
	if d.LockAttribute != "" && name == d.LockAttribute {
		return true
	}
	for _, a := range d.Attributes {
		if a == name {
			return true
		}
	}
	return false
}

// New builds an unpersisted record instance seeded with the given attributes.
func (d *Definition) New(attrs map[string]any) (*Record, error) {
	r := &Record{def: d, attrs: make(map[string]any, len(attrs))}
	if err := r.SetAll(attrs); err != nil {
		return nil, err
	}
	return r, nil
}

// Hydrate builds a record representing an already-persisted row from a
// key-bearing attribute set. The instance starts clean: the supplied
// attributes are treated as the last persisted state.
func (d *Definition) Hydrate(attrs map[string]any) (*Record, error) {
	r, err := d.New(attrs)
	if err != nil {
		return nil, err
	}
	if r.HashKeyValue() == nil {
		return nil, InvalidKeyStateError{Table: d.Table, Reason: "hydrate requires the hash key attribute"}
	}
	if d.RangeKey != "" && r.RangeKeyValue() == nil {
		return nil, InvalidKeyStateError{Table: d.Table, Reason: "hydrate requires the range key attribute"}
	}
	r.persisted = true
	r.clean = cloneAttrs(r.attrs)
	return r, nil
}

func (d *Definition) checkAttribute(name string) error {
	if !d.HasAttribute(name) {
		return fmt.Errorf("unknown attribute %q for table %s", name, d.Table)
	}
	return nil
}
