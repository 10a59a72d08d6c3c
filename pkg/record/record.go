package record

import (
	"reflect"
	"sort"
)

// Record is one in-memory instance of a record type. It carries the working
// attribute state, the last persisted state for dirty tracking, and the
// persisted flag that drives key-state checks in the staging pipeline.
//
// A Record is not safe for concurrent use; callers must serialize access.
type Record struct {
	def       *Definition
	attrs     map[string]any
	clean     map[string]any
	persisted bool
}

// Definition returns the record type descriptor.
func (r *Record) Definition() *Definition { return r.def }

// Get returns the current in-memory value of an attribute.
func (r *Record) Get(name string) any { return r.attrs[name] }

// Set assigns an attribute value after checking it against the declared schema.
func (r *Record) Set(name string, value any) error {
	if err := r.def.checkAttribute(name); err != nil {
		return err
	}
	r.attrs[name] = value
	return nil
}

// SetAll assigns every entry of attrs; the keys must be a subset of the
// declared attributes.
func (r *Record) SetAll(attrs map[string]any) error {
	for name := range attrs {
		if err := r.def.checkAttribute(name); err != nil {
			return err
		}
	}
	for name, value := range attrs {
		r.attrs[name] = value
	}
	return nil
}

// Attributes returns a copy of the current attribute state.
func (r *Record) Attributes() map[string]any { return cloneAttrs(r.attrs) }

// HashKeyValue returns the partition key value, nil when unassigned.
func (r *Record) HashKeyValue() any { return r.attrs[r.def.HashKey] }

// RangeKeyValue returns the sort key value, nil when unassigned or when the
// type uses a simple key.
func (r *Record) RangeKeyValue() any {
	if r.def.RangeKey == "" {
		return nil
	}
	return r.attrs[r.def.RangeKey]
}

// Key returns the primary key attributes as a map.
func (r *Record) Key() map[string]any {
	key := map[string]any{r.def.HashKey: r.HashKeyValue()}
	if r.def.RangeKey != "" {
		key[r.def.RangeKey] = r.RangeKeyValue()
	}
	return key
}

// IsPersisted reports whether the record represents a committed row.
func (r *Record) IsPersisted() bool { return r.persisted }

// Dirty reports whether the working state differs from the last persisted state.
func (r *Record) Dirty() bool { return len(r.Changed()) > 0 }

// Changed returns the sorted names of attributes whose working value differs
// from the last persisted value.
func (r *Record) Changed() []string {
	var names []string
	for name, value := range r.attrs {
		if prev, ok := r.clean[name]; !ok || !reflect.DeepEqual(prev, value) {
			names = append(names, name)
		}
	}
	for name := range r.clean {
		if _, ok := r.attrs[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Memento captures a record's full state for restore on transaction abort.
type Memento struct {
	attrs     map[string]any
	clean     map[string]any
	persisted bool
}

// Snapshot captures the current state.
func (r *Record) Snapshot() Memento {
	return Memento{attrs: cloneAttrs(r.attrs), clean: cloneAttrs(r.clean), persisted: r.persisted}
}

// Restore rewinds the record to a previously captured state.
func (r *Record) Restore(m Memento) {
	r.attrs = cloneAttrs(m.attrs)
	r.clean = cloneAttrs(m.clean)
	r.persisted = m.persisted
}

// MarkCommitted records that the working state has been accepted by the
// store: the record becomes clean and persisted so subsequent reads of the
// same instance reflect the committed values without a re-fetch.
func (r *Record) MarkCommitted() {
	r.clean = cloneAttrs(r.attrs)
	r.persisted = true
}

// MarkDeleted records that the backing row is gone; the in-memory attributes
// are kept for inspection but the record is no longer persisted.
func (r *Record) MarkDeleted() {
	r.clean = nil
	r.persisted = false
}

func cloneAttrs(attrs map[string]any) map[string]any {
	if attrs == nil {
		return nil
	}
	cp := make(map[string]any, len(attrs))
	for k, v := range attrs {
		cp[k] = v
	}
	return cp
}
