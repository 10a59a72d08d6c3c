package record

import "fmt"

// Violation reports a failed validation rule for one attribute.
type Violation struct {
	Rule      string
	Attribute string
	Message   string
}

// Result aggregates violations from validator evaluation.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// OK reports whether the result carries no violations.
func (r Result) OK() bool { return len(r.Violations) == 0 }

// Validator defines a validation rule evaluated against a record's working
// attribute state during the validating phase.
type Validator interface {
	Name() string
	Validate(r *Record) Result
}

// Required fails when the named attribute is absent or empty.
func Required(attribute string) Validator {
	return FuncValidator(fmt.Sprintf("required_%s", attribute), func(r *Record) Result {
		value := r.Get(attribute)
		if value == nil || value == "" {
			return Result{Violations: []Violation{{
				Rule:      "required",
				Attribute: attribute,
				Message:   fmt.Sprintf("%s must be present", attribute),
			}}}
		}
		return Result{}
	})
}

// MaxLength fails when the named string attribute exceeds max characters.
// Non-string values pass; pairing with Required covers absence.
func MaxLength(attribute string, max int) Validator {
	return FuncValidator(fmt.Sprintf("max_length_%s", attribute), func(r *Record) Result {
		s, ok := r.Get(attribute).(string)
		if !ok || len(s) <= max {
			return Result{}
		}
		return Result{Violations: []Violation{{
			Rule:      "max_length",
			Attribute: attribute,
			Message:   fmt.Sprintf("%s must be at most %d characters", attribute, max),
		}}}
	})
}

// FuncValidator adapts a plain function into a named Validator.
func FuncValidator(name string, fn func(*Record) Result) Validator {
	return funcValidator{name: name, fn: fn}
}

type funcValidator struct {
	name string
	fn   func(*Record) Result
}

func (v funcValidator) Name() string              { return v.name }
func (v funcValidator) Validate(r *Record) Result { return v.fn(r) }
