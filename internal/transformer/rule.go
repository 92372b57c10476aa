// Package transformer turns raw listing records into canonical records.
//
// The unit of work is a Rule: a named, independent function that reads one raw
// record and derives a Fragment (zero or more canonical fields). A Registry
// holds the ordered rule set of one schema build, a Normalizer applies every
// rule to a record and merges the fragments, and a Translator does that for a
// whole decoded page.
package transformer

import (
	"errors"
	"fmt"

	"realty/pkg/records"
)

// Fragment is the partial canonical output of one rule.
//
// A nil or empty Fragment is a valid success: the rule intentionally
// contributes no field to this schema build.
type Fragment map[string]any

// ExtractFunc derives a Fragment from one raw record.
//
// It must only read raw (never write to it, never look at another rule's
// output) and must return a non-nil error when it cannot derive its fields.
type ExtractFunc func(raw records.Record) (Fragment, error)

// Rule is one named extraction rule.
type Rule struct {
	// Name is the stable, lowercase snake_case identifier of the rule.
	Name string

	// Fields lists the canonical fields the rule may emit. It documents the
	// schema of a build; Apply does not enforce it.
	Fields []string

	// Extract implements the rule.
	Extract ExtractFunc
}

var (
	// ErrMissingField means a raw key the rule needs is absent.
	ErrMissingField = errors.New("missing raw field")

	// ErrTypeMismatch means a raw value has a type or format the rule cannot use.
	ErrTypeMismatch = errors.New("unexpected raw value")

	// ErrRulePanic means the rule body panicked; Apply recovered it.
	ErrRulePanic = errors.New("rule panicked")
)

// RuleError is the failure outcome of one rule on one record.
type RuleError struct {
	Rule string
	Err  error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s: %v", e.Rule, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// MissingField builds an ErrMissingField failure for raw key.
func MissingField(key string) error {
	return fmt.Errorf("%w: %q", ErrMissingField, key)
}

// TypeMismatch builds an ErrTypeMismatch failure for raw key holding v.
func TypeMismatch(key string, v any) error {
	return fmt.Errorf("%w: %q holds %T(%v)", ErrTypeMismatch, key, v, v)
}

// Apply runs the rule against raw.
//
// Every failure, including a panic inside Extract, comes back as a
// *RuleError; nothing escapes to the caller.
func (r Rule) Apply(raw records.Record) (frag Fragment, err error) {
	defer func() {
		if p := recover(); p != nil {
			frag = nil
			err = &RuleError{Rule: r.Name, Err: fmt.Errorf("%w: %v", ErrRulePanic, p)}
		}
	}()

	if r.Extract == nil {
		return nil, &RuleError{Rule: r.Name, Err: errors.New("rule has no extract func")}
	}

	frag, err = r.Extract(raw)
	if err != nil {
		return nil, &RuleError{Rule: r.Name, Err: err}
	}
	return frag, nil
}
