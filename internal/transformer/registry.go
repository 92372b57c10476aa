package transformer

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
)

var ruleNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Registry is the fixed, ordered rule set of one canonical schema build.
//
// Registration order is the enumeration order and therefore the merge order
// used by Normalizer. A Registry is read-only after construction and safe for
// concurrent use.
type Registry struct {
	rules []Rule
	index map[string]int
}

// NewRegistry validates rules and returns a registry that enumerates them in
// the given order.
//
// Errors:
//   - a name that is not lowercase snake_case
//   - a duplicate name
//   - a nil Extract func
func NewRegistry(rules ...Rule) (*Registry, error) {
	reg := &Registry{
		rules: make([]Rule, 0, len(rules)),
		index: make(map[string]int, len(rules)),
	}

	var errs []error
	for i, r := range rules {
		if !ruleNameRe.MatchString(r.Name) {
			errs = append(errs, fmt.Errorf("rule #%d: invalid name %q: must be lowercase snake_case", i, r.Name))
			continue
		}
		if _, dup := reg.index[r.Name]; dup {
			errs = append(errs, fmt.Errorf("rule #%d: duplicate name %q", i, r.Name))
			continue
		}
		if r.Extract == nil {
			errs = append(errs, fmt.Errorf("rule %q: nil extract func", r.Name))
			continue
		}
		r.Fields = append([]string(nil), r.Fields...)
		reg.index[r.Name] = len(reg.rules)
		reg.rules = append(reg.rules, r)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return reg, nil
}

// MustRegistry is NewRegistry for rule sets fixed at compile time.
// It panics on an invalid rule set.
func MustRegistry(rules ...Rule) *Registry {
	reg, err := NewRegistry(rules...)
	if err != nil {
		panic(err)
	}
	return reg
}

// Len returns the number of rules.
func (r *Registry) Len() int { return len(r.rules) }

// Rules returns the rules in enumeration order. The slice is a copy.
func (r *Registry) Rules() []Rule {
	return append([]Rule(nil), r.rules...)
}

// Names returns rule names in enumeration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.rules))
	for i, rule := range r.rules {
		out[i] = rule.Name
	}
	return out
}

// Get returns a rule by name.
func (r *Registry) Get(name string) (Rule, bool) {
	i, ok := r.index[name]
	if !ok {
		return Rule{}, false
	}
	return r.rules[i], true
}

// Fields returns the sorted union of the fields every rule declares.
func (r *Registry) Fields() []string {
	seen := make(map[string]struct{})
	for _, rule := range r.rules {
		for _, f := range rule.Fields {
			seen[f] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
