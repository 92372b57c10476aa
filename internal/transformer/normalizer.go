package transformer

import (
	"realty/pkg/records"
)

// Report describes what went wrong while normalizing one record.
// A zero Report means every rule succeeded without collisions.
type Report struct {
	Failures   []*RuleError
	Collisions []Collision
}

// Empty reports whether nothing went wrong.
func (r Report) Empty() bool {
	return len(r.Failures) == 0 && len(r.Collisions) == 0
}

// Normalizer applies every rule of a registry to one raw record.
type Normalizer struct {
	reg *Registry
}

func NewNormalizer(reg *Registry) *Normalizer {
	if reg == nil {
		reg = MustRegistry()
	}
	return &Normalizer{reg: reg}
}

// Registry returns the rule set in use.
func (n *Normalizer) Registry() *Registry { return n.reg }

// Normalize builds the canonical record for raw.
//
// Each rule runs exactly once, in registry order. A failing rule contributes
// nothing and does not affect the others; the result is never nil, even when
// every rule fails.
func (n *Normalizer) Normalize(raw records.Record) records.Record {
	out, _ := n.NormalizeReport(raw)
	return out
}

// NormalizeReport is Normalize plus the per-rule failures and field collisions.
func (n *Normalizer) NormalizeReport(raw records.Record) (records.Record, Report) {
	out := make(records.Record, n.reg.Len())
	owners := make(map[string]string, n.reg.Len())

	var rep Report
	for _, rule := range n.reg.rules {
		frag, err := rule.Apply(raw)
		if err != nil {
			rep.Failures = append(rep.Failures, asRuleError(rule.Name, err))
			continue
		}
		rep.Collisions = append(rep.Collisions, Merge(out, owners, rule.Name, frag)...)
	}
	return out, rep
}

func asRuleError(name string, err error) *RuleError {
	if re, ok := err.(*RuleError); ok {
		return re
	}
	return &RuleError{Rule: name, Err: err}
}
