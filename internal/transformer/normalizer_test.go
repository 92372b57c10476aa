package transformer

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"realty/pkg/records"
)

func constRule(name, field string, v any) Rule {
	return Rule{
		Name:   name,
		Fields: []string{field},
		Extract: func(records.Record) (Fragment, error) {
			return Fragment{field: v}, nil
		},
	}
}

func copyRule(name, rawKey, field string) Rule {
	return Rule{
		Name:   name,
		Fields: []string{field},
		Extract: func(raw records.Record) (Fragment, error) {
			v, ok := raw[rawKey]
			if !ok {
				return nil, MissingField(rawKey)
			}
			return Fragment{field: v}, nil
		},
	}
}

func TestRegistry_ValidatesRules(t *testing.T) {
	t.Parallel()

	ok := constRule("area", "area", 1.0)
	cases := []struct {
		name  string
		rules []Rule
		want  string
	}{
		{"bad name", []Rule{constRule("Area", "area", 1)}, "invalid name"},
		{"dash", []Rule{constRule("price-base", "price_base", 1)}, "invalid name"},
		{"duplicate", []Rule{ok, ok}, "duplicate name"},
		{"nil func", []Rule{{Name: "floor"}}, "nil extract func"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewRegistry(tc.rules...)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err=%v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestRegistry_KeepsOrderAndFields(t *testing.T) {
	t.Parallel()

	reg := MustRegistry(
		constRule("type", "type", "flat"),
		constRule("area", "area", 1.0),
		Rule{Name: "article", Extract: func(records.Record) (Fragment, error) { return nil, nil }},
	)

	if got, want := reg.Names(), []string{"type", "area", "article"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Names()=%v, want %v", got, want)
	}
	if got, want := reg.Fields(), []string{"area", "type"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Fields()=%v, want %v", got, want)
	}
	if _, ok := reg.Get("area"); !ok {
		t.Fatalf("Get(area) not found")
	}
	if _, ok := reg.Get("nope"); ok {
		t.Fatalf("Get(nope) found")
	}

	rules := reg.Rules()
	rules[0].Name = "mutated"
	if reg.Names()[0] != "type" {
		t.Fatalf("Rules() must return a copy")
	}
}

func TestRuleApply_RecoversPanic(t *testing.T) {
	t.Parallel()

	r := Rule{Name: "boom", Extract: func(raw records.Record) (Fragment, error) {
		var m map[string]int
		m["x"] = raw["n"].(int) // nil map write, or bad assertion
		return nil, nil
	}}

	frag, err := r.Apply(records.Record{"n": "not an int"})
	if frag != nil {
		t.Fatalf("expected nil fragment, got %v", frag)
	}
	if !errors.Is(err, ErrRulePanic) {
		t.Fatalf("expected ErrRulePanic, got %v", err)
	}
	var re *RuleError
	if !errors.As(err, &re) || re.Rule != "boom" {
		t.Fatalf("expected *RuleError for boom, got %#v", err)
	}
}

func TestNormalize_FailingRulesAreLocal(t *testing.T) {
	t.Parallel()

	reg := MustRegistry(
		copyRule("area", "sq", "area"),
		Rule{Name: "panics", Extract: func(records.Record) (Fragment, error) { panic("bad") }},
		copyRule("floor", "floor", "floor"),
		copyRule("section", "section", "section"),
	)
	n := NewNormalizer(reg)

	raw := records.Record{"sq": 42.5, "floor": int64(3)}
	got, rep := n.NormalizeReport(raw)

	want := records.Record{"area": 42.5, "floor": int64(3)}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if len(rep.Failures) != 2 {
		t.Fatalf("expected 2 failures, got %d: %v", len(rep.Failures), rep.Failures)
	}
	if rep.Failures[0].Rule != "panics" || !errors.Is(rep.Failures[0], ErrRulePanic) {
		t.Fatalf("failure[0]=%v", rep.Failures[0])
	}
	if rep.Failures[1].Rule != "section" || !errors.Is(rep.Failures[1], ErrMissingField) {
		t.Fatalf("failure[1]=%v", rep.Failures[1])
	}
}

func TestNormalize_AllRulesFailYieldsEmptyRecord(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(MustRegistry(copyRule("area", "sq", "area"), copyRule("floor", "floor", "floor")))
	got := n.Normalize(records.Record{})
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil record, got %#v", got)
	}

	got = n.Normalize(nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil record for nil raw, got %#v", got)
	}
}

func TestNormalize_NullIsNotAbsent(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(MustRegistry(
		constRule("phase", "phase", nil),
		Rule{Name: "comment", Extract: func(records.Record) (Fragment, error) { return Fragment{}, nil }},
	))
	got := n.Normalize(records.Record{})
	if v, ok := got["phase"]; !ok || v != nil {
		t.Fatalf("phase: ok=%v v=%v, want present nil", ok, v)
	}
	if got.Has("comment") {
		t.Fatalf("comment must be absent")
	}
}

func TestNormalize_DisjointRulesCommute(t *testing.T) {
	t.Parallel()

	a := copyRule("area", "sq", "area")
	b := copyRule("floor", "floor", "floor")
	c := constRule("finished", "finished", int64(1))
	raw := records.Record{"sq": 30.0, "floor": int64(7)}

	orders := [][]Rule{{a, b, c}, {c, b, a}, {b, a, c}}
	var first records.Record
	for i, rules := range orders {
		got := NewNormalizer(MustRegistry(rules...)).Normalize(raw)
		if i == 0 {
			first = got
			continue
		}
		if !reflect.DeepEqual(got, first) {
			t.Fatalf("order %d: got %v, want %v", i, got, first)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(MustRegistry(
		copyRule("area", "sq", "area"),
		Rule{Name: "view", Extract: func(raw records.Record) (Fragment, error) {
			return Fragment{"view": []string{"park", "river"}}, nil
		}},
	))
	raw := records.Record{"sq": 51.2}

	a := n.Normalize(raw)
	b := n.Normalize(raw)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("not idempotent: %v vs %v", a, b)
	}
	if !reflect.DeepEqual(raw, records.Record{"sq": 51.2}) {
		t.Fatalf("raw record mutated: %v", raw)
	}
}

func TestNormalize_LaterRuleWinsAndCollisionIsReported(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(MustRegistry(
		constRule("first", "status", "a"),
		constRule("second", "status", "b"),
	))
	got, rep := n.NormalizeReport(records.Record{})

	if got["status"] != "b" {
		t.Fatalf("status=%v, want later value b", got["status"])
	}
	want := []Collision{{Field: "status", Earlier: "first", Later: "second"}}
	if !reflect.DeepEqual(rep.Collisions, want) {
		t.Fatalf("collisions=%v, want %v", rep.Collisions, want)
	}
}

func TestMerge_SortedCollisions(t *testing.T) {
	t.Parallel()

	dst := records.Record{}
	owners := map[string]string{}
	if c := Merge(dst, owners, "a", Fragment{"x": 1, "y": 2}); c != nil {
		t.Fatalf("unexpected collisions %v", c)
	}
	c := Merge(dst, owners, "b", Fragment{"z": 3, "y": 4, "x": 5})
	want := []Collision{{"x", "a", "b"}, {"y", "a", "b"}}
	if !reflect.DeepEqual(c, want) {
		t.Fatalf("collisions=%v, want %v", c, want)
	}
	if dst["x"] != 5 || dst["y"] != 4 || dst["z"] != 3 {
		t.Fatalf("dst=%v", dst)
	}
	if owners["z"] != "b" {
		t.Fatalf("owners=%v", owners)
	}
}
