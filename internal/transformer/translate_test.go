package transformer

import (
	"testing"

	"realty/pkg/records"
)

func TestTranslate_EmptyInputIsSentinel(t *testing.T) {
	t.Parallel()

	tr := NewTranslator(NewNormalizer(MustRegistry(constRule("finished", "finished", 1))))

	for _, in := range [][]records.Record{nil, {}} {
		out, ok := tr.Translate(in)
		if ok || out != nil {
			t.Fatalf("Translate(%#v)=(%v,%v), want (nil,false)", in, out, ok)
		}
	}
}

func TestTranslate_KeepsOrderAndEmptyRecords(t *testing.T) {
	t.Parallel()

	tr := NewTranslator(NewNormalizer(MustRegistry(copyRule("number", "num", "number"))))

	in := []records.Record{
		{"num": "101"},
		{}, // normalizes to an empty record
		{"num": "7"},
	}
	out, ok := tr.Translate(in)
	if !ok {
		t.Fatalf("expected ok")
	}
	if len(out) != 3 {
		t.Fatalf("len=%d, want 3", len(out))
	}
	if out[0]["number"] != "101" || out[2]["number"] != "7" {
		t.Fatalf("order not kept: %v", out)
	}
	if out[1] == nil || len(out[1]) != 0 {
		t.Fatalf("expected empty record at 1, got %#v", out[1])
	}
}

func TestTranslate_OnReportOnlyForProblems(t *testing.T) {
	t.Parallel()

	tr := NewTranslator(NewNormalizer(MustRegistry(copyRule("number", "num", "number"))))

	var seen []int
	tr.OnReport = func(i int, rep Report) {
		if len(rep.Failures) != 1 || rep.Failures[0].Rule != "number" {
			t.Errorf("index %d: unexpected report %+v", i, rep)
		}
		seen = append(seen, i)
	}

	tr.Translate([]records.Record{{"num": "1"}, {}, {"num": "3"}, {}})
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 3 {
		t.Fatalf("reports for %v, want [1 3]", seen)
	}
}
