package records

import "testing"

func TestRecord_HasDistinguishesNilFromAbsent(t *testing.T) {
	t.Parallel()

	r := Record{"rooms": nil}
	if !r.Has("rooms") {
		t.Fatalf("expected rooms to be present")
	}
	if r.Has("area") {
		t.Fatalf("expected area to be absent")
	}
}
