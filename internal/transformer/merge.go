package transformer

import (
	"sort"

	"realty/pkg/records"
)

// Collision records two rules writing the same canonical field for one record.
type Collision struct {
	Field   string
	Earlier string // rule whose value was overwritten
	Later   string // rule whose value was kept
}

// Merge copies frag into dst on behalf of rule.
//
// owners maps every field already in dst to the rule that wrote it and is
// updated in place. When a field is already owned, the later rule (this one)
// wins and a Collision is returned. Fields are visited in sorted order so the
// collision list is deterministic.
func Merge(dst records.Record, owners map[string]string, rule string, frag Fragment) []Collision {
	if len(frag) == 0 {
		return nil
	}

	keys := make([]string, 0, len(frag))
	for k := range frag {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []Collision
	for _, k := range keys {
		if prev, ok := owners[k]; ok {
			out = append(out, Collision{Field: k, Earlier: prev, Later: rule})
		}
		dst[k] = frag[k]
		owners[k] = rule
	}
	return out
}
