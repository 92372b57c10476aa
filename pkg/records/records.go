// Package records defines the dynamic record shape shared by the decoder,
// the extraction rules and the output sink.
package records

// Record is one listing as a mapping of field name to value.
//
// Raw records hold whatever the decoder produced (strings, json.Number,
// bool, nil, nested map[string]any and []any). Canonical records hold only
// canonical field names with string, int64, float64, []string or nil values.
type Record map[string]any

// Has reports whether key is present, even when its value is nil.
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}
