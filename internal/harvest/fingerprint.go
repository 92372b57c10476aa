package harvest

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"realty/pkg/records"
)

// Fingerprint is a stable SHA-256 of a decoded page.
type Fingerprint [sha256.Size]byte

// PageFingerprint hashes recs in order. Map keys are sorted, so two pages
// with the same records in the same order always hash equal regardless of
// JSON key order.
func PageFingerprint(recs []records.Record) Fingerprint {
	var b strings.Builder
	b.Grow(len(recs) * 256)

	for i, r := range recs {
		if i > 0 {
			b.WriteByte('\x1e')
		}
		appendCanonicalValue(&b, map[string]any(r))
	}
	return sha256.Sum256([]byte(b.String()))
}

// appendCanonicalValue appends a stable representation of a decoded JSON
// value. Type markers keep "1" (string) distinct from 1 (number).
func appendCanonicalValue(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteByte('\x00')

	case string:
		b.WriteByte('s')
		b.WriteString(strconv.Quote(t))

	case json.Number:
		b.WriteByte('n')
		b.WriteString(t.String())

	case bool:
		if t {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}

	case int:
		b.WriteByte('n')
		b.WriteString(strconv.Itoa(t))
	case int64:
		b.WriteByte('n')
		b.WriteString(strconv.FormatInt(t, 10))
	case float64:
		b.WriteByte('n')
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))

	case []any:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			appendCanonicalValue(b, e)
		}
		b.WriteByte(']')

	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(k))
			b.WriteByte(':')
			appendCanonicalValue(b, t[k])
		}
		b.WriteByte('}')

	case records.Record:
		appendCanonicalValue(b, map[string]any(t))

	default:
		b.WriteString(fmt.Sprintf("%T:%v", t, t))
	}
}
