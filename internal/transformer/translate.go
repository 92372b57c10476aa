package transformer

import (
	"realty/pkg/records"
)

// Translator turns one decoded page into canonical records.
type Translator struct {
	norm *Normalizer

	// OnReport, when set, is called for every record whose normalization
	// produced rule failures or collisions. index is the record's position
	// within the page.
	OnReport func(index int, rep Report)
}

func NewTranslator(norm *Normalizer) *Translator {
	return &Translator{norm: norm}
}

// Normalizer returns the normalizer in use.
func (t *Translator) Normalizer() *Normalizer { return t.norm }

// Translate normalizes raw in order.
//
// A nil or empty page returns (nil, false): the source has no more data.
// Otherwise the result has the same length and order as raw and ok is true;
// records that normalize to an empty canonical record are kept.
func (t *Translator) Translate(raw []records.Record) (out []records.Record, ok bool) {
	if len(raw) == 0 {
		return nil, false
	}

	out = make([]records.Record, len(raw))
	for i, rec := range raw {
		canon, rep := t.norm.NormalizeReport(rec)
		if t.OnReport != nil && !rep.Empty() {
			t.OnReport(i, rep)
		}
		out[i] = canon
	}
	return out, true
}
