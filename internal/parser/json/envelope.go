// Package json decodes listing pages: a JSON envelope whose records key holds
// an array of objects, or a bare root array of objects.
package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"realty/pkg/records"
)

// DefaultRecordsKey is the envelope field holding the records.
const DefaultRecordsKey = "data"

// DecodeError is a page body that cannot be decoded.
type DecodeError struct {
	Offset int64 // byte offset in the body where decoding stopped
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("json: decode page at offset %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder decodes page bodies. The zero value uses DefaultRecordsKey.
// Numbers are kept as json.Number.
type Decoder struct {
	RecordsKey string
}

func (d Decoder) key() string {
	if k := strings.TrimSpace(d.RecordsKey); k != "" {
		return k
	}
	return DefaultRecordsKey
}

// Decode returns the records of body. An empty records list is an empty
// slice and nil error; anything malformed is a *DecodeError.
func (d Decoder) Decode(body string) ([]records.Record, error) {
	return d.DecodeReader(strings.NewReader(body))
}

// DecodeReader decodes one page from r, streaming the records array element
// by element. Other envelope fields are validated and skipped.
func (d Decoder) DecodeReader(r io.Reader) ([]records.Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	fail := func(err error) ([]records.Record, error) {
		return nil, &DecodeError{Offset: dec.InputOffset(), Err: err}
	}

	out := []records.Record{}
	emit := func(obj map[string]any) {
		out = append(out, records.Record(obj))
	}

	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fail(errors.New("empty body"))
		}
		return fail(fmt.Errorf("read first token: %w", err))
	}

	switch tok {
	case json.Delim('['):
		if err := streamArrayOfObjects(dec, emit); err != nil {
			return fail(err)
		}
		if err := expectDelim(dec, ']'); err != nil {
			return fail(err)
		}

	case json.Delim('{'):
		if err := streamEnvelope(dec, d.key(), emit); err != nil {
			return fail(err)
		}
		if err := expectDelim(dec, '}'); err != nil {
			return fail(err)
		}

	default:
		return fail(fmt.Errorf("unsupported root token %T (want object or array)", tok))
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fail(errors.New("trailing data after page"))
	}
	return out, nil
}

// streamEnvelope walks a root object (after '{' has been consumed), streaming
// the records array under key. A null records value is an empty page.
func streamEnvelope(dec *json.Decoder, key string, emit func(map[string]any)) error {
	found := false

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read object key: %w", err)
		}
		k, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("object key not a string (got %T)", keyTok)
		}

		if k != key {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return fmt.Errorf("skip field %q: %w", k, err)
			}
			continue
		}

		valTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read value of %q: %w", k, err)
		}
		found = true
		switch valTok {
		case nil:
			// "data": null
		case json.Delim('['):
			if err := streamArrayOfObjects(dec, emit); err != nil {
				return err
			}
			if err := expectDelim(dec, ']'); err != nil {
				return err
			}
		default:
			return fmt.Errorf("envelope field %q is %v, want array", k, valTok)
		}
	}

	if !found {
		return fmt.Errorf("envelope has no %q field", key)
	}
	return nil
}

// streamArrayOfObjects decodes elements of the current array (after '[' has
// been consumed) one at a time. null elements are skipped; any other
// non-object element is an error.
func streamArrayOfObjects(dec *json.Decoder, emit func(map[string]any)) error {
	for i := 0; dec.More(); i++ {
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode array element %d: %w", i, err)
		}
		if raw == nil {
			continue
		}
		obj, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("array element %d not an object (got %T)", i, raw)
		}
		emit(obj)
	}
	return nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	end, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read %q: %w", want, err)
	}
	if end != want {
		return fmt.Errorf("expected %q, got %v", want, end)
	}
	return nil
}
