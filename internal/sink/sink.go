// Package sink writes harvested records as one JSON array.
package sink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"realty/pkg/records"
)

// WriteJSONArray writes recs to w as a JSON array, one element per line.
// A nil or empty slice is written as "[]". HTML characters are not escaped
// so Cyrillic text and "&" in comments stay readable.
func WriteJSONArray(w io.Writer, recs []records.Record) error {
	if len(recs) == 0 {
		_, err := io.WriteString(w, "[]\n")
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if _, err := io.WriteString(w, "[\n"); err != nil {
		return err
	}
	for i, rec := range recs {
		buf.Reset()
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("sink: encode record %d: %w", i, err)
		}
		// Encode appends '\n'; the separator goes before it.
		line := bytes.TrimRight(buf.Bytes(), "\n")
		if i < len(recs)-1 {
			line = append(line, ',')
		}
		line = append(line, '\n')
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "]\n")
	return err
}

// outputPerm is the mode of files written by WriteFile.
const outputPerm = 0o644

// WriteFile writes recs to path atomically: a temp file in the same
// directory is renamed into place on success and removed on failure.
// The file is created with outputPerm, not the temp file's 0600.
func WriteFile(path string, recs []records.Record) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".harvest-*")
	if err != nil {
		return fmt.Errorf("sink: %w", err)
	}
	tmpName := tmp.Name()

	writeErr := WriteJSONArray(tmp, recs)
	if writeErr == nil {
		if err := tmp.Chmod(outputPerm); err != nil {
			writeErr = fmt.Errorf("sink: %w", err)
		}
	}
	closeErr := tmp.Close()

	if writeErr != nil {
		_ = os.Remove(tmpName)
		return writeErr
	}
	if closeErr != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("sink: %w", closeErr)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("sink: %w", err)
	}
	return nil
}
