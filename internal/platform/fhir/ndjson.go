package fhir

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// NDJSONContentType is the media type of bulk data files.
const NDJSONContentType = "application/fhir+ndjson"

// maxNDJSONLine bounds a single resource line.
const maxNDJSONLine = 8 << 20

// NDJSONWriter writes resources in NDJSON (Newline Delimited JSON) format.
// Each resource is serialised as a single JSON line followed by a newline
// character.
type NDJSONWriter struct {
	w     *bufio.Writer
	count int
}

func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	return &NDJSONWriter{
		w: bufio.NewWriter(w),
	}
}

// WriteResource serialises resource as a single JSON line.
func (n *NDJSONWriter) WriteResource(resource interface{}) error {
	data, err := json.Marshal(resource)
	if err != nil {
		return err
	}
	if _, err := n.w.Write(data); err != nil {
		return err
	}
	if err := n.w.WriteByte('\n'); err != nil {
		return err
	}
	n.count++
	return nil
}

// Count reports how many resources have been written.
func (n *NDJSONWriter) Count() int {
	return n.count
}

func (n *NDJSONWriter) Flush() error {
	return n.w.Flush()
}

// LineError reports a malformed NDJSON line.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("ndjson line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

var errInvalidJSON = errors.New("invalid json")

// ReadNDJSON calls fn for every non-blank line of r. Lines are validated as
// JSON objects before fn sees them; the first malformed line stops the read
// with a *LineError. Line numbers are 1-based and count blank lines.
func ReadNDJSON(r io.Reader, fn func(line int, raw json.RawMessage) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxNDJSONLine)

	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		if b[0] != '{' || !json.Valid(b) {
			return &LineError{Line: line, Err: errInvalidJSON}
		}
		raw := make(json.RawMessage, len(b))
		copy(raw, b)
		if err := fn(line, raw); err != nil {
			return &LineError{Line: line, Err: err}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read ndjson: %w", err)
	}
	return nil
}
