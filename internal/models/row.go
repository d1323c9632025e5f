package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Row is an untyped record as exchanged with the remote store and the
// realtime stream.
type Row map[string]any

var errMissingColumn = errors.New("missing required column")

func errMissing(col string) error {
	return fmt.Errorf("%w: %s", errMissingColumn, col)
}

// String returns the column as a string, empty when absent or not a string.
func (r Row) String(col string) string {
	s, _ := r[col].(string)
	return s
}

// Has reports whether col is present, even with a nil value.
func (r Row) Has(col string) bool {
	_, ok := r[col]
	return ok
}

// Merge returns a copy of r overlaid with the columns in patch.
func (r Row) Merge(patch Row) Row {
	out := make(Row, len(r)+len(patch))
	for k, v := range r {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// decodeInto coerces the row into a typed wire struct through its JSON form.
// Both to_jsonb output from Postgres and in-memory rows holding time.Time
// values round-trip this way.
func (r Row) decodeInto(v any) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// toRow is the inverse of decodeInto for wire structs.
func toRow(v any) Row {
	b, err := json.Marshal(v)
	if err != nil {
		return Row{}
	}
	var out Row
	if err := json.Unmarshal(b, &out); err != nil {
		return Row{}
	}
	return out
}
