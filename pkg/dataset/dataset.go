// Package dataset holds the tabular data each identity has uploaded.
package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Record is one row: column name to scalar value.
// Values are string, json.Number, bool or nil.
type Record map[string]any

// Dataset is a parsed spreadsheet.
type Dataset struct {
	// Columns is the header row in sheet order.
	Columns []string `json:"columns"`
	// Records holds data rows in sheet order.
	Records []Record `json:"records"`
	// Source is the uploaded file name.
	Source string `json:"source,omitempty"`
	// Sheet is the worksheet the records came from.
	Sheet string `json:"sheet,omitempty"`
	// UploadedAt is set by the ingestion path.
	UploadedAt time.Time `json:"uploadedAt"`
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// Clone returns a deep copy of the dataset.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	out := &Dataset{
		Columns:    append([]string(nil), d.Columns...),
		Records:    make([]Record, len(d.Records)),
		Source:     d.Source,
		Sheet:      d.Sheet,
		UploadedAt: d.UploadedAt,
	}
	for i, r := range d.Records {
		cp := make(Record, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out.Records[i] = cp
	}
	return out
}

// OrderedJSON renders the records as a JSON array whose object keys follow
// Columns. Keys missing from a record are omitted, matching how the sheet
// left the cell empty. The output is byte-for-byte stable for equal input.
func (d *Dataset) OrderedJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, rec := range d.Records {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		first := true
		for _, col := range d.orderedKeys(rec) {
			v, ok := rec[col]
			if !ok {
				continue
			}
			if !first {
				buf.WriteByte(',')
			}
			first = false

			key, err := json.Marshal(col)
			if err != nil {
				return nil, fmt.Errorf("marshal column %q: %w", col, err)
			}
			val, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("marshal value in column %q: %w", col, err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// orderedKeys returns Columns followed by any extra record keys sorted
// lexically, so hand-built records without a header still render stably.
func (d *Dataset) orderedKeys(rec Record) []string {
	known := make(map[string]struct{}, len(d.Columns))
	for _, c := range d.Columns {
		known[c] = struct{}{}
	}
	var extra []string
	for k := range rec {
		if _, ok := known[k]; !ok {
			extra = append(extra, k)
		}
	}
	if len(extra) == 0 {
		return d.Columns
	}
	sort.Strings(extra)
	return append(append([]string(nil), d.Columns...), extra...)
}
