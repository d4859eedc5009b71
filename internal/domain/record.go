package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RawRecord is a single speed restriction as stored in the snapshot document.
type RawRecord struct {
	Code                string   `json:"code" csv:"code"`
	Stations            string   `json:"stations" csv:"stations"`
	Track               string   `json:"track" csv:"track"`
	StartKm             string   `json:"startKm" csv:"startKm"`
	EndKm               string   `json:"endKm" csv:"endKm"`
	Speed               string   `json:"speed" csv:"speed"`
	Reason              string   `json:"reason" csv:"reason"`
	StartDateTime       string   `json:"startDateTime" csv:"startDateTime"`
	EndDateTime         string   `json:"endDateTime" csv:"endDateTime"`
	Schedule            string   `json:"schedule" csv:"schedule"`
	CSV                 bool     `json:"csv" csv:"csv"` // circulation safety notice issued
	Comment             string   `json:"comment" csv:"comment"`
	FirstAppearanceDate string   `json:"firstAppearanceDate" csv:"firstAppearanceDate"`
	LastSeen            string   `json:"lastSeen" csv:"lastSeen"`
	Latitude            *float64 `json:"latitude,omitempty" csv:"latitude,omitempty"`
	Longitude           *float64 `json:"longitude,omitempty" csv:"longitude,omitempty"`
}

// wireRecord accepts bare numbers for the kilometre and speed columns.
// Older scraper versions emitted them unquoted.
type wireRecord struct {
	RawRecord
	StartKm json.RawMessage `json:"startKm"`
	EndKm   json.RawMessage `json:"endKm"`
	Speed   json.RawMessage `json:"speed"`
}

func (w wireRecord) record() RawRecord {
	r := w.RawRecord
	r.StartKm = looseString(w.StartKm)
	r.EndKm = looseString(w.EndKm)
	r.Speed = looseString(w.Speed)
	return r
}

// looseString renders a JSON string, number or null as plain text.
func looseString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] != '"' {
		return string(raw)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// LineGroup holds the records listed under one line name.
type LineGroup struct {
	Line    string
	Records []RawRecord
}

// Dataset is the snapshot document: line groups in document order.
type Dataset []LineGroup

// Len returns the number of records across all lines.
func (d Dataset) Len() int {
	n := 0
	for _, g := range d {
		n += len(g.Records)
	}
	return n
}

// DecodeDataset parses a snapshot document.
func DecodeDataset(data []byte) (Dataset, error) {
	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return ds, nil
}

// UnmarshalJSON decodes the top-level object preserving key order. A repeated
// line name keeps its first position and its last value.
func (d *Dataset) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected object of line groups, got %v", tok)
	}

	groups := Dataset{}
	seen := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		line, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected line name, got %v", tok)
		}

		var wire []wireRecord
		if err := dec.Decode(&wire); err != nil {
			return fmt.Errorf("line %q: %w", line, err)
		}
		records := make([]RawRecord, len(wire))
		for i := range wire {
			records[i] = wire[i].record()
		}

		if i, dup := seen[line]; dup {
			groups[i].Records = records
			continue
		}
		seen[line] = len(groups)
		groups = append(groups, LineGroup{Line: line, Records: records})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	*d = groups
	return nil
}

// MarshalJSON encodes the dataset as an object keyed by line name, in order.
func (d Dataset) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, g := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(g.Line)
		if err != nil {
			return nil, err
		}
		records := g.Records
		if records == nil {
			records = []RawRecord{}
		}
		val, err := json.Marshal(records)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FlatRecord is a RawRecord tagged with its line and the derived analytical
// fields.
type FlatRecord struct {
	RawRecord
	Line     string  `json:"line" csv:"line"`
	SpeedNum float64 `json:"speedNum" csv:"speedNum"`
	KmLength float64 `json:"kmLength" csv:"kmLength"`
	Active   bool    `json:"active" csv:"active"`
}
