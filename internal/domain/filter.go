package domain

import (
	"sort"
	"strconv"
	"strings"
)

// NoSpeedLimit is the speed ceiling at and above which a MaxSpeed filter is
// ignored; it is the top of the dashboards' speed slider.
const NoSpeedLimit = 300

// Filter selects a subset of records. Zero-valued fields do not filter.
type Filter struct {
	Line       string   `json:"line,omitempty"`
	Track      string   `json:"track,omitempty"`
	MaxSpeed   *float64 `json:"maxSpeed,omitempty"`
	Reason     string   `json:"reason,omitempty"` // case-insensitive substring
	CSVOnly    bool     `json:"csvOnly,omitempty"`
	ActiveOnly bool     `json:"activeOnly,omitempty"`
}

// Key is a canonical string form of the filter, usable as a cache key.
func (f Filter) Key() string {
	var b strings.Builder
	b.WriteString("line=")
	b.WriteString(strconv.Quote(f.Line))
	b.WriteString("&track=")
	b.WriteString(strconv.Quote(f.Track))
	b.WriteString("&maxSpeed=")
	if f.speedLimited() {
		b.WriteString(strconv.FormatFloat(*f.MaxSpeed, 'g', -1, 64))
	}
	b.WriteString("&reason=")
	b.WriteString(strconv.Quote(strings.ToLower(f.Reason)))
	b.WriteString("&csv=")
	b.WriteString(strconv.FormatBool(f.CSVOnly))
	b.WriteString("&active=")
	b.WriteString(strconv.FormatBool(f.ActiveOnly))
	return b.String()
}

func (f Filter) speedLimited() bool {
	return f.MaxSpeed != nil && *f.MaxSpeed < NoSpeedLimit
}

// Match reports whether r passes every criterion of f.
func (f Filter) Match(r FlatRecord) bool {
	if f.Line != "" && r.Line != f.Line {
		return false
	}
	if f.speedLimited() && r.SpeedNum > *f.MaxSpeed {
		return false
	}
	if f.Reason != "" && !strings.Contains(strings.ToLower(r.Reason), strings.ToLower(f.Reason)) {
		return false
	}
	if f.Track != "" && r.Track != f.Track {
		return false
	}
	if f.CSVOnly && !r.CSV {
		return false
	}
	if f.ActiveOnly && !r.Active {
		return false
	}
	return true
}

// ApplyFilter returns the matching records in their input order. The
// result never aliases records.
func ApplyFilter(records []FlatRecord, f Filter) []FlatRecord {
	out := make([]FlatRecord, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Lines returns the distinct line names, sorted.
func Lines(records []FlatRecord) []string {
	return distinct(records, func(r FlatRecord) string { return r.Line })
}

// Tracks returns the distinct track values, sorted.
func Tracks(records []FlatRecord) []string {
	return distinct(records, func(r FlatRecord) string { return r.Track })
}

func distinct(records []FlatRecord, field func(FlatRecord) string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, r := range records {
		v := field(r)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
