package domain

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// leadingNumberRe matches the decimal literal at the start of a field,
// e.g. "12.5 (var.)" -> "12.5", "30km/h" -> "30".
var leadingNumberRe = regexp.MustCompile(`^[+-]?(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][+-]?\d+)?`)

// MaxLastSeen returns the newest lastSeen across the whole dataset. ok is
// false when the dataset holds no records.
func MaxLastSeen(ds Dataset) (latest string, ok bool) {
	for _, g := range ds {
		for _, r := range g.Records {
			if !ok || r.LastSeen > latest {
				latest = r.LastSeen
				ok = true
			}
		}
	}
	return latest, ok
}

// Flatten converts line groups into one ordered collection of enriched
// records: group order first, then record order within each group.
func Flatten(ds Dataset) []FlatRecord {
	latest, ok := MaxLastSeen(ds)
	return flattenWith(ds, latest, ok)
}

// flattenWith maps every record given the dataset-wide reference date.
func flattenWith(ds Dataset, latest string, haveLatest bool) []FlatRecord {
	out := make([]FlatRecord, 0, ds.Len())
	for _, g := range ds {
		for _, r := range g.Records {
			out = append(out, FlatRecord{
				RawRecord: r,
				Line:      g.Line,
				SpeedNum:  parseSpeed(r.Speed),
				KmLength:  segmentLength(r.StartKm, r.EndKm),
				Active:    haveLatest && r.LastSeen == latest,
			})
		}
	}
	return out
}

// parseSpeed parses a speed field. Speeds are never negative.
func parseSpeed(s string) float64 {
	v := parseNumber(s)
	if v <= 0 {
		return 0
	}
	return v
}

// segmentLength returns |endKm - startKm|, treating unparseable positions as 0.
func segmentLength(startKm, endKm string) float64 {
	d := math.Abs(parseNumber(endKm) - parseNumber(startKm))
	if math.IsInf(d, 0) || math.IsNaN(d) {
		return 0
	}
	return d
}

// parseNumber parses the leading decimal literal of s, returning 0 when there
// is none or when the value is not finite.
func parseNumber(s string) float64 {
	m := leadingNumberRe.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v
}
