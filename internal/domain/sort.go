package domain

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DefaultPageSize is the number of table rows per page.
const DefaultPageSize = 50

// ErrUnknownSortKey is returned for a sort key that names no record field.
var ErrUnknownSortKey = errors.New("unknown sort key")

// sortFields maps table sort keys (the JSON field names) to their text form.
var sortFields = map[string]func(FlatRecord) string{
	"code":                func(r FlatRecord) string { return r.Code },
	"line":                func(r FlatRecord) string { return r.Line },
	"stations":            func(r FlatRecord) string { return r.Stations },
	"track":               func(r FlatRecord) string { return r.Track },
	"startKm":             func(r FlatRecord) string { return r.StartKm },
	"endKm":               func(r FlatRecord) string { return r.EndKm },
	"speed":               func(r FlatRecord) string { return r.Speed },
	"reason":              func(r FlatRecord) string { return r.Reason },
	"startDateTime":       func(r FlatRecord) string { return r.StartDateTime },
	"endDateTime":         func(r FlatRecord) string { return r.EndDateTime },
	"schedule":            func(r FlatRecord) string { return r.Schedule },
	"csv":                 func(r FlatRecord) string { return strconv.FormatBool(r.CSV) },
	"comment":             func(r FlatRecord) string { return r.Comment },
	"firstAppearanceDate": func(r FlatRecord) string { return r.FirstAppearanceDate },
	"lastSeen":            func(r FlatRecord) string { return r.LastSeen },
	"speedNum":            func(r FlatRecord) string { return strconv.FormatFloat(r.SpeedNum, 'f', -1, 64) },
	"kmLength":            func(r FlatRecord) string { return strconv.FormatFloat(r.KmLength, 'f', -1, 64) },
	"active":              func(r FlatRecord) string { return strconv.FormatBool(r.Active) },
}

// SortRecords returns a sorted copy of records ordered by key with
// numeric-aware comparison ("km 9" before "km 10"). Equal rows keep their
// relative order.
func SortRecords(records []FlatRecord, key string, descending bool) ([]FlatRecord, error) {
	field, ok := sortFields[key]
	if !ok {
		return nil, ErrUnknownSortKey
	}

	out := make([]FlatRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		c := naturalCompare(field(out[i]), field(out[j]))
		if descending {
			return c > 0
		}
		return c < 0
	})
	return out, nil
}

// Paginate returns page (zero-based) of records and the number of pages.
func Paginate(records []FlatRecord, page, size int) ([]FlatRecord, int) {
	if size <= 0 {
		size = DefaultPageSize
	}
	pages := len(records) / size
	if len(records)%size != 0 {
		pages++
	}
	if page < 0 || page >= pages {
		return []FlatRecord{}, pages
	}
	start := page * size
	end := min(start+size, len(records))
	return records[start:end:end], pages
}

// naturalCompare compares strings case-insensitively, treating runs of digits
// as numbers.
func naturalCompare(a, b string) int {
	a, b = strings.ToLower(a), strings.ToLower(b)
	for a != "" && b != "" {
		da, db := digitPrefix(a), digitPrefix(b)
		if da != "" && db != "" {
			if c := compareDigits(da, db); c != 0 {
				return c
			}
			a, b = a[len(da):], b[len(db):]
			continue
		}
		ra, na := utf8.DecodeRuneInString(a)
		rb, nb := utf8.DecodeRuneInString(b)
		if ra != rb {
			if ra < rb {
				return -1
			}
			return 1
		}
		a, b = a[na:], b[nb:]
	}
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return -1
	default:
		return 1
	}
}

func digitPrefix(s string) string {
	i := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if i < 0 {
		return s
	}
	return s[:i]
}

// compareDigits compares two ASCII digit runs by numeric value.
func compareDigits(a, b string) int {
	ta, tb := strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
	if len(ta) != len(tb) {
		if len(ta) < len(tb) {
			return -1
		}
		return 1
	}
	return strings.Compare(ta, tb)
}
