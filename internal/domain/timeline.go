package domain

import (
	"sort"
	"time"
)

// snapshotDates returns the sorted distinct non-empty first-appearance dates.
func snapshotDates(records []FlatRecord) []string {
	seen := make(map[string]struct{})
	var dates []string
	for _, r := range records {
		d := r.FirstAppearanceDate
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// timeline reconstructs per-snapshot counts. The earliest date holds the
// historical backlog, so it is not emitted; it only serves as the previous
// date for the second snapshot's resolved count.
func timeline(records []FlatRecord) []TimelinePoint {
	all := snapshotDates(records)
	if len(all) <= 1 {
		return []TimelinePoint{}
	}

	out := make([]TimelinePoint, 0, len(all)-1)
	for i := 1; i < len(all); i++ {
		date, prev := all[i], all[i-1]

		var newCount, activeCount, resolvedCount int
		for _, r := range records {
			if r.FirstAppearanceDate == date {
				newCount++
			}
			if r.FirstAppearanceDate <= date && r.LastSeen >= date {
				activeCount++
			}
			if r.FirstAppearanceDate <= prev && r.LastSeen == prev {
				resolvedCount++
			}
		}

		out = append(out, TimelinePoint{
			Date:     dateMillis(date),
			DateStr:  date,
			Count:    newCount,
			Resolved: resolvedCount,
			Active:   activeCount,
		})
	}
	return out
}

// dateMillis converts an ISO date (or RFC 3339 timestamp) to Unix
// milliseconds. Unparseable dates map to 0.
func dateMillis(s string) int64 {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UnixMilli()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UnixMilli()
	}
	return 0
}
