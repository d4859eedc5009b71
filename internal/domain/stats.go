package domain

import (
	"math"
	"sort"
	"strings"
)

const (
	// TopReasons caps the reason distribution.
	TopReasons = 12

	unknownReason = "UNKNOWN"
	unknownTrack  = "?"
)

// Totals are the headline figures of a record collection.
type Totals struct {
	Total         int     `json:"total"`
	ActiveCount   int     `json:"activeCount"`
	Lines         int     `json:"lines"`
	AvgSpeed      int     `json:"avgSpeed"`
	MinSpeed      float64 `json:"minSpeed"`
	MaxSpeed      float64 `json:"maxSpeed"`
	CriticalCount int     `json:"criticalCount"`
	CSVCount      int     `json:"csvCount"`
	TotalKm       float64 `json:"totalKm"`
}

// SpeedBucket counts records whose speed falls in [Speed, Speed+10).
type SpeedBucket struct {
	Speed int `json:"speed"`
	Count int `json:"count"`
}

// ReasonCount counts records per normalized reason.
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// TimelinePoint describes one snapshot date. Date is the Unix time in
// milliseconds of DateStr at UTC midnight, for proportional plotting.
type TimelinePoint struct {
	Date     int64  `json:"date"`
	DateStr  string `json:"dateStr"`
	Count    int    `json:"count"`
	Resolved int    `json:"resolved"`
	Active   int    `json:"active"`
}

// TrackCount counts records per track.
type TrackCount struct {
	Track string `json:"track"`
	Count int    `json:"count"`
}

// LineSummary is the per-line record count and average speed.
type LineSummary struct {
	Line     string `json:"line"`
	Count    int    `json:"count"`
	AvgSpeed int    `json:"avgSpeed"`
}

// Stats is the full set of aggregate views over a record collection. It
// shares no memory with the records it was computed from.
type Stats struct {
	Totals
	SpeedDistribution  []SpeedBucket   `json:"speedDistribution"`
	ReasonDistribution []ReasonCount   `json:"reasonDistribution"`
	TimelineData       []TimelinePoint `json:"timelineData"`
	TrackDistribution  []TrackCount    `json:"trackDistribution"`
	LineData           []LineSummary   `json:"lineData"`
}

// ComputeStats derives every aggregate view from records. It is pure: the
// same input always yields the same output and the input is not modified.
// An empty collection yields zero totals and empty (non-nil) lists.
func ComputeStats(records []FlatRecord) Stats {
	return Stats{
		Totals:             computeTotals(records),
		SpeedDistribution:  speedDistribution(records),
		ReasonDistribution: reasonDistribution(records),
		TimelineData:       timeline(records),
		TrackDistribution:  trackDistribution(records),
		LineData:           lineSummaries(records),
	}
}

func computeTotals(records []FlatRecord) Totals {
	t := Totals{Total: len(records)}

	lines := make(map[string]struct{})
	var speedSum float64
	var speedN int
	for _, r := range records {
		lines[r.Line] = struct{}{}
		if r.Active {
			t.ActiveCount++
		}
		if SpeedCategoryOf(r.SpeedNum) == SpeedCritical {
			t.CriticalCount++
		}
		if r.CSV {
			t.CSVCount++
		}
		t.TotalKm += r.KmLength

		if r.SpeedNum > 0 {
			if speedN == 0 || r.SpeedNum < t.MinSpeed {
				t.MinSpeed = r.SpeedNum
			}
			if speedN == 0 || r.SpeedNum > t.MaxSpeed {
				t.MaxSpeed = r.SpeedNum
			}
			speedSum += r.SpeedNum
			speedN++
		}
	}
	t.Lines = len(lines)
	if speedN > 0 {
		t.AvgSpeed = roundHalfUp(speedSum / float64(speedN))
	}
	return t
}

func speedDistribution(records []FlatRecord) []SpeedBucket {
	counts := make(map[int]int)
	for _, r := range records {
		counts[int(math.Floor(r.SpeedNum/10))*10]++
	}

	out := make([]SpeedBucket, 0, len(counts))
	for speed, n := range counts {
		out = append(out, SpeedBucket{Speed: speed, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Speed < out[j].Speed })
	return out
}

// normalizeReason upper-cases and trims a reason, mapping blanks to UNKNOWN.
func normalizeReason(reason string) string {
	r := strings.ToUpper(strings.TrimSpace(reason))
	if r == "" {
		return unknownReason
	}
	return r
}

func reasonDistribution(records []FlatRecord) []ReasonCount {
	out := make([]ReasonCount, 0)
	index := make(map[string]int)
	for _, r := range records {
		reason := normalizeReason(r.Reason)
		if i, ok := index[reason]; ok {
			out[i].Count++
			continue
		}
		index[reason] = len(out)
		out = append(out, ReasonCount{Reason: reason, Count: 1})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > TopReasons {
		out = out[:TopReasons:TopReasons]
	}
	return out
}

// normalizeTrack maps an empty track to "?". Whitespace is kept as is.
func normalizeTrack(track string) string {
	if track == "" {
		return unknownTrack
	}
	return track
}

func trackDistribution(records []FlatRecord) []TrackCount {
	out := make([]TrackCount, 0)
	index := make(map[string]int)
	for _, r := range records {
		track := normalizeTrack(r.Track)
		if i, ok := index[track]; ok {
			out[i].Count++
			continue
		}
		index[track] = len(out)
		out = append(out, TrackCount{Track: track, Count: 1})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

func lineSummaries(records []FlatRecord) []LineSummary {
	type acc struct {
		line       string
		count      int
		totalSpeed float64
	}
	var accs []*acc
	index := make(map[string]*acc)
	for _, r := range records {
		a, ok := index[r.Line]
		if !ok {
			a = &acc{line: r.Line}
			index[r.Line] = a
			accs = append(accs, a)
		}
		a.count++
		a.totalSpeed += r.SpeedNum
	}

	out := make([]LineSummary, 0, len(accs))
	for _, a := range accs {
		out = append(out, LineSummary{
			Line:     a.line,
			Count:    a.count,
			AvgSpeed: roundHalfUp(a.totalSpeed / float64(a.count)),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// roundHalfUp rounds to the nearest integer with halves going up.
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
