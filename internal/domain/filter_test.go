package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func speedLimit(v float64) *float64 { return &v }

func codes(records []FlatRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Code)
	}
	return out
}

func TestApplyFilter(t *testing.T) {
	records := sampleRecords()

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"zero filter keeps everything", Filter{}, []string{"1", "2", "3", "4", "5"}},
		{"line", Filter{Line: "L200"}, []string{"4", "5"}},
		{"track", Filter{Track: "1"}, []string{"1", "4", "5"}},
		{"max speed", Filter{MaxSpeed: speedLimit(50)}, []string{"1", "2", "3"}},
		{"max speed zero", Filter{MaxSpeed: speedLimit(0)}, []string{"3"}},
		{"max speed at ceiling ignored", Filter{MaxSpeed: speedLimit(NoSpeedLimit)}, []string{"1", "2", "3", "4", "5"}},
		{"reason substring case-insensitive", Filter{Reason: "DEFECT"}, []string{"1", "2"}},
		{"csv only", Filter{CSVOnly: true}, []string{"1", "4"}},
		{"active only", Filter{ActiveOnly: true}, []string{"1", "3", "5"}},
		{"combined", Filter{ActiveOnly: true, Line: "L100", MaxSpeed: speedLimit(30)}, []string{"1", "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, codes(ApplyFilter(records, tt.filter)))
		})
	}
}

func TestApplyFilter_RecomputeIsIndependent(t *testing.T) {
	records := sampleRecords()
	full := ComputeStats(records)

	subset := ApplyFilter(records, Filter{ActiveOnly: true})
	subset[0].Line = "changed"
	filtered := ComputeStats(subset)

	assert.Equal(t, "L100", records[0].Line, "filtered slice must not alias the source")
	assert.Equal(t, 5, full.Total)
	assert.Equal(t, 3, filtered.Total)
	assert.Equal(t, 3, filtered.ActiveCount)
}

func TestFilterKey(t *testing.T) {
	a := Filter{Line: "L1", MaxSpeed: speedLimit(60), Reason: "Works"}
	b := Filter{Line: "L1", MaxSpeed: speedLimit(60), Reason: "works"}
	c := Filter{Line: "L1", MaxSpeed: speedLimit(70), Reason: "works"}

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, b.Key(), c.Key())
	assert.Equal(t, Filter{}.Key(), Filter{MaxSpeed: speedLimit(500)}.Key())
}

func TestLinesAndTracks(t *testing.T) {
	records := sampleRecords()
	assert.Equal(t, []string{"L100", "L200"}, Lines(records))
	assert.Equal(t, []string{"", "1", "2"}, Tracks(records))
	assert.Equal(t, []string{}, Lines(nil))
}

func TestSortRecords(t *testing.T) {
	records := Flatten(Dataset{{Line: "L", Records: []RawRecord{
		{Code: "km 10", Speed: "100"},
		{Code: "km 9", Speed: "20"},
		{Code: "KM 9b", Speed: "5"},
		{Code: "km 100", Speed: "60"},
	}}})

	t.Run("natural ascending", func(t *testing.T) {
		sorted, err := SortRecords(records, "code", false)
		require.NoError(t, err)
		assert.Equal(t, []string{"km 9", "KM 9b", "km 10", "km 100"}, codes(sorted))
	})

	t.Run("numeric field descending", func(t *testing.T) {
		sorted, err := SortRecords(records, "speedNum", true)
		require.NoError(t, err)
		assert.Equal(t, []string{"km 10", "km 100", "km 9", "KM 9b"}, codes(sorted))
	})

	t.Run("does not reorder input", func(t *testing.T) {
		_, err := SortRecords(records, "code", true)
		require.NoError(t, err)
		assert.Equal(t, "km 10", records[0].Code)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := SortRecords(records, "nope", false)
		assert.ErrorIs(t, err, ErrUnknownSortKey)
	})
}

func TestPaginate(t *testing.T) {
	records := make([]FlatRecord, 120)
	for i := range records {
		records[i].SpeedNum = float64(i)
	}

	page, pages := Paginate(records, 0, 0)
	assert.Len(t, page, DefaultPageSize)
	assert.Equal(t, 3, pages)

	page, _ = Paginate(records, 2, 50)
	require.Len(t, page, 20)
	assert.Equal(t, 100.0, page[0].SpeedNum)

	page, pages = Paginate(records, 3, 50)
	assert.Empty(t, page)
	assert.Equal(t, 3, pages)

	page, pages = Paginate(records, math.MaxInt/2+1, 50)
	assert.Empty(t, page)
	assert.Equal(t, 3, pages)

	page, pages = Paginate(records, 0, math.MaxInt)
	assert.Len(t, page, 120)
	assert.Equal(t, 1, pages)

	page, pages = Paginate(nil, 0, 50)
	assert.Empty(t, page)
	assert.Equal(t, 0, pages)
}

func TestNaturalCompare(t *testing.T) {
	assert.Equal(t, 0, naturalCompare("abc", "ABC"))
	assert.Equal(t, -1, naturalCompare("a2", "a10"))
	assert.Equal(t, 1, naturalCompare("a10", "a2"))
	assert.Equal(t, -1, naturalCompare("a", "ab"))
	assert.Equal(t, 0, naturalCompare("007", "7"))
	assert.Equal(t, -1, naturalCompare("", "x"))
}
