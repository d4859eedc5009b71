package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	httpadapter "github.com/couchcryptid/ltv-stats-service/internal/adapter/http"
	"github.com/couchcryptid/ltv-stats-service/internal/domain"
	"github.com/couchcryptid/ltv-stats-service/internal/observability"
	"github.com/couchcryptid/ltv-stats-service/internal/snapshot"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	snap *snapshot.Snapshot
	err  error
}

func (m *mockStore) Load(_ context.Context) (*snapshot.Snapshot, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.snap, nil
}

func (m *mockStore) CheckReadiness(_ context.Context) error { return m.err }

// testSnapshot has three active records (codes 1, 10, 9) and one that
// dropped out of the latest scrape (code 2).
func testSnapshot() *snapshot.Snapshot {
	ds := domain.Dataset{
		{Line: "L100", Records: []domain.RawRecord{
			{Code: "1", Track: "1", Speed: "30", Reason: "Track condition", CSV: true, FirstAppearanceDate: "2024-01-01", LastSeen: "2024-02-01"},
			{Code: "2", Track: "2", Speed: "60", Reason: "Bridge works", FirstAppearanceDate: "2024-01-05", LastSeen: "2024-01-20"},
		}},
		{Line: "L200", Records: []domain.RawRecord{
			{Code: "10", Track: "1", Speed: "120", Reason: "track condition", FirstAppearanceDate: "2024-01-10", LastSeen: "2024-02-01"},
			{Code: "9", Track: "1", Speed: "80", Reason: "Level crossing", FirstAppearanceDate: "2024-01-15", LastSeen: "2024-02-01"},
		}},
	}
	records := domain.Flatten(ds)
	return &snapshot.Snapshot{
		ID:         uuid.New(),
		LatestSeen: "2024-02-01",
		Records:    records,
		Stats:      domain.ComputeStats(records),
	}
}

func newTestServer(store httpadapter.SnapshotStore) (*httpadapter.Server, *observability.Metrics) {
	metrics := observability.NewMetricsForTesting()
	return httpadapter.NewServer(":0", store, metrics, 16, slog.Default()), metrics
}

func get(t *testing.T, srv http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type recordsBody struct {
	Records  []domain.FlatRecord `json:"records"`
	Total    int                 `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"pageSize"`
	Pages    int                 `json:"pages"`
	Sort     string              `json:"sort"`
	Dir      string              `json:"dir"`
}

func codesOf(records []domain.FlatRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Code
	}
	return out
}

func TestData(t *testing.T) {
	srv, _ := newTestServer(&mockStore{snap: testSnapshot()})

	rec := get(t, srv, "/api/data")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decode[struct {
		Raw   []domain.FlatRecord `json:"raw"`
		Stats domain.Stats        `json:"stats"`
	}](t, rec)
	assert.Len(t, body.Raw, 4)
	assert.Equal(t, 4, body.Stats.Total)
	assert.Equal(t, 3, body.Stats.ActiveCount)
	assert.Equal(t, 2, body.Stats.Lines)
	assert.Equal(t, "L100", body.Raw[0].Line)
	assert.True(t, body.Raw[0].Active)
	assert.False(t, body.Raw[1].Active)
}

func TestData_SourceFailure(t *testing.T) {
	srv, _ := newTestServer(&mockStore{err: errors.New("read snapshot file: no such file")})

	rec := get(t, srv, "/api/data")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to fetch data"}`, rec.Body.String())
}

func TestStats_Filters(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"active by default", "", 3},
		{"inactive included", "?active=false", 4},
		{"line", "?line=L100", 1},
		{"line with inactive", "?line=L100&active=false", 2},
		{"max speed", "?maxSpeed=60&active=false", 2},
		{"max speed at slider top is ignored", "?maxSpeed=300&active=false", 4},
		{"reason substring is case-insensitive", "?reason=TRACK", 2},
		{"csv only", "?csv=true", 1},
		{"track", "?track=2&active=false", 1},
		{"no match", "?line=L999", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newTestServer(&mockStore{snap: testSnapshot()})

			rec := get(t, srv, "/api/stats"+tc.query)

			require.Equal(t, http.StatusOK, rec.Code)
			body := decode[struct {
				Total    domain.Stats `json:"total"`
				Filtered domain.Stats `json:"filtered"`
			}](t, rec)
			assert.Equal(t, 4, body.Total.Total)
			assert.Equal(t, tc.want, body.Filtered.Total)
		})
	}
}

func TestStats_FilteredAggregates(t *testing.T) {
	srv, _ := newTestServer(&mockStore{snap: testSnapshot()})

	rec := get(t, srv, "/api/stats?line=L200")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Filtered domain.Stats  `json:"filtered"`
		Filter   domain.Filter `json:"filter"`
	}](t, rec)
	assert.Equal(t, 2, body.Filtered.Total)
	assert.Equal(t, 100, body.Filtered.AvgSpeed)
	assert.InDelta(t, 80, body.Filtered.MinSpeed, 0)
	assert.InDelta(t, 120, body.Filtered.MaxSpeed, 0)
	assert.Equal(t, "L200", body.Filter.Line)
	assert.True(t, body.Filter.ActiveOnly)
}

func TestStats_Memoized(t *testing.T) {
	srv, metrics := newTestServer(&mockStore{snap: testSnapshot()})

	first := get(t, srv, "/api/stats?line=L100")
	second := get(t, srv, "/api/stats?line=L100")
	get(t, srv, "/api/stats?line=L200")

	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.StatsCache.WithLabelValues("hit")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.StatsCache.WithLabelValues("miss")), 0)
}

func TestStats_NewSnapshotBypassesMemo(t *testing.T) {
	store := &mockStore{snap: testSnapshot()}
	srv, metrics := newTestServer(store)

	get(t, srv, "/api/stats")
	store.snap = testSnapshot()
	get(t, srv, "/api/stats")

	assert.InDelta(t, 0, testutil.ToFloat64(metrics.StatsCache.WithLabelValues("hit")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.StatsCache.WithLabelValues("miss")), 0)
}

func TestRecords_DefaultOrder(t *testing.T) {
	srv, _ := newTestServer(&mockStore{snap: testSnapshot()})

	rec := get(t, srv, "/api/records")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[recordsBody](t, rec)
	assert.Equal(t, []string{"9", "10", "1"}, codesOf(body.Records))
	assert.Equal(t, 3, body.Total)
	assert.Equal(t, 0, body.Page)
	assert.Equal(t, domain.DefaultPageSize, body.PageSize)
	assert.Equal(t, 1, body.Pages)
	assert.Equal(t, "firstAppearanceDate", body.Sort)
	assert.Equal(t, "desc", body.Dir)
}

func TestRecords_NaturalSortAndPaging(t *testing.T) {
	srv, _ := newTestServer(&mockStore{snap: testSnapshot()})

	rec := get(t, srv, "/api/records?active=false&sort=code&dir=asc")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"1", "2", "9", "10"}, codesOf(decode[recordsBody](t, rec).Records))

	rec = get(t, srv, "/api/records?active=false&sort=code&dir=asc&pageSize=2&page=1")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[recordsBody](t, rec)
	assert.Equal(t, []string{"9", "10"}, codesOf(body.Records))
	assert.Equal(t, 4, body.Total)
	assert.Equal(t, 2, body.Pages)

	rec = get(t, srv, "/api/records?page=7")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"records":[]`)

	// page*pageSize would overflow int.
	rec = get(t, srv, "/api/records?page=4611686018427387904")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"records":[]`)
}

func TestRecords_BadRequests(t *testing.T) {
	srv, _ := newTestServer(&mockStore{snap: testSnapshot()})

	for _, query := range []string{
		"?sort=bogus",
		"?dir=up",
		"?page=-1",
		"?pageSize=0",
		"?pageSize=501",
		"?maxSpeed=fast",
		"?active=maybe",
		"?csv=yes-please",
	} {
		t.Run(query, func(t *testing.T) {
			rec := get(t, srv, "/api/records"+query)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestRecordsCSV(t *testing.T) {
	srv, _ := newTestServer(&mockStore{snap: testSnapshot()})

	rec := get(t, srv, "/api/records.csv?active=false&sort=code&dir=asc")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "ltv.csv")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "code,stations,track,"), lines[0])
	assert.Contains(t, lines[0], ",line,speedNum,kmLength,active")
	assert.True(t, strings.HasPrefix(lines[1], "1,"), lines[1])
	assert.True(t, strings.HasPrefix(lines[4], "10,"), lines[4])
}

func TestRecordsCSV_EmptySelectionHasHeader(t *testing.T) {
	srv, _ := newTestServer(&mockStore{snap: testSnapshot()})

	rec := get(t, srv, "/api/records.csv?line=L999")

	require.Equal(t, http.StatusOK, rec.Code)
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "code,"))
}

func TestLinesAndTracks(t *testing.T) {
	srv, _ := newTestServer(&mockStore{snap: testSnapshot()})

	rec := get(t, srv, "/api/lines")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"L100", "L200"}, decode[[]string](t, rec))

	rec = get(t, srv, "/api/tracks")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"1", "2"}, decode[[]string](t, rec))
}

func TestHealthzReturns200(t *testing.T) {
	srv, _ := newTestServer(&mockStore{err: snapshot.ErrNotLoaded})

	rec := get(t, srv, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])
}

func TestReadyzReturns200WhenLoaded(t *testing.T) {
	srv, _ := newTestServer(&mockStore{snap: testSnapshot()})

	rec := get(t, srv, "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode[map[string]string](t, rec)["status"])
}

func TestReadyzReturns503BeforeFirstLoad(t *testing.T) {
	srv, _ := newTestServer(&mockStore{err: snapshot.ErrNotLoaded})

	rec := get(t, srv, "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "snapshot not loaded", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(&mockStore{snap: testSnapshot()})

	rec := get(t, srv, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestUnknownMethod(t *testing.T) {
	srv, _ := newTestServer(&mockStore{snap: testSnapshot()})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/data", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
