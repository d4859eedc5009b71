package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/couchcryptid/ltv-stats-service/internal/domain"
	"github.com/couchcryptid/ltv-stats-service/internal/snapshot"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jszwec/csvutil"
)

const (
	defaultSortKey = "firstAppearanceDate"
	maxPageSize    = 500

	fetchFailed = "Failed to fetch data"
)

type dataResponse struct {
	Raw   []domain.FlatRecord `json:"raw"`
	Stats domain.Stats        `json:"stats"`
}

type statsResponse struct {
	Total    domain.Stats  `json:"total"`
	Filtered domain.Stats  `json:"filtered"`
	Filter   domain.Filter `json:"filter"`
}

type recordsResponse struct {
	Records  []domain.FlatRecord `json:"records"`
	Total    int                 `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"pageSize"`
	Pages    int                 `json:"pages"`
	Sort     string              `json:"sort"`
	Dir      string              `json:"dir"`
}

// tableQuery holds the sort and paging parameters of the records endpoints.
type tableQuery struct {
	sort       string
	descending bool
	page       int
	pageSize   int
}

func (q tableQuery) dir() string {
	if q.descending {
		return "desc"
	}
	return "asc"
}

// handleData serves the full flattened dataset and its aggregates.
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, dataResponse{Raw: snap.Records, Stats: snap.Stats})
}

// handleStats serves the aggregates of the whole snapshot next to those of
// the filtered subset.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query(), true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:    snap.Stats,
		Filtered: s.stats.get(snap, f),
		Filter:   f,
	})
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := parseFilter(q, true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tq, err := parseTableQuery(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	rows, err := domain.SortRecords(domain.ApplyFilter(snap.Records, f), tq.sort, tq.descending)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid sort %q", tq.sort))
		return
	}
	page, pages := domain.Paginate(rows, tq.page, tq.pageSize)

	s.writeJSON(w, http.StatusOK, recordsResponse{
		Records:  page,
		Total:    len(rows),
		Page:     tq.page,
		PageSize: tq.pageSize,
		Pages:    pages,
		Sort:     tq.sort,
		Dir:      tq.dir(),
	})
}

// handleRecordsCSV exports every filtered row, sorted, without paging.
func (s *Server) handleRecordsCSV(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := parseFilter(q, true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tq, err := parseTableQuery(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	rows, err := domain.SortRecords(domain.ApplyFilter(snap.Records, f), tq.sort, tq.descending)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid sort %q", tq.sort))
		return
	}
	data, err := csvutil.Marshal(rows)
	if err != nil {
		s.logger.Error("encode csv export", "error", err)
		writeError(w, http.StatusInternalServerError, fetchFailed)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="ltv.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleLines(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, domain.Lines(snap.Records))
}

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, domain.Tracks(snap.Records))
}

// snapshot loads the current snapshot, answering 500 when none is available.
func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) (*snapshot.Snapshot, bool) {
	snap, err := s.store.Load(r.Context())
	if err != nil {
		s.logger.Error("fetch snapshot", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, fetchFailed)
		return nil, false
	}
	return snap, true
}

// writeJSON encodes v fully before writing anything so that an encoding
// failure yields a clean 500 rather than a truncated body.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encode response", "error", err)
		writeError(w, http.StatusInternalServerError, fetchFailed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}

// parseFilter reads the filter query parameters. activeDefault applies when
// the active parameter is absent.
func parseFilter(q url.Values, activeDefault bool) (domain.Filter, error) {
	f := domain.Filter{
		Line:       q.Get("line"),
		Track:      q.Get("track"),
		Reason:     q.Get("reason"),
		ActiveOnly: activeDefault,
	}

	if v := q.Get("maxSpeed"); v != "" {
		speed, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(speed) {
			return domain.Filter{}, fmt.Errorf("invalid maxSpeed %q", v)
		}
		f.MaxSpeed = &speed
	}
	if v := q.Get("csv"); v != "" {
		csvOnly, err := strconv.ParseBool(v)
		if err != nil {
			return domain.Filter{}, fmt.Errorf("invalid csv %q", v)
		}
		f.CSVOnly = csvOnly
	}
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return domain.Filter{}, fmt.Errorf("invalid active %q", v)
		}
		f.ActiveOnly = active
	}
	return f, nil
}

// parseTableQuery reads sort, dir, page (zero-based) and pageSize. The
// default order is newest first appearance first.
func parseTableQuery(q url.Values) (tableQuery, error) {
	tq := tableQuery{
		sort:       defaultSortKey,
		descending: true,
		pageSize:   domain.DefaultPageSize,
	}
	if v := q.Get("sort"); v != "" {
		tq.sort = v
	}
	switch q.Get("dir") {
	case "", "desc":
	case "asc":
		tq.descending = false
	default:
		return tableQuery{}, errors.New("invalid dir: want asc or desc")
	}
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 0 {
			return tableQuery{}, fmt.Errorf("invalid page %q", v)
		}
		tq.page = page
	}
	if v := q.Get("pageSize"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size < 1 || size > maxPageSize {
			return tableQuery{}, fmt.Errorf("invalid pageSize %q: want 1-%d", v, maxPageSize)
		}
		tq.pageSize = size
	}
	return tq, nil
}
