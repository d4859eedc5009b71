// Command inspect runs integrity checks over an LTV snapshot: it loads the
// snapshot from a JSON file or a SQLite database, flattens it, computes the
// dashboard aggregates and verifies that the views agree with each other.
//
// Usage:
//
//	go run ./cmd/inspect -data public/data/ltv.json
//	go run ./cmd/inspect -sqlite data/ltv.db
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/couchcryptid/ltv-stats-service/internal/adapter/file"
	"github.com/couchcryptid/ltv-stats-service/internal/adapter/sqlstore"
	"github.com/couchcryptid/ltv-stats-service/internal/domain"
	"github.com/google/go-cmp/cmp"
)

// phase tracks pass/fail for a check phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dataPath := flag.String("data", "", "path to a snapshot JSON document")
	sqlitePath := flag.String("sqlite", "", "path to a SQLite snapshot database")
	flag.Parse()

	if (*dataPath == "") == (*sqlitePath == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -data or -sqlite is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	ds, err := load(ctx, *dataPath, *sqlitePath)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load snapshot: %v\n", err)
		os.Exit(1)
	}

	os.Exit(run(ds))
}

func load(ctx context.Context, dataPath, sqlitePath string) (domain.Dataset, error) {
	if dataPath != "" {
		return file.NewSource(dataPath).Load(ctx)
	}
	store, err := sqlstore.Open(sqlstore.DriverSQLite, sqlitePath)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Load(ctx)
}

func run(ds domain.Dataset) int {
	fmt.Println("=== LTV Snapshot Integrity ===")

	records := domain.Flatten(ds)
	stats := domain.ComputeStats(records)

	phases := checkAll(ds, records, stats)

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-32s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d in %d lines, %d active, %d snapshot dates\n",
		stats.Total, stats.Lines, stats.ActiveCount, len(stats.TimelineData))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll checks passed.")
		return 0
	}
	fmt.Println("\nIntegrity check FAILED.")
	return 1
}

func checkAll(ds domain.Dataset, records []domain.FlatRecord, stats domain.Stats) []*phase {
	return []*phase{
		checkFlatten(ds, records),
		checkFields(records),
		checkDistributions(records, stats),
		checkTimeline(records, stats),
		checkDeterminism(records, stats),
		checkDates(records),
	}
}

// ── Phases ──

func checkFlatten(ds domain.Dataset, records []domain.FlatRecord) *phase {
	p := &phase{name: "Flatten integrity"}

	if len(records) != ds.Len() {
		p.errorf("flattened %d records, dataset holds %d", len(records), ds.Len())
		return p
	}

	latest, _ := domain.MaxLastSeen(ds)
	i := 0
	for _, g := range ds {
		for _, r := range g.Records {
			fr := records[i]
			if fr.Line != g.Line {
				p.errorf("record %d (code %s): line %q, want %q", i, r.Code, fr.Line, g.Line)
			}
			if fr.Code != r.Code {
				p.errorf("record %d: code %q out of order, want %q", i, fr.Code, r.Code)
			}
			if fr.Active != (r.LastSeen == latest) {
				p.errorf("record %d (code %s): active=%v with lastSeen %q and latest %q",
					i, r.Code, fr.Active, r.LastSeen, latest)
			}
			i++
		}
	}
	return p
}

func checkFields(records []domain.FlatRecord) *phase {
	p := &phase{name: "Field parsing"}
	for i, r := range records {
		if math.IsNaN(r.SpeedNum) || math.IsInf(r.SpeedNum, 0) || r.SpeedNum < 0 {
			p.errorf("record %d (code %s): speed %q parsed to %v", i, r.Code, r.Speed, r.SpeedNum)
		}
		if math.IsNaN(r.KmLength) || math.IsInf(r.KmLength, 0) || r.KmLength < 0 {
			p.errorf("record %d (code %s): length from %q-%q is %v", i, r.Code, r.StartKm, r.EndKm, r.KmLength)
		}
	}
	return p
}

func checkDistributions(records []domain.FlatRecord, stats domain.Stats) *phase {
	p := &phase{name: "Distribution sums"}

	var speedSum, trackSum, lineSum, reasonSum int
	for _, b := range stats.SpeedDistribution {
		if b.Speed%10 != 0 {
			p.errorf("speed bucket %d is not a multiple of 10", b.Speed)
		}
		speedSum += b.Count
	}
	for _, t := range stats.TrackDistribution {
		trackSum += t.Count
	}
	for _, l := range stats.LineData {
		lineSum += l.Count
	}
	for _, r := range stats.ReasonDistribution {
		reasonSum += r.Count
	}

	n := len(records)
	if stats.Total != n {
		p.errorf("total %d, want %d", stats.Total, n)
	}
	if speedSum != n {
		p.errorf("speed distribution sums to %d, want %d", speedSum, n)
	}
	if trackSum != n {
		p.errorf("track distribution sums to %d, want %d", trackSum, n)
	}
	if lineSum != n {
		p.errorf("line data sums to %d, want %d", lineSum, n)
	}
	if len(stats.LineData) != stats.Lines {
		p.errorf("line data has %d entries, totals report %d lines", len(stats.LineData), stats.Lines)
	}
	if len(stats.ReasonDistribution) > domain.TopReasons {
		p.errorf("reason distribution has %d entries, cap is %d", len(stats.ReasonDistribution), domain.TopReasons)
	}
	if reasonSum > n {
		p.errorf("reason distribution sums to %d, more than %d records", reasonSum, n)
	}
	if stats.ActiveCount > n || stats.CriticalCount > n || stats.CSVCount > n {
		p.errorf("counts exceed total: active=%d critical=%d csv=%d total=%d",
			stats.ActiveCount, stats.CriticalCount, stats.CSVCount, n)
	}
	return p
}

func checkTimeline(records []domain.FlatRecord, stats domain.Stats) *phase {
	p := &phase{name: "Timeline"}

	dates := make(map[string]struct{})
	for _, r := range records {
		if r.FirstAppearanceDate != "" {
			dates[r.FirstAppearanceDate] = struct{}{}
		}
	}
	want := max(len(dates)-1, 0)
	if len(stats.TimelineData) != want {
		p.errorf("timeline has %d points, want %d", len(stats.TimelineData), want)
	}

	for i, pt := range stats.TimelineData {
		if i > 0 && pt.DateStr <= stats.TimelineData[i-1].DateStr {
			p.errorf("timeline point %d (%s) not after %s", i, pt.DateStr, stats.TimelineData[i-1].DateStr)
		}
		if pt.Active > len(records) || pt.Count > pt.Active {
			p.errorf("timeline %s: new=%d active=%d over %d records", pt.DateStr, pt.Count, pt.Active, len(records))
		}
	}
	return p
}

func checkDeterminism(records []domain.FlatRecord, stats domain.Stats) *phase {
	p := &phase{name: "Determinism"}
	if diff := cmp.Diff(stats, domain.ComputeStats(records)); diff != "" {
		p.errorf("second computation differs (-first +second):\n%s", diff)
	}
	return p
}

func checkDates(records []domain.FlatRecord) *phase {
	p := &phase{name: "Date sanity"}
	for i, r := range records {
		if r.FirstAppearanceDate != "" && r.LastSeen != "" && r.FirstAppearanceDate > r.LastSeen {
			p.errorf("record %d (code %s): first seen %s after last seen %s",
				i, r.Code, r.FirstAppearanceDate, r.LastSeen)
		}
		if r.FirstAppearanceDate != "" {
			if _, err := time.Parse(time.DateOnly, r.FirstAppearanceDate); err != nil {
				p.errorf("record %d (code %s): firstAppearanceDate %q is not YYYY-MM-DD", i, r.Code, r.FirstAppearanceDate)
			}
		}
	}
	return p
}
