// Command genmock writes a deterministic mock LTV snapshot for local
// development. The same seed always produces the same document. The output is
// written atomically so a running service reloads it exactly once.
//
// Usage:
//
//	go run ./cmd/genmock -out public/data/ltv.json -lines 12 -per-line 40
//	go run ./cmd/genmock -out public/data/ltv.json -sqlite data/ltv.db
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/ltv-stats-service/internal/adapter/sqlstore"
	"github.com/couchcryptid/ltv-stats-service/internal/domain"
)

var stations = []string{
	"Madrid-Chamartín", "Ávila", "Medina del Campo", "Valladolid", "Palencia",
	"León", "Ponferrada", "Ourense", "Zaragoza", "Lleida", "Tarragona",
	"Valencia", "Albacete", "Alcázar de San Juan", "Córdoba", "Sevilla",
	"Mérida", "Badajoz", "Salamanca", "Burgos", "Miranda de Ebro", "Vitoria",
}

var reasons = []string{
	"Estado de la vía", "Obras", "Estado de la infraestructura", "Puente",
	"Trinchera", "Talud", "Paso a nivel", "Instalaciones de seguridad",
	"Electrificación", "Desvío", "Drenaje", "Túnel", "Renovación de vía",
	"Circulación por vía única",
}

var tracks = []string{"1", "2", "U", "1", "2", ""}

type options struct {
	lines   int
	perLine int
	seed    uint64
	latest  time.Time
	days    int
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "public/data/ltv.json", "output path for the snapshot JSON")
	sqlitePath := flag.String("sqlite", "", "optional SQLite database to seed with the same snapshot")
	lines := flag.Int("lines", 12, "number of lines")
	perLine := flag.Int("per-line", 40, "maximum restrictions per line")
	seed := flag.Uint64("seed", 42, "random seed")
	latest := flag.String("date", "2024-02-01", "date of the latest scrape (YYYY-MM-DD)")
	days := flag.Int("days", 60, "days of scrape history before -date")
	flag.Parse()

	latestDate, err := time.Parse(time.DateOnly, *latest)
	if err != nil {
		return fmt.Errorf("invalid -date: %w", err)
	}
	if *lines < 1 || *perLine < 1 || *days < 1 {
		flag.Usage()
		return fmt.Errorf("-lines, -per-line and -days must be positive")
	}

	ds := generate(options{lines: *lines, perLine: *perLine, seed: *seed, latest: latestDate, days: *days})

	if err := writeDataset(*out, ds); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	log.Printf("wrote snapshot: %s", *out)

	if *sqlitePath != "" {
		if err := seedSQLite(*sqlitePath, ds); err != nil {
			return fmt.Errorf("seeding sqlite: %w", err)
		}
		log.Printf("seeded sqlite: %s", *sqlitePath)
	}

	printStats(ds)
	return nil
}

// generate builds the mock snapshot. Most restrictions were seen in the
// latest scrape; the rest dropped out on an earlier day.
func generate(o options) domain.Dataset {
	rng := rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15))
	latest := o.latest.Format(time.DateOnly)
	code := 1000

	ds := make(domain.Dataset, 0, o.lines)
	for i := range o.lines {
		line := fmt.Sprintf("%03d", 100+i*10)
		n := 1 + rng.IntN(o.perLine)
		records := make([]domain.RawRecord, 0, n)

		for range n {
			code++
			from := stations[rng.IntN(len(stations))]
			to := stations[rng.IntN(len(stations))]
			startKm := rng.Float64() * 400
			length := 0.1 + rng.Float64()*rng.Float64()*8

			firstOffset := rng.IntN(o.days + 1)
			first := o.latest.AddDate(0, 0, -firstOffset)
			lastSeen := latest
			if rng.IntN(100) < 15 && firstOffset > 0 {
				lastSeen = o.latest.AddDate(0, 0, -rng.IntN(firstOffset)-1).Format(time.DateOnly)
			}

			r := domain.RawRecord{
				Code:                strconv.Itoa(code),
				Stations:            from + " - " + to,
				Track:               tracks[rng.IntN(len(tracks))],
				StartKm:             formatKm(startKm),
				EndKm:               formatKm(startKm + length),
				Speed:               mockSpeed(rng),
				Reason:              reasons[rng.IntN(len(reasons))],
				StartDateTime:       first.Format("02/01/2006") + " 00:00",
				EndDateTime:         "",
				Schedule:            "",
				CSV:                 rng.IntN(10) == 0,
				FirstAppearanceDate: first.Format(time.DateOnly),
				LastSeen:            lastSeen,
			}
			if rng.IntN(4) == 0 {
				r.Schedule = "De 00:00 a 06:00"
			}
			if rng.IntN(3) == 0 {
				lat := 37 + rng.Float64()*6
				lon := -8 + rng.Float64()*10
				r.Latitude, r.Longitude = &lat, &lon
			}
			records = append(records, r)
		}
		ds = append(ds, domain.LineGroup{Line: line, Records: records})
	}
	return ds
}

// mockSpeed returns a speed in steps of 10 km/h, with an occasional blank or
// zero value as seen in real scrapes.
func mockSpeed(rng *rand.Rand) string {
	switch n := rng.IntN(100); {
	case n < 2:
		return ""
	case n < 4:
		return "0"
	default:
		return strconv.Itoa(10 * (1 + rng.IntN(16)))
	}
}

func formatKm(km float64) string {
	return strconv.FormatFloat(km, 'f', 3, 64)
}

// writeDataset writes to a temporary file in the target directory and
// renames it into place.
func writeDataset(path string, ds domain.Dataset) error {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".ltv-*.json")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func seedSQLite(path string, ds domain.Dataset) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := sqlstore.Open(sqlstore.DriverSQLite, path)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	return store.Replace(ctx, ds)
}

func printStats(ds domain.Dataset) {
	records := domain.Flatten(ds)
	stats := domain.ComputeStats(records)

	fmt.Println()
	fmt.Println("=== Mock Snapshot ===")
	fmt.Printf("  lines:       %d\n", stats.Lines)
	fmt.Printf("  records:     %d\n", stats.Total)
	fmt.Printf("  active:      %d\n", stats.ActiveCount)
	fmt.Printf("  critical:    %d\n", stats.CriticalCount)
	fmt.Printf("  csv:         %d\n", stats.CSVCount)
	fmt.Printf("  avg speed:   %d km/h\n", stats.AvgSpeed)
	fmt.Printf("  total km:    %.1f\n", stats.TotalKm)
}
