// Package sqlstore keeps the snapshot in a SQL table, for deployments where
// the scraper writes to PostgreSQL or SQLite instead of a JSON file.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/ltv-stats-service/internal/domain"
	"github.com/couchcryptid/storm-data-shared/retry"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS ltv_records (
	line_order            INTEGER NOT NULL,
	position              INTEGER NOT NULL,
	line                  TEXT NOT NULL,
	code                  TEXT,
	stations              TEXT,
	track                 TEXT,
	start_km              TEXT,
	end_km                TEXT,
	speed                 TEXT,
	reason                TEXT,
	start_datetime        TEXT,
	end_datetime          TEXT,
	schedule              TEXT,
	csv                   BOOLEAN NOT NULL DEFAULT FALSE,
	comment               TEXT,
	first_appearance_date TEXT,
	last_seen             TEXT,
	latitude              DOUBLE PRECISION,
	longitude             DOUBLE PRECISION,
	PRIMARY KEY (line_order, position)
);
CREATE TABLE IF NOT EXISTS ltv_meta (
	id         INTEGER PRIMARY KEY,
	generation BIGINT NOT NULL
);`

const selectRecords = `
SELECT line_order, line,
	COALESCE(code, ''), COALESCE(stations, ''), COALESCE(track, ''),
	COALESCE(start_km, ''), COALESCE(end_km, ''), COALESCE(speed, ''),
	COALESCE(reason, ''), COALESCE(start_datetime, ''), COALESCE(end_datetime, ''),
	COALESCE(schedule, ''), csv, COALESCE(comment, ''),
	COALESCE(first_appearance_date, ''), COALESCE(last_seen, ''),
	latitude, longitude
FROM ltv_records
ORDER BY line_order, position`

const insertColumns = `line_order, position, line, code, stations, track, start_km, end_km,
	speed, reason, start_datetime, end_datetime, schedule, csv, comment,
	first_appearance_date, last_seen, latitude, longitude`

const insertColumnCount = 19

// Store reads and writes the ltv_records table.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the database. driver is DriverPostgres or DriverSQLite.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite allows one writer; a single connection also keeps
		// in-memory databases shared across calls.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db, driver: driver}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// WaitReady pings until the database answers or ctx ends. Attempts back off
// exponentially from 200ms up to 5s.
func (s *Store) WaitReady(ctx context.Context, logger *slog.Logger) error {
	backoff := 200 * time.Millisecond
	const maxBackoff = 5 * time.Second
	for {
		err := s.Ping(ctx)
		if err == nil {
			return nil
		}
		logger.Warn("database not reachable, retrying", "error", err, "backoff", backoff)
		if !retry.SleepWithContext(ctx, backoff) {
			return fmt.Errorf("wait for database: %w", err)
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	const seed = `INSERT INTO ltv_meta (id, generation) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, seed); err != nil {
		return fmt.Errorf("migrate: seed meta: %w", err)
	}
	return nil
}

// Load reads every record, grouped by line in stored order. Lines without
// records are not represented in the table and so do not appear.
func (s *Store) Load(ctx context.Context) (domain.Dataset, error) {
	rows, err := s.db.QueryContext(ctx, selectRecords)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	ds := domain.Dataset{}
	prevOrder := -1
	for rows.Next() {
		var (
			order    int
			line     string
			r        domain.RawRecord
			lat, lon sql.NullFloat64
		)
		if err := rows.Scan(&order, &line,
			&r.Code, &r.Stations, &r.Track,
			&r.StartKm, &r.EndKm, &r.Speed,
			&r.Reason, &r.StartDateTime, &r.EndDateTime,
			&r.Schedule, &r.CSV, &r.Comment,
			&r.FirstAppearanceDate, &r.LastSeen,
			&lat, &lon,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if lat.Valid {
			r.Latitude = &lat.Float64
		}
		if lon.Valid {
			r.Longitude = &lon.Float64
		}
		if len(ds) == 0 || order != prevOrder {
			ds = append(ds, domain.LineGroup{Line: line})
			prevOrder = order
		}
		g := &ds[len(ds)-1]
		g.Records = append(g.Records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	return ds, nil
}

// Replace swaps the table contents for ds in one transaction and bumps the
// generation counter watched by PollWatcher.
func (s *Store) Replace(ctx context.Context, ds domain.Dataset) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM ltv_records`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.insertQuery())
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, g := range ds {
		for j, r := range g.Records {
			if _, err = stmt.ExecContext(ctx,
				i, j, g.Line, r.Code, r.Stations, r.Track,
				r.StartKm, r.EndKm, r.Speed, r.Reason,
				r.StartDateTime, r.EndDateTime, r.Schedule, r.CSV, r.Comment,
				r.FirstAppearanceDate, r.LastSeen,
				nullFloat(r.Latitude), nullFloat(r.Longitude),
			); err != nil {
				return fmt.Errorf("insert %s record %d: %w", g.Line, j, err)
			}
		}
	}

	if _, err = tx.ExecContext(ctx, `UPDATE ltv_meta SET generation = generation + 1 WHERE id = 1`); err != nil {
		return fmt.Errorf("bump generation: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

// fingerprint summarizes the table so that pollers can detect a change
// without reading every row.
func (s *Store) fingerprint(ctx context.Context) (string, error) {
	const q = `
SELECT (SELECT COALESCE(MAX(generation), 0) FROM ltv_meta),
	COUNT(*), COALESCE(MAX(last_seen), ''), COALESCE(MAX(first_appearance_date), '')
FROM ltv_records`
	var (
		generation, count int64
		maxSeen, maxFirst string
	)
	err := s.db.QueryRowContext(ctx, q).Scan(&generation, &count, &maxSeen, &maxFirst)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return fmt.Sprintf("%d/%d/%s/%s", generation, count, maxSeen, maxFirst), nil
}

func (s *Store) insertQuery() string {
	ph := make([]string, insertColumnCount)
	for i := range ph {
		ph[i] = s.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO ltv_records (%s) VALUES (%s)", insertColumns, strings.Join(ph, ", "))
}

// placeholder returns the n-th bind parameter in the driver's dialect.
func (s *Store) placeholder(n int) string {
	if s.driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
