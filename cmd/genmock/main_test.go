package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/ltv-stats-service/internal/adapter/sqlstore"
	"github.com/couchcryptid/ltv-stats-service/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() options {
	return options{
		lines:   4,
		perLine: 20,
		seed:    7,
		latest:  time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC),
		days:    30,
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a := generate(testOptions())
	b := generate(testOptions())

	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("same seed produced different snapshots (-a +b):\n%s", diff)
	}

	other := testOptions()
	other.seed = 8
	assert.NotEqual(t, a, generate(other))
}

func TestGenerate_Shape(t *testing.T) {
	ds := generate(testOptions())

	require.Len(t, ds, 4)
	assert.Equal(t, "100", ds[0].Line)
	assert.Equal(t, "130", ds[3].Line)

	for _, g := range ds {
		require.NotEmpty(t, g.Records)
		for _, r := range g.Records {
			assert.LessOrEqual(t, r.FirstAppearanceDate, r.LastSeen, r.Code)
			assert.LessOrEqual(t, r.LastSeen, "2024-02-01", r.Code)
			assert.GreaterOrEqual(t, r.FirstAppearanceDate, "2024-01-02", r.Code)
		}
	}

	latest, ok := domain.MaxLastSeen(ds)
	require.True(t, ok)
	assert.LessOrEqual(t, latest, "2024-02-01")
}

func TestWriteDataset_RoundTrip(t *testing.T) {
	ds := generate(testOptions())
	path := filepath.Join(t.TempDir(), "nested", "ltv.json")

	require.NoError(t, writeDataset(path, ds))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	got, err := domain.DecodeDataset(data)
	require.NoError(t, err)
	if diff := cmp.Diff(ds, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestSeedSQLite(t *testing.T) {
	ds := generate(testOptions())
	path := filepath.Join(t.TempDir(), "ltv.db")

	require.NoError(t, seedSQLite(path, ds))

	store, err := sqlstore.Open(sqlstore.DriverSQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ds.Len(), got.Len())
	assert.Equal(t, len(ds), len(got))
}
