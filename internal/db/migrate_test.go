package db

import (
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrations_SortsAndSkips(t *testing.T) {
	fsys := fstest.MapFS{
		"010_later.sql":  {Data: []byte("SELECT 10;")},
		"002_second.sql": {Data: []byte("SELECT 2;")},
		"001_first.sql":  {Data: []byte("SELECT 1;")},
		"README.md":      {Data: []byte("docs")},
		"draft.sql":      {Data: []byte("SELECT 0;")},
		"abc_bad.sql":    {Data: []byte("SELECT 0;")},
	}

	migrations, err := NewMigrator(nil, fsys).LoadMigrations()
	require.NoError(t, err)
	require.Len(t, migrations, 3)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "001_first.sql", migrations[0].Name)
	assert.Equal(t, "SELECT 1;", migrations[0].SQL)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Equal(t, 10, migrations[2].Version)
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"1_b.sql":   {Data: []byte("SELECT 1;")},
	}

	_, err := NewMigrator(nil, fsys).LoadMigrations()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate migration version 1")
}

func TestEmbeddedSchema(t *testing.T) {
	migrations, err := NewMigrator(nil, Migrations()).LoadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	schema := migrations[0].SQL
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS doctor_slots",
		"CHECK (start_time < end_time)",
		"WHERE status <> 'cancelled'",
		"CREATE TABLE IF NOT EXISTS event_logs",
	} {
		assert.True(t, strings.Contains(schema, want), want)
	}
}

func TestMergePoolOptions(t *testing.T) {
	o := mergePoolOptions(defaultPoolOptions, PoolOptions{MaxConns: 4, MaxConnIdleTime: time.Minute})
	assert.Equal(t, int32(4), o.MaxConns)
	assert.Equal(t, int32(1), o.MinConns)
	assert.Equal(t, time.Hour, o.MaxConnLifetime)
	assert.Equal(t, time.Minute, o.MaxConnIdleTime)

	o = mergePoolOptions(defaultPoolOptions, PoolOptions{MaxConns: 2, MinConns: 5})
	assert.Equal(t, int32(2), o.MinConns)
}

func TestBuildStatus(t *testing.T) {
	at := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	migrations := []Migration{
		{Version: 1, Name: "001_init.sql"},
		{Version: 2, Name: "002_more.sql"},
	}

	statuses := buildStatus(migrations, map[int]time.Time{1: at})
	require.Len(t, statuses, 2)

	assert.True(t, statuses[0].Applied)
	require.NotNil(t, statuses[0].AppliedAt)
	assert.Equal(t, at, *statuses[0].AppliedAt)

	assert.False(t, statuses[1].Applied)
	assert.Nil(t, statuses[1].AppliedAt)
	assert.Equal(t, "002_more.sql", statuses[1].Name)
}
