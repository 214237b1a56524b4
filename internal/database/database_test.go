package database

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressRoundTrip(t *testing.T) {
	text := strings.Repeat("T1G1\n  04:00 0.00\n", 200)

	data := compressText(text)
	assert.Less(t, len(data), len(text))

	out, err := decompressText(data)
	require.NoError(t, err)
	assert.Equal(t, text, out)
}

func TestCompressEmpty(t *testing.T) {
	assert.Nil(t, compressText(""))

	out, err := decompressText(nil)
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestDecompressGarbage(t *testing.T) {
	_, err := decompressText([]byte("not zstd"))
	require.Error(t, err)
}

func migrationsDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

func testDB(t *testing.T) *DB {
	t.Helper()
	connStr := os.Getenv("TEST_POSTGRES_CONN")
	if connStr == "" {
		t.Skip("Skipping test: TEST_POSTGRES_CONN not set")
	}
	db, err := Connect(connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	applied, err := db.RunMigrations(migrationsDir(t))
	require.NoError(t, err)
	require.Contains(t, applied, "001_init.sql")
	return db
}

func TestReportLog(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	r := &ReportLog{
		ID:         uuid.NewString(),
		ReportType: "morning",
		ReportDate: time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC),
		Stage:      "Corte→Vizzavona",
		Subject:    "GR20 Morgenbericht - Corte→Vizzavona",
		Text:       "Corte→Vi - Gew. -",
		Status:     ReportStatusSent,
		Debug:      "GR20 Debug - morning",
		Channels:   []string{"email", "sms"},
	}
	require.NoError(t, db.InsertReport(ctx, r))
	assert.False(t, r.CreatedAt.IsZero())

	got, err := db.GetReport(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, r.Text, got.Text)
	assert.Equal(t, r.Debug, got.Debug)
	assert.Equal(t, r.Channels, got.Channels)

	assert.Equal(t, ReportStatusSent, got.Status)
	assert.Nil(t, got.Error)

	missing, err := db.GetReport(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCommandLogAndCleanup(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	c := &CommandLog{
		ID:      uuid.NewString(),
		Sender:  "+491701234567",
		Body:    "### report: evening",
		Command: "report",
		Status:  CommandStatusApplied,
		Result:  "OK: evening report started",
	}
	require.NoError(t, db.InsertCommand(ctx, c))

	deleted, err := db.DeleteBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deleted, int64(1))
}
