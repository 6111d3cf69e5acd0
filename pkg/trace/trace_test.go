package trace

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aandersen2323/filemaker-mcp-server/pkg/audit"
	"github.com/aandersen2323/filemaker-mcp-server/pkg/kit"
)

func TestRecordPersists(t *testing.T) {
	db, err := audit.OpenStore(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	defer db.Close()

	s := NewStore(db, nil)
	require.NoError(t, s.Init())

	ctx := kit.WithTraceID(context.Background(), "tr-1")
	s.Record(ctx, "Patients", "query", `SELECT "Last Name" FROM Patients`, 3, 2*time.Millisecond, nil)
	s.Record(ctx, "Patients", "exec", `UPDATE Patients SET x = ?`, 0, time.Millisecond, errors.New("boom"))
	require.NoError(t, s.Close())

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sql_traces WHERE trace_id = 'tr-1'`).Scan(&n))
	assert.Equal(t, 2, n)

	var rows int
	var msg string
	require.NoError(t, db.QueryRow(`SELECT row_count, error FROM sql_traces WHERE op = 'exec'`).Scan(&rows, &msg))
	assert.Equal(t, 0, rows)
	assert.Equal(t, "boom", msg)
}

func TestRecordLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := NewStore(nil, logger)
	require.NoError(t, s.Init())
	defer s.Close()

	s.Record(context.Background(), "Patients", "query", "SELECT 1", 1, time.Millisecond, nil)
	assert.Contains(t, buf.String(), "level=DEBUG")
	buf.Reset()

	s.Record(context.Background(), "Patients", "query", "SELECT 1", 1, SlowThreshold+time.Millisecond, nil)
	assert.Contains(t, buf.String(), "level=WARN")
	buf.Reset()

	s.Record(context.Background(), "Patients", "query", "SELECT 1", 0, time.Millisecond, errors.New("driver"))
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "database=Patients")
}
