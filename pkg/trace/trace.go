// Package trace records every statement sent to the driver.
//
// Each record is logged through slog (Debug, Warn when slow, Error on failure)
// and, when the Store was given a database, persisted asynchronously to a
// sql_traces table keyed by the invocation's trace ID.
//
// Usage:
//
//	store := trace.NewStore(db, logger) // db may be nil
//	store.Init()
//	defer store.Close()
package trace

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/aandersen2323/filemaker-mcp-server/pkg/kit"
)

// SlowThreshold is the duration above which a statement is logged at Warn.
const SlowThreshold = 500 * time.Millisecond

// Entry is a single SQL trace record.
type Entry struct {
	TraceID    string
	Database   string
	Op         string // "query" or "exec"
	Query      string
	Rows       int
	DurationUs int64
	Error      string
	Timestamp  int64 // unix microseconds
}

// Store logs and optionally persists trace entries.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	ch     chan *Entry
	done   chan struct{}
	once   sync.Once
}

const Schema = `
CREATE TABLE IF NOT EXISTS sql_traces (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id TEXT,
	db_name TEXT NOT NULL,
	op TEXT NOT NULL,
	query TEXT NOT NULL,
	row_count INTEGER NOT NULL DEFAULT 0,
	duration_us INTEGER NOT NULL,
	error TEXT,
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sql_traces_ts ON sql_traces(timestamp);
CREATE INDEX IF NOT EXISTS idx_sql_traces_tid ON sql_traces(trace_id) WHERE trace_id != '';
`

// NewStore returns a Store. With a nil db entries are only logged.
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		db:     db,
		logger: logger,
		done:   make(chan struct{}),
	}
	if db == nil {
		close(s.done)
		return s
	}
	s.ch = make(chan *Entry, 1024)
	go s.flushLoop()
	return s
}

func (s *Store) Init() error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.Exec(Schema)
	return err
}

// Record logs one driver operation against database.
func (s *Store) Record(ctx context.Context, database, op, query string, rows int, d time.Duration, err error) {
	traceID := kit.GetTraceID(ctx)

	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	} else if d > SlowThreshold {
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("component", "sql"),
		slog.String("database", database),
		slog.String("op", op),
		slog.String("query", query),
		slog.Int("rows", rows),
		slog.Duration("duration", d),
	}
	if traceID != "" {
		attrs = append(attrs, slog.String("trace_id", traceID))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	s.logger.LogAttrs(ctx, level, "SQL", attrs...)

	if s.ch == nil {
		return
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	s.recordAsync(&Entry{
		TraceID:    traceID,
		Database:   database,
		Op:         op,
		Query:      query,
		Rows:       rows,
		DurationUs: d.Microseconds(),
		Error:      errMsg,
		Timestamp:  time.Now().UnixMicro(),
	})
}

func (s *Store) recordAsync(e *Entry) {
	select {
	case s.ch <- e:
	default:
		// buffer full, drop
	}
}

// Close flushes pending entries. It does not close the database.
func (s *Store) Close() error {
	s.once.Do(func() {
		if s.ch != nil {
			close(s.ch)
		}
		<-s.done
	})
	return nil
}

func (s *Store) flushLoop() {
	defer close(s.done)
	batch := make([]*Entry, 0, 64)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-s.ch:
			if !ok {
				s.flushBatch(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= 64 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *Store) flushBatch(batch []*Entry) {
	if len(batch) == 0 {
		return
	}
	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Error("trace store: begin tx", "error", err)
		return
	}
	stmt, err := tx.Prepare(`INSERT INTO sql_traces (trace_id, db_name, op, query, row_count, duration_us, error, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		s.logger.Error("trace store: prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, e := range batch {
		if _, err := stmt.Exec(e.TraceID, e.Database, e.Op, e.Query, e.Rows, e.DurationUs, e.Error, e.Timestamp); err != nil {
			s.logger.Error("trace store: insert", "error", err)
		}
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("trace store: commit", "error", err)
	}
}
