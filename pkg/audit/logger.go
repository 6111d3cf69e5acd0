package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const Schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	entry_id TEXT PRIMARY KEY,
	timestamp INTEGER NOT NULL,
	action TEXT NOT NULL,
	db_name TEXT,
	transport TEXT NOT NULL DEFAULT 'stdio',
	user_id TEXT,
	request_id TEXT,
	parameters TEXT,
	result TEXT,
	error_category TEXT,
	error_message TEXT,
	duration_ms INTEGER,
	status TEXT NOT NULL DEFAULT 'success'
);
CREATE INDEX IF NOT EXISTS idx_audit_log_time ON audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_log_db_action ON audit_log(db_name, action);
CREATE INDEX IF NOT EXISTS idx_audit_log_request ON audit_log(request_id);
CREATE INDEX IF NOT EXISTS idx_audit_log_category ON audit_log(error_category) WHERE error_category != '';
`

const insertEntry = `INSERT INTO audit_log (entry_id, timestamp, action, db_name, transport, user_id, request_id,
	parameters, result, error_category, error_message, duration_ms, status)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`

const (
	bufferSize    = 256
	batchSize     = 32
	flushInterval = 500 * time.Millisecond
)

// SQLiteLogger writes audit entries to the audit_log table. LogAsync queues
// entries that a background loop writes in one transaction per batch.
type SQLiteLogger struct {
	db     *sql.DB
	logger *slog.Logger
	queue  chan *Entry
	done   chan struct{}
	once   sync.Once
}

func NewSQLiteLogger(sqlDB *sql.DB, logger *slog.Logger) *SQLiteLogger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &SQLiteLogger{
		db:     sqlDB,
		logger: logger,
		queue:  make(chan *Entry, bufferSize),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *SQLiteLogger) Init() error {
	_, err := l.db.Exec(Schema)
	return err
}

// Log writes entry synchronously.
func (l *SQLiteLogger) Log(ctx context.Context, entry *Entry) error {
	entry.complete()
	return l.write(ctx, []*Entry{entry})
}

func (l *SQLiteLogger) LogAsync(entry *Entry) {
	entry.complete()
	select {
	case l.queue <- entry:
	default:
		l.logger.Warn("audit queue full, entry dropped",
			"action", entry.Action, "database", entry.Database, "request_id", entry.RequestID)
	}
}

// Close drains the queue. The database stays open.
func (l *SQLiteLogger) Close() error {
	l.once.Do(func() {
		close(l.queue)
		<-l.done
	})
	return nil
}

func (l *SQLiteLogger) run() {
	defer close(l.done)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var pending []*Entry
	flush := func() {
		if len(pending) == 0 {
			return
		}
		if err := l.write(context.Background(), pending); err != nil {
			l.logger.Error("audit write failed", "entries", len(pending), "error", err)
		}
		pending = pending[:0]
	}
	for {
		select {
		case e, ok := <-l.queue:
			if !ok {
				flush()
				return
			}
			pending = append(pending, e)
			if len(pending) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (l *SQLiteLogger) write(ctx context.Context, entries []*Entry) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertEntry)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.EntryID, e.Timestamp, e.Action, e.Database, e.Transport,
			e.UserID, e.RequestID, e.Parameters, e.Result, e.Category, e.Error, e.DurationMs, e.Status); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert %s: %w", e.EntryID, err)
		}
	}
	return tx.Commit()
}
