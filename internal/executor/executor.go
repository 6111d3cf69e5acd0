// Package executor runs statements against registry sessions and shapes the
// rows into a ResultSet.
//
// The driver has no LIMIT clause, so rows are pulled in batches and fetching
// stops exactly at the row cap. A connection-lost error resets the session and
// the statement is retried once on a fresh one.
package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/aandersen2323/filemaker-mcp-server/internal/metrics"
	"github.com/aandersen2323/filemaker-mcp-server/internal/registry"
	"github.com/aandersen2323/filemaker-mcp-server/internal/statement"
	"github.com/aandersen2323/filemaker-mcp-server/internal/toolerr"
)

// ResultSet is the shaped result of one statement. Columns keep the SQL
// projection order; every row is aligned with them.
type ResultSet struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	// Capped is set when fetching stopped at the row cap. More rows may exist.
	Capped bool `json:"capped,omitempty"`
}

// RowCount is len(Rows).
func (r *ResultSet) RowCount() int { return len(r.Rows) }

// Recorder receives one record per driver operation.
type Recorder interface {
	Record(ctx context.Context, database, op, query string, rows int, d time.Duration, err error)
}

type Executor struct {
	reg       *registry.Registry
	batchSize int
	trace     Recorder
	logger    *slog.Logger
}

// New returns an Executor fetching batchSize rows per driver round trip.
// trace may be nil.
func New(reg *registry.Registry, batchSize int, trace Recorder, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{reg: reg, batchSize: batchSize, trace: trace, logger: logger}
}

// Run executes st against database and returns at most maxRows rows.
// Exec statements return a single affected_rows column.
func (e *Executor) Run(ctx context.Context, database string, st statement.Statement, maxRows int) (*ResultSet, error) {
	if maxRows < 1 {
		return nil, toolerr.Capacity(database, "row cap must be positive, got %d", maxRows)
	}

	sess, err := e.reg.Acquire(ctx, database)
	if err != nil {
		return nil, err
	}
	rs, err := e.run(ctx, database, sess, st, maxRows)
	if err == nil {
		return rs, nil
	}
	if ctx.Err() != nil || !e.reg.IsConnectionLost(err) {
		return nil, toolerr.Driver(database, err)
	}

	e.logger.Warn("connection lost, reconnecting", "database", database, "error", err)
	metrics.RecordConnectionReset(database)
	if rerr := e.reg.Reset(database); rerr != nil {
		return nil, rerr
	}
	sess, err = e.reg.Acquire(ctx, database)
	if err != nil {
		return nil, err
	}
	rs, err = e.run(ctx, database, sess, st, maxRows)
	if err == nil {
		return rs, nil
	}
	if ctx.Err() == nil && e.reg.IsConnectionLost(err) {
		// Leave no dead session behind for the next invocation.
		e.reg.Reset(database)
		return nil, toolerr.Connection(database, err)
	}
	return nil, toolerr.Driver(database, err)
}

func (e *Executor) run(ctx context.Context, database string, sess registry.Session, st statement.Statement, maxRows int) (*ResultSet, error) {
	start := time.Now()
	if st.Kind == statement.KindExec {
		n, err := sess.Exec(ctx, st.SQL, st.Args)
		e.record(ctx, database, "exec", st.SQL, int(n), time.Since(start), err)
		if err != nil {
			return nil, err
		}
		return &ResultSet{Columns: []string{"affected_rows"}, Rows: [][]any{{n}}}, nil
	}

	cur, err := sess.Query(ctx, st.SQL, st.Args)
	if err != nil {
		e.record(ctx, database, "query", st.SQL, 0, time.Since(start), err)
		return nil, err
	}
	defer cur.Close()

	rs, err := Fetch(ctx, cur, maxRows, e.batchSize)
	rows := 0
	if rs != nil {
		rows = rs.RowCount()
	}
	e.record(ctx, database, "query", st.SQL, rows, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	metrics.RecordRows(database, rows, rs.Capped)
	return rs, nil
}

func (e *Executor) record(ctx context.Context, database, op, query string, rows int, d time.Duration, err error) {
	metrics.RecordStatement(database, op, d)
	if e.trace != nil {
		e.trace.Record(ctx, database, op, query, rows, d, err)
	}
}

// Fetch reads at most maxRows rows from cur, batchSize at a time. Each batch
// asks only for what the cap still allows, so the driver is never asked for a
// row past maxRows. A batch shorter than requested ends the fetch.
func Fetch(ctx context.Context, cur registry.Cursor, maxRows, batchSize int) (*ResultSet, error) {
	if batchSize < 1 || batchSize > maxRows {
		batchSize = maxRows
	}
	cols := cur.Columns()
	rs := &ResultSet{
		Columns: append(make([]string, 0, len(cols)), cols...),
		Rows:    [][]any{},
	}
	for len(rs.Rows) < maxRows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		want := min(batchSize, maxRows-len(rs.Rows))
		batch, err := cur.FetchBatch(want)
		if err != nil {
			return nil, err
		}
		if len(batch) > want {
			batch = batch[:want]
		}
		rs.Rows = append(rs.Rows, batch...)
		if len(batch) < want {
			return rs, nil
		}
	}
	rs.Capped = true
	return rs, nil
}
