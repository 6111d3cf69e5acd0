package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aandersen2323/filemaker-mcp-server/internal/registry"
	"github.com/aandersen2323/filemaker-mcp-server/internal/statement"
	"github.com/aandersen2323/filemaker-mcp-server/internal/toolerr"
)

var errLost = errors.New("[FileMaker][ODBC] {08S01} communication link failure")

// fakeCursor serves rows generated on demand and records every batch request.
type fakeCursor struct {
	total    int
	served   int
	requests []int
	closed   bool
	failAt   int // fail the request with this index (1-based); 0 never
}

func (c *fakeCursor) Columns() []string { return []string{"id", "name"} }

func (c *fakeCursor) FetchBatch(n int) ([][]any, error) {
	c.requests = append(c.requests, n)
	if c.failAt == len(c.requests) {
		return nil, errLost
	}
	var out [][]any
	for len(out) < n && c.served < c.total {
		c.served++
		out = append(out, []any{int64(c.served), fmt.Sprintf("row%d", c.served)})
	}
	return out, nil
}

func (c *fakeCursor) Close() error { c.closed = true; return nil }

type fakeSession struct {
	d      *fakeDriver
	closed bool
}

func (s *fakeSession) Query(context.Context, string, []any) (registry.Cursor, error) {
	s.d.queries++
	if s.d.queries <= len(s.d.queryErrs) && s.d.queryErrs[s.d.queries-1] != nil {
		return nil, s.d.queryErrs[s.d.queries-1]
	}
	c := &fakeCursor{total: s.d.rows, failAt: s.d.fetchFailAt}
	s.d.cursors = append(s.d.cursors, c)
	return c, nil
}

func (s *fakeSession) Exec(_ context.Context, _ string, args []any) (int64, error) {
	s.d.execArgs = append(s.d.execArgs, args)
	return 1, nil
}

func (s *fakeSession) Close() error { s.closed = true; return nil }

// fakeDriver scripts results per Query call across all sessions.
type fakeDriver struct {
	rows        int
	queryErrs   []error
	fetchFailAt int

	opens    int
	queries  int
	cursors  []*fakeCursor
	execArgs [][]any
	sessions []*fakeSession
}

func (d *fakeDriver) Open(context.Context, string) (registry.Session, error) {
	d.opens++
	s := &fakeSession{d: d}
	d.sessions = append(d.sessions, s)
	return s, nil
}

func newExecutor(d *fakeDriver, batch int) *Executor {
	reg := registry.New(d, registry.Options{
		DSN:        "FileMaker",
		Databases:  map[string]string{"Patients": "Patients"},
		LostStates: []string{"08S01"},
	}, nil)
	return New(reg, batch, nil, nil)
}

var selectAll = statement.Statement{SQL: "SELECT * FROM Patients", Kind: statement.KindQuery}

func TestFetchStopsExactlyAtCap(t *testing.T) {
	tests := []struct {
		name       string
		total      int
		maxRows    int
		batch      int
		wantRows   int
		wantReqs   []int
		wantCapped bool
	}{
		{"more rows than cap", 1000, 100, 30, 100, []int{30, 30, 30, 10}, true},
		{"exactly cap", 100, 100, 50, 100, []int{50, 50}, true},
		{"fewer rows", 42, 100, 50, 42, []int{50}, false},
		{"empty", 0, 100, 50, 0, []int{50}, false},
		{"short final batch", 75, 100, 50, 75, []int{50, 50}, false},
		{"batch larger than cap", 10, 5, 50, 5, []int{5}, true},
		{"cap of one", 3, 1, 1, 1, []int{1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur := &fakeCursor{total: tt.total}
			rs, err := Fetch(context.Background(), cur, tt.maxRows, tt.batch)
			require.NoError(t, err)

			assert.Len(t, rs.Rows, tt.wantRows)
			assert.Equal(t, tt.wantReqs, cur.requests)
			assert.Equal(t, tt.wantCapped, rs.Capped)
			assert.LessOrEqual(t, cur.served, tt.maxRows)
			assert.Equal(t, []string{"id", "name"}, rs.Columns)
		})
	}
}

func TestFetchKeepsDeliveryOrder(t *testing.T) {
	cur := &fakeCursor{total: 5}
	rs, err := Fetch(context.Background(), cur, 10, 2)
	require.NoError(t, err)
	for i, row := range rs.Rows {
		assert.Equal(t, int64(i+1), row[0])
	}
}

func TestFetchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Fetch(ctx, &fakeCursor{total: 10}, 10, 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunReturnsCappedResult(t *testing.T) {
	d := &fakeDriver{rows: 500}
	e := newExecutor(d, 50)

	rs, err := e.Run(context.Background(), "Patients", selectAll, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, rs.RowCount())
	assert.Equal(t, 1, d.opens)
	require.Len(t, d.cursors, 1)
	assert.True(t, d.cursors[0].closed)
}

func TestRunRetriesOnceOnConnectionLost(t *testing.T) {
	d := &fakeDriver{rows: 3, queryErrs: []error{errLost}}
	e := newExecutor(d, 50)

	rs, err := e.Run(context.Background(), "Patients", selectAll, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, rs.RowCount())
	assert.Equal(t, 2, d.opens)
	assert.Equal(t, 2, d.queries)
	assert.True(t, d.sessions[0].closed)
}

func TestRunSecondLossSurfacesConnectionError(t *testing.T) {
	d := &fakeDriver{rows: 3, queryErrs: []error{errLost, errLost, nil}}
	e := newExecutor(d, 50)

	_, err := e.Run(context.Background(), "Patients", selectAll, 100)
	require.Error(t, err)
	assert.Equal(t, toolerr.CategoryConnection, toolerr.CategoryOf(err))
	assert.Equal(t, 2, d.queries)
	assert.Equal(t, 2, d.opens)
	assert.False(t, e.reg.IsOpen("Patients"))
}

func TestRunLossDuringFetchIsRetried(t *testing.T) {
	d := &fakeDriver{rows: 3, fetchFailAt: 1}
	e := newExecutor(d, 50)

	_, err := e.Run(context.Background(), "Patients", selectAll, 100)
	require.Error(t, err)
	assert.True(t, toolerr.Is(err, toolerr.CategoryConnection))
	assert.Equal(t, 2, d.queries)
	for _, c := range d.cursors {
		assert.True(t, c.closed)
	}
}

func TestRunDoesNotRetryStatementErrors(t *testing.T) {
	d := &fakeDriver{queryErrs: []error{errors.New("[FileMaker][ODBC] {42S22} unknown column")}}
	e := newExecutor(d, 50)

	_, err := e.Run(context.Background(), "Patients", selectAll, 100)
	require.Error(t, err)
	assert.Equal(t, toolerr.CategoryDriver, toolerr.CategoryOf(err))
	assert.Contains(t, err.Error(), "unknown column")
	assert.Equal(t, 1, d.queries)
	assert.True(t, e.reg.IsOpen("Patients"))
}

func TestRunCancelledDoesNotReset(t *testing.T) {
	d := &fakeDriver{rows: 10}
	e := newExecutor(d, 5)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := e.reg.Acquire(ctx, "Patients")
	require.NoError(t, err)
	cancel()

	_, err = e.Run(ctx, "Patients", selectAll, 100)
	require.Error(t, err)
	assert.True(t, toolerr.Is(err, toolerr.CategoryDriver))
	assert.Equal(t, 1, d.opens)
	assert.True(t, e.reg.IsOpen("Patients"))
	assert.True(t, d.cursors[0].closed)
}

func TestRunUnknownDatabase(t *testing.T) {
	d := &fakeDriver{}
	e := newExecutor(d, 50)

	_, err := e.Run(context.Background(), "Billing", selectAll, 100)
	assert.True(t, toolerr.Is(err, toolerr.CategoryConfiguration))
	assert.Zero(t, d.opens)
}

func TestRunExecReturnsAffectedRows(t *testing.T) {
	d := &fakeDriver{}
	e := newExecutor(d, 50)

	st := statement.Statement{SQL: "INSERT INTO Patients (id) VALUES (?)", Args: []any{int64(7)}, Kind: statement.KindExec}
	rs, err := e.Run(context.Background(), "Patients", st, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"affected_rows"}, rs.Columns)
	assert.Equal(t, [][]any{{int64(1)}}, rs.Rows)
	assert.Equal(t, [][]any{{int64(7)}}, d.execArgs)
}

func TestRunRejectsNonPositiveCap(t *testing.T) {
	e := newExecutor(&fakeDriver{}, 50)
	_, err := e.Run(context.Background(), "Patients", selectAll, 0)
	assert.True(t, toolerr.Is(err, toolerr.CategoryCapacity))
}
