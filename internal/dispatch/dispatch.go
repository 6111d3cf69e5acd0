// Package dispatch is the single entry point for tool invocations.
//
// A call moves Idle -> Validating -> Executing -> Idle, or through Failed when
// anything goes wrong. Arguments are checked and the statement is built while
// Validating; nothing reaches the driver before Executing. Every error is
// turned into a Failure here and nowhere else.
package dispatch

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aandersen2323/filemaker-mcp-server/internal/config"
	"github.com/aandersen2323/filemaker-mcp-server/internal/executor"
	"github.com/aandersen2323/filemaker-mcp-server/internal/metrics"
	"github.com/aandersen2323/filemaker-mcp-server/internal/registry"
	"github.com/aandersen2323/filemaker-mcp-server/internal/statement"
	"github.com/aandersen2323/filemaker-mcp-server/internal/toolerr"
)

// State is the dispatcher's position in the invocation lifecycle.
type State int

const (
	Idle State = iota
	Validating
	Executing
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case Executing:
		return "executing"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Invocation is one named tool call.
type Invocation struct {
	Name string `json:"name"`
	Args Args   `json:"arguments"`
}

// TargetDatabase is the database named in the arguments, if any.
func (i Invocation) TargetDatabase() string {
	db, _ := i.Args["database"].(string)
	return db
}

// Failure is the caller-visible form of any error.
type Failure struct {
	Category toolerr.Category `json:"errorCategory"`
	Message  string           `json:"message"`
	Database string           `json:"-"`
}

func (f *Failure) Error() string { return string(f.Category) + ": " + f.Message }

// ErrorCategory lets the audit trail record the category.
func (f *Failure) ErrorCategory() string { return string(f.Category) }

func (f *Failure) TargetDatabase() string { return f.Database }

// Result is either a result set or a Failure, never both.
type Result struct {
	Database string   `json:"database,omitempty"`
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
	Capped   bool     `json:"capped,omitempty"`
	Failure  *Failure `json:"-"`
}

// OK reports whether the invocation succeeded.
func (r Result) OK() bool { return r.Failure == nil }

func (r Result) TargetDatabase() string { return r.Database }

type Options struct {
	Dialect         statement.Dialect
	Schema          config.SchemaConfig
	MaxRows         int
	MetadataMaxRows int
	Logger          *slog.Logger
}

type Dispatcher struct {
	reg  *registry.Registry
	exec *executor.Executor
	opts Options
	log  *slog.Logger

	// mu serializes invocations; transports may call concurrently.
	mu    sync.Mutex
	state State
	tools map[string]builder
}

func New(reg *registry.Registry, exec *executor.Executor, opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MetadataMaxRows < 1 {
		opts.MetadataMaxRows = opts.MaxRows
	}
	return &Dispatcher{
		reg:   reg,
		exec:  exec,
		opts:  opts,
		log:   opts.Logger,
		tools: builders(),
	}
}

// Tools returns the names of all registered tools, sorted.
func (d *Dispatcher) Tools() []string {
	names := make([]string, 0, len(d.tools))
	for n := range d.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Databases returns the configured logical database names.
func (d *Dispatcher) Databases() []string { return d.reg.Names() }

// State returns the current lifecycle state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Dispatch runs one invocation to completion.
func (d *Dispatcher) Dispatch(ctx context.Context, inv Invocation) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	res := d.dispatch(ctx, inv)
	elapsed := time.Since(start)

	if res.Failure != nil {
		metrics.RecordToolInvocation(inv.Name, string(res.Failure.Category), elapsed)
		level := slog.LevelError
		if res.Failure.Category == toolerr.CategoryValidation {
			level = slog.LevelWarn
		}
		d.log.Log(ctx, level, "tool failed",
			"tool", inv.Name,
			"category", res.Failure.Category,
			"error", res.Failure.Message,
			"duration", elapsed)
	} else {
		metrics.RecordToolInvocation(inv.Name, "ok", elapsed)
		d.log.Debug("tool done", "tool", inv.Name, "rows", res.RowCount, "duration", elapsed)
	}
	d.setState(Idle)
	return res
}

func (d *Dispatcher) dispatch(ctx context.Context, inv Invocation) Result {
	d.setState(Validating)
	build, ok := d.tools[inv.Name]
	if !ok {
		return d.fail("", toolerr.Validation("dispatch", toolerr.ErrUnknownTool, "%q", inv.Name))
	}
	args := inv.Args
	if args == nil {
		args = Args{}
	}
	p, err := build(d, inv.Name, args)
	if err != nil {
		return d.fail(inv.TargetDatabase(), err)
	}

	d.setState(Executing)
	var rs *executor.ResultSet
	if p.run != nil {
		rs, err = p.run(ctx)
	} else {
		rs, err = d.exec.Run(ctx, p.database, p.stmt, p.limit)
	}
	if err != nil {
		return d.fail(p.database, err)
	}
	return Result{
		Database: p.database,
		Columns:  rs.Columns,
		Rows:     rs.Rows,
		RowCount: rs.RowCount(),
		Capped:   rs.Capped,
	}
}

func (d *Dispatcher) fail(database string, err error) Result {
	d.setState(Failed)
	return Result{Failure: &Failure{
		Category: toolerr.CategoryOf(err),
		Message:  err.Error(),
		Database: database,
	}}
}

func (d *Dispatcher) setState(s State) {
	if d.state != s {
		d.log.Debug("dispatcher state", "from", d.state, "to", s)
	}
	d.state = s
}
