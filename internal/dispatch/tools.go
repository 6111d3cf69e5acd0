package dispatch

import (
	"context"
	"fmt"

	"github.com/aandersen2323/filemaker-mcp-server/internal/executor"
	"github.com/aandersen2323/filemaker-mcp-server/internal/statement"
	"github.com/aandersen2323/filemaker-mcp-server/internal/toolerr"
)

// plan is a validated invocation. Either stmt runs against database with
// limit, or run does the whole job (multi-statement tools).
type plan struct {
	database string
	stmt     statement.Statement
	limit    int
	run      func(ctx context.Context) (*executor.ResultSet, error)
}

type builder func(d *Dispatcher, op string, a Args) (*plan, error)

func builders() map[string]builder {
	return map[string]builder{
		"query":              buildQuery,
		"list_tables":        buildListTables,
		"describe_table":     buildDescribeTable,
		"insert_record":      buildInsertRecord,
		"update_record":      buildUpdateRecord,
		"search_patients":    buildSearchPatients,
		"get_appointments":   buildGetAppointments,
		"get_transactions":   buildGetTransactions,
		"list_all_databases": buildListAllDatabases,
	}
}

// database resolves the explicit database argument of the generic tools.
func (d *Dispatcher) database(op string, a Args) (string, error) {
	name, err := a.Required(op, "database")
	if err != nil {
		return "", err
	}
	return name, d.known(op, name)
}

func (d *Dispatcher) known(op, name string) error {
	if !d.reg.Has(name) {
		return toolerr.Configuration(op, toolerr.ErrUnknownDatabase, "%q", name)
	}
	return nil
}

// limit is the per-call row cap: the caller's limit bounded by MaxRows.
func (d *Dispatcher) limit(op string, a Args) (int, error) {
	n, err := a.Int(op, "limit", 0)
	if err != nil {
		return 0, err
	}
	if n <= 0 || n > d.opts.MaxRows {
		return d.opts.MaxRows, nil
	}
	return n, nil
}

func buildQuery(d *Dispatcher, op string, a Args) (*plan, error) {
	db, err := d.database(op, a)
	if err != nil {
		return nil, err
	}
	sql, err := a.Text(op, "sql")
	if err != nil {
		return nil, err
	}
	st, err := statement.Query(sql)
	if err != nil {
		return nil, err
	}
	limit, err := d.limit(op, a)
	if err != nil {
		return nil, err
	}
	return &plan{database: db, stmt: st, limit: limit}, nil
}

func buildListTables(d *Dispatcher, op string, a Args) (*plan, error) {
	db, err := d.database(op, a)
	if err != nil {
		return nil, err
	}
	st, err := statement.ListTables(d.opts.Dialect)
	if err != nil {
		return nil, err
	}
	return &plan{database: db, stmt: st, limit: d.opts.MetadataMaxRows}, nil
}

func buildDescribeTable(d *Dispatcher, op string, a Args) (*plan, error) {
	db, err := d.database(op, a)
	if err != nil {
		return nil, err
	}
	table, err := a.Required(op, "table")
	if err != nil {
		return nil, err
	}
	st, err := statement.DescribeTable(d.opts.Dialect, table)
	if err != nil {
		return nil, err
	}
	return &plan{database: db, stmt: st, limit: d.opts.MetadataMaxRows}, nil
}

func buildInsertRecord(d *Dispatcher, op string, a Args) (*plan, error) {
	db, err := d.database(op, a)
	if err != nil {
		return nil, err
	}
	table, err := a.Required(op, "table")
	if err != nil {
		return nil, err
	}
	fields, err := a.Object(op, "data")
	if err != nil {
		return nil, err
	}
	if err := statement.CheckInsert(table, fields); err != nil {
		return nil, err
	}
	return &plan{database: db, run: func(ctx context.Context) (*executor.ResultSet, error) {
		cols, err := d.columns(ctx, db, table)
		if err != nil {
			return nil, err
		}
		st, err := statement.InsertRecord(table, fields, cols)
		if err != nil {
			return nil, err
		}
		return d.exec.Run(ctx, db, st, 1)
	}}, nil
}

func buildUpdateRecord(d *Dispatcher, op string, a Args) (*plan, error) {
	db, err := d.database(op, a)
	if err != nil {
		return nil, err
	}
	table, err := a.Required(op, "table")
	if err != nil {
		return nil, err
	}
	fields, err := a.Object(op, "data")
	if err != nil {
		return nil, err
	}
	where, err := a.Object(op, "where")
	if err != nil {
		return nil, err
	}
	if err := statement.CheckUpdate(table, fields, where); err != nil {
		return nil, err
	}
	return &plan{database: db, run: func(ctx context.Context) (*executor.ResultSet, error) {
		cols, err := d.columns(ctx, db, table)
		if err != nil {
			return nil, err
		}
		st, err := statement.UpdateRecord(table, fields, where, cols)
		if err != nil {
			return nil, err
		}
		return d.exec.Run(ctx, db, st, 1)
	}}, nil
}

func buildSearchPatients(d *Dispatcher, op string, a Args) (*plan, error) {
	s := d.opts.Schema.Patients
	if err := d.known(op, s.Database); err != nil {
		return nil, err
	}
	var f statement.PatientSearch
	var err error
	if f.LastName, err = a.String(op, "last_name"); err != nil {
		return nil, err
	}
	if f.FirstName, err = a.String(op, "first_name"); err != nil {
		return nil, err
	}
	if f.PatientID, err = a.String(op, "patient_id"); err != nil {
		return nil, err
	}
	st, err := statement.SearchPatients(s, f)
	if err != nil {
		return nil, err
	}
	limit, err := d.limit(op, a)
	if err != nil {
		return nil, err
	}
	return &plan{database: s.Database, stmt: st, limit: limit}, nil
}

func buildGetAppointments(d *Dispatcher, op string, a Args) (*plan, error) {
	s := d.opts.Schema.Appointments
	if err := d.known(op, s.Database); err != nil {
		return nil, err
	}
	var f statement.AppointmentFilter
	var err error
	if f.Date, err = a.String(op, "date"); err != nil {
		return nil, err
	}
	if f.EndDate, err = a.String(op, "end_date"); err != nil {
		return nil, err
	}
	if f.PatientID, err = a.String(op, "patient_id"); err != nil {
		return nil, err
	}
	st, err := statement.GetAppointments(s, f)
	if err != nil {
		return nil, err
	}
	limit, err := d.limit(op, a)
	if err != nil {
		return nil, err
	}
	return &plan{database: s.Database, stmt: st, limit: limit}, nil
}

func buildGetTransactions(d *Dispatcher, op string, a Args) (*plan, error) {
	s := d.opts.Schema.Transactions
	if err := d.known(op, s.Database); err != nil {
		return nil, err
	}
	var f statement.TransactionFilter
	var err error
	if f.PatientID, err = a.String(op, "patient_id"); err != nil {
		return nil, err
	}
	if f.DateFrom, err = a.FirstString(op, "date_from", "start_date"); err != nil {
		return nil, err
	}
	if f.DateTo, err = a.FirstString(op, "date_to", "end_date"); err != nil {
		return nil, err
	}
	st, err := statement.GetTransactions(s, f)
	if err != nil {
		return nil, err
	}
	limit, err := d.limit(op, a)
	if err != nil {
		return nil, err
	}
	return &plan{database: s.Database, stmt: st, limit: limit}, nil
}

// buildListAllDatabases lists the tables of every configured database. A
// database that cannot be read gets its error in the row instead of failing
// the whole call.
func buildListAllDatabases(d *Dispatcher, op string, _ Args) (*plan, error) {
	st, err := statement.ListTables(d.opts.Dialect)
	if err != nil {
		return nil, err
	}
	return &plan{run: func(ctx context.Context) (*executor.ResultSet, error) {
		rs := &executor.ResultSet{
			Columns: []string{"database", "table_count", "tables", "error"},
			Rows:    [][]any{},
		}
		for _, name := range d.reg.Names() {
			tables, err := d.exec.Run(ctx, name, st, d.opts.MetadataMaxRows)
			if err != nil {
				if ctx.Err() != nil {
					return nil, err
				}
				rs.Rows = append(rs.Rows, []any{name, 0, []string{}, err.Error()})
				continue
			}
			names := firstColumn(tables)
			rs.Rows = append(rs.Rows, []any{name, len(names), names, nil})
		}
		return rs, nil
	}}, nil
}

// columns reads the column list of table through the describe statement.
func (d *Dispatcher) columns(ctx context.Context, db, table string) ([]statement.Column, error) {
	st, err := statement.DescribeTable(d.opts.Dialect, table)
	if err != nil {
		return nil, err
	}
	rs, err := d.exec.Run(ctx, db, st, d.opts.MetadataMaxRows)
	if err != nil {
		return nil, err
	}
	// A partial column list would turn real columns into unknown ones.
	if rs.Capped {
		return nil, toolerr.Capacity("describe "+table, "table has more than %d columns; raise query.metadata_max_rows", d.opts.MetadataMaxRows)
	}
	return statement.ColumnsFromRows(rs.Rows), nil
}

// TableSchema is one table of a DatabaseSchema.
type TableSchema struct {
	Name    string             `json:"name"`
	Columns []statement.Column `json:"columns"`
}

// DatabaseSchema describes every table of a logical database.
type DatabaseSchema struct {
	Database string        `json:"database"`
	Tables   []TableSchema `json:"tables"`
}

// DescribeDatabase reads the tables of db and the columns of each table.
func (d *Dispatcher) DescribeDatabase(ctx context.Context, db string) (*DatabaseSchema, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.known("describe_database", db); err != nil {
		return nil, err
	}
	st, err := statement.ListTables(d.opts.Dialect)
	if err != nil {
		return nil, err
	}
	rs, err := d.exec.Run(ctx, db, st, d.opts.MetadataMaxRows)
	if err != nil {
		return nil, err
	}
	out := &DatabaseSchema{Database: db, Tables: []TableSchema{}}
	for _, table := range firstColumn(rs) {
		cols, err := d.columns(ctx, db, table)
		if err != nil {
			return nil, fmt.Errorf("describing %s: %w", table, err)
		}
		out.Tables = append(out.Tables, TableSchema{Name: table, Columns: cols})
	}
	return out, nil
}

func firstColumn(rs *executor.ResultSet) []string {
	out := make([]string, 0, len(rs.Rows))
	for _, r := range rs.Rows {
		if len(r) > 0 {
			out = append(out, fmt.Sprint(r[0]))
		}
	}
	return out
}
