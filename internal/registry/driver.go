package registry

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Driver opens sessions against a data source.
type Driver interface {
	Open(ctx context.Context, connString string) (Session, error)
}

// Session is one open connection to a logical database.
type Session interface {
	Query(ctx context.Context, query string, args []any) (Cursor, error)
	Exec(ctx context.Context, query string, args []any) (int64, error)
	Close() error
}

// Cursor is a server-side result being fetched incrementally.
//
// FetchBatch returns at most n rows; fewer than n means the result is exhausted.
type Cursor interface {
	Columns() []string
	FetchBatch(n int) ([][]any, error)
	Close() error
}

// SQLDriver opens database/sql sessions through a registered driver name
// ("odbc" in production). Statements use ? placeholders and are rebound for
// drivers that number them, such as "postgres".
type SQLDriver struct {
	Name string
}

func (d SQLDriver) Open(ctx context.Context, connString string) (Session, error) {
	db, err := sqlx.Open(d.Name, connString)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", d.Name, err)
	}
	// One physical connection per logical database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s: %w", d.Name, err)
	}
	return &sqlSession{db: db}, nil
}

type sqlSession struct {
	db *sqlx.DB
}

func (s *sqlSession) Query(ctx context.Context, query string, args []any) (Cursor, error) {
	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, err
	}
	return &sqlCursor{rows: rows, columns: cols}, nil
}

func (s *sqlSession) Exec(ctx context.Context, query string, args []any) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Some ODBC drivers cannot report a count; the statement itself succeeded.
		return -1, nil
	}
	return n, nil
}

func (s *sqlSession) Close() error {
	return s.db.Close()
}

type sqlCursor struct {
	rows    *sqlx.Rows
	columns []string
	done    bool
}

func (c *sqlCursor) Columns() []string { return c.columns }

func (c *sqlCursor) FetchBatch(n int) ([][]any, error) {
	if c.done || n <= 0 {
		return nil, nil
	}
	batch := make([][]any, 0, n)
	for len(batch) < n {
		if !c.rows.Next() {
			c.done = true
			if err := c.rows.Err(); err != nil {
				return batch, err
			}
			break
		}
		vals, err := c.rows.SliceScan()
		if err != nil {
			return batch, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		batch = append(batch, vals)
	}
	return batch, nil
}

func (c *sqlCursor) Close() error {
	return c.rows.Close()
}
