// Package statement turns typed tool arguments into parameterized SQL.
//
// Builders are pure: they never touch a connection. Values always travel as
// bind parameters; only identifiers (table and column names) are written into
// the SQL text, quoted when they need it.
package statement

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/aandersen2323/filemaker-mcp-server/internal/toolerr"
)

// Kind tells the executor whether a statement yields rows.
type Kind int

const (
	KindQuery Kind = iota
	KindExec
)

// Statement is SQL text plus its positional bind values.
type Statement struct {
	SQL  string
	Args []any
	Kind Kind
}

// Column describes one column of a table as reported by DescribeTable.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

var plainIdentRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reserved holds SQL-92 words that FileMaker also reserves and that show up
// as field names in practice.
var reserved = map[string]bool{
	"ALL": true, "AND": true, "AS": true, "ASC": true, "BETWEEN": true, "BY": true,
	"CASE": true, "COLUMN": true, "CURRENT": true, "DATE": true, "DAY": true,
	"DEFAULT": true, "DELETE": true, "DESC": true, "DISTINCT": true, "END": true,
	"FROM": true, "GROUP": true, "HAVING": true, "HOUR": true, "IN": true,
	"INSERT": true, "INTO": true, "IS": true, "JOIN": true, "KEY": true,
	"LIKE": true, "MINUTE": true, "MONTH": true, "NAME": true, "NOT": true,
	"NULL": true, "OF": true, "ON": true, "OR": true, "ORDER": true,
	"POSITION": true, "SECOND": true, "SELECT": true, "SET": true, "SIZE": true,
	"TABLE": true, "TIME": true, "TIMESTAMP": true, "TO": true, "TYPE": true,
	"UNION": true, "UPDATE": true, "USER": true, "VALUE": true, "VALUES": true,
	"WHERE": true, "YEAR": true, "ZONE": true,
}

// QuoteIdent returns name ready to be placed in SQL text. Names with spaces,
// punctuation or reserved words are double-quoted with embedded quotes doubled.
func QuoteIdent(name string) string {
	if plainIdentRe.MatchString(name) && !reserved[strings.ToUpper(name)] {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = QuoteIdent(n)
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// BindValue converts a JSON-decoded argument into a driver bind value.
// Integral numbers bind as int64; objects and arrays are rejected.
func BindValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x), nil
		}
		return x, nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", x.String())
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unsupported value of type %T", v)
	}
}

func requireIdent(op, what, name string) error {
	if strings.TrimSpace(name) == "" {
		return toolerr.Validation(op, nil, "%s is required", what)
	}
	return nil
}
