package statement

import (
	"fmt"
	"strings"

	"github.com/aandersen2323/filemaker-mcp-server/internal/toolerr"
)

// Dialect selects how table and column metadata is read from the engine.
type Dialect string

const (
	// DialectFileMaker reads the FileMaker_Tables and FileMaker_Fields system tables.
	DialectFileMaker Dialect = "filemaker"
	// DialectInformationSchema reads the SQL-92 INFORMATION_SCHEMA views.
	DialectInformationSchema Dialect = "information_schema"
	// DialectSQLite reads sqlite_master and pragma_table_info.
	DialectSQLite Dialect = "sqlite"
)

// ParseDialect validates a configured dialect name.
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(s)); d {
	case DialectFileMaker, DialectInformationSchema, DialectSQLite:
		return d, nil
	case "":
		return DialectFileMaker, nil
	default:
		return "", fmt.Errorf("unknown metadata dialect %q", s)
	}
}

// ListTables enumerates the user tables of the connected database.
// The result has a single table_name column, sorted.
func ListTables(d Dialect) (Statement, error) {
	var sql string
	switch d {
	case DialectFileMaker:
		sql = `SELECT TableName AS table_name FROM FileMaker_Tables ORDER BY TableName`
	case DialectInformationSchema:
		sql = `SELECT TABLE_NAME AS table_name FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME`
	case DialectSQLite:
		sql = `SELECT name AS table_name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	default:
		return Statement{}, toolerr.Configuration("list_tables", nil, "unknown metadata dialect %q", string(d))
	}
	return Statement{SQL: sql, Kind: KindQuery}, nil
}

// DescribeTable returns column_name, type_name and nullable ("YES"/"NO")
// for every column of table, in declaration order.
func DescribeTable(d Dialect, table string) (Statement, error) {
	if err := requireIdent("describe_table", "table", table); err != nil {
		return Statement{}, err
	}
	var sql string
	switch d {
	case DialectFileMaker:
		// FileMaker has no NOT NULL constraint at the SQL level.
		sql = `SELECT FieldName AS column_name, FieldType AS type_name, 'YES' AS nullable FROM FileMaker_Fields WHERE TableName = ? ORDER BY FieldId`
	case DialectInformationSchema:
		sql = `SELECT COLUMN_NAME AS column_name, DATA_TYPE AS type_name, IS_NULLABLE AS nullable FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_NAME = ? ORDER BY ORDINAL_POSITION`
	case DialectSQLite:
		sql = `SELECT name AS column_name, type AS type_name, CASE WHEN "notnull" = 0 THEN 'YES' ELSE 'NO' END AS nullable FROM pragma_table_info(?) ORDER BY cid`
	default:
		return Statement{}, toolerr.Configuration("describe_table", nil, "unknown metadata dialect %q", string(d))
	}
	return Statement{SQL: sql, Args: []any{table}, Kind: KindQuery}, nil
}

// ColumnsFromRows converts DescribeTable rows into Columns.
func ColumnsFromRows(rows [][]any) []Column {
	cols := make([]Column, 0, len(rows))
	for _, r := range rows {
		if len(r) < 3 {
			continue
		}
		cols = append(cols, Column{
			Name:     fmt.Sprint(r[0]),
			Type:     fmt.Sprint(r[1]),
			Nullable: strings.EqualFold(fmt.Sprint(r[2]), "YES"),
		})
	}
	return cols
}
