package statement

import (
	"sort"
	"strings"

	"github.com/aandersen2323/filemaker-mcp-server/internal/toolerr"
)

// CheckInsert validates insert arguments that need no table metadata.
func CheckInsert(table string, fields map[string]any) error {
	const op = "insert_record"
	if err := requireIdent(op, "table", table); err != nil {
		return err
	}
	if len(fields) == 0 {
		return toolerr.Validation(op, nil, "data must contain at least one field")
	}
	return nil
}

// CheckUpdate validates update arguments that need no table metadata. An
// update without a where predicate is always rejected here, before any
// metadata lookup reaches the driver.
func CheckUpdate(table string, fields, whereFields map[string]any) error {
	const op = "update_record"
	if err := requireIdent(op, "table", table); err != nil {
		return err
	}
	if len(whereFields) == 0 {
		return toolerr.Validation(op, toolerr.ErrNoWhere, "")
	}
	if len(fields) == 0 {
		return toolerr.Validation(op, nil, "data must contain at least one field")
	}
	return nil
}

// InsertRecord builds a parameterized INSERT. Field names are resolved against
// columns (case-insensitively) and written with the table's own spelling.
func InsertRecord(table string, fields map[string]any, columns []Column) (Statement, error) {
	const op = "insert_record"
	if err := CheckInsert(table, fields); err != nil {
		return Statement{}, err
	}
	names, args, err := resolveFields(op, table, fields, columns)
	if err != nil {
		return Statement{}, err
	}
	sql := "INSERT INTO " + QuoteIdent(table) +
		" (" + strings.Join(quoteAll(names), ", ") + ") VALUES (" + placeholders(len(names)) + ")"
	return Statement{SQL: sql, Args: args, Kind: KindExec}, nil
}

// UpdateRecord builds a parameterized UPDATE whose WHERE clause is the
// AND of column = value for every entry of whereFields.
func UpdateRecord(table string, fields, whereFields map[string]any, columns []Column) (Statement, error) {
	const op = "update_record"
	if err := CheckUpdate(table, fields, whereFields); err != nil {
		return Statement{}, err
	}
	setNames, setArgs, err := resolveFields(op, table, fields, columns)
	if err != nil {
		return Statement{}, err
	}
	whereNames, whereArgs, err := resolveFields(op, table, whereFields, columns)
	if err != nil {
		return Statement{}, err
	}

	sets := make([]string, len(setNames))
	for i, n := range setNames {
		sets[i] = QuoteIdent(n) + " = ?"
	}
	conds := make([]string, len(whereNames))
	for i, n := range whereNames {
		if whereArgs[i] == nil {
			conds[i] = QuoteIdent(n) + " IS NULL"
			continue
		}
		conds[i] = QuoteIdent(n) + " = ?"
	}

	args := append([]any{}, setArgs...)
	for _, a := range whereArgs {
		if a != nil {
			args = append(args, a)
		}
	}
	sql := "UPDATE " + QuoteIdent(table) + " SET " + strings.Join(sets, ", ") +
		" WHERE " + strings.Join(conds, " AND ")
	return Statement{SQL: sql, Args: args, Kind: KindExec}, nil
}

// resolveFields returns canonical column names (sorted) and bind values.
func resolveFields(op, table string, fields map[string]any, columns []Column) ([]string, []any, error) {
	if len(columns) == 0 {
		return nil, nil, toolerr.Validation(op, toolerr.ErrUnknownTable, "%q", table)
	}
	byName := make(map[string]string, len(columns))
	for _, c := range columns {
		byName[strings.ToLower(c.Name)] = c.Name
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	names := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		canonical, ok := byName[strings.ToLower(k)]
		if !ok {
			return nil, nil, toolerr.Validation(op, toolerr.ErrUnknownColumn, "%q in table %q", k, table)
		}
		if seen[canonical] {
			return nil, nil, toolerr.Validation(op, nil, "field %q given more than once", canonical)
		}
		seen[canonical] = true
		v, err := BindValue(fields[k])
		if err != nil {
			return nil, nil, toolerr.Validation(op, nil, "field %q: %v", k, err)
		}
		names = append(names, canonical)
		args = append(args, v)
	}
	return names, args, nil
}
