package mcp

import "strings"

type toolSpec struct {
	name        string
	description string
	properties  map[string]any
	required    []string
}

func str(desc string) map[string]string {
	return map[string]string{"type": "string", "description": desc}
}

func limitProp(def int) map[string]any {
	return map[string]any{
		"type":        "integer",
		"description": "Maximum number of rows to return, bounded by the server row cap",
		"default":     def,
	}
}

func object(desc string) map[string]any {
	return map[string]any{
		"type":                 "object",
		"description":          desc,
		"additionalProperties": map[string]any{"type": []string{"string", "number", "boolean", "null"}},
	}
}

func toolSpecs(databases []string, maxRows int) []toolSpec {
	database := str("Database name. Available: " + strings.Join(databases, ", "))
	return []toolSpec{
		{
			name:        "query",
			description: "Execute a single SELECT statement on a FileMaker database. The driver has no LIMIT support; rows are capped server-side.",
			properties: map[string]any{
				"database": database,
				"sql":      str("SQL SELECT statement. Quote field names with spaces: \"Last Name\""),
				"limit":    limitProp(maxRows),
			},
			required: []string{"database", "sql"},
		},
		{
			name:        "list_tables",
			description: "List all tables in a FileMaker database",
			properties:  map[string]any{"database": database},
			required:    []string{"database"},
		},
		{
			name:        "describe_table",
			description: "Get column names, types and nullability of a table",
			properties: map[string]any{
				"database": database,
				"table":    str("Table name"),
			},
			required: []string{"database", "table"},
		},
		{
			name:        "insert_record",
			description: "Insert a new record. Field names are checked against the table's columns.",
			properties: map[string]any{
				"database": database,
				"table":    str("Table name"),
				"data":     object("Field names and values to insert"),
			},
			required: []string{"database", "table", "data"},
		},
		{
			name:        "update_record",
			description: "Update records matching every field of where. An empty where is rejected.",
			properties: map[string]any{
				"database": database,
				"table":    str("Table name"),
				"data":     object("Field names and new values"),
				"where":    object("Field names and values that select the records to update (AND-combined equality)"),
			},
			required: []string{"database", "table", "data", "where"},
		},
		{
			name:        "list_all_databases",
			description: "List every configured FileMaker database with its tables",
			properties:  map[string]any{},
		},
		{
			name:        "search_patients",
			description: "Search patients by name prefix or exact patient ID. At least one filter is required.",
			properties: map[string]any{
				"last_name":  str("Last name prefix"),
				"first_name": str("First name prefix"),
				"patient_id": str("Exact patient ID"),
				"limit":      limitProp(maxRows),
			},
		},
		{
			name:        "get_appointments",
			description: "Get appointments for a date, a date range or a patient, ordered by time",
			properties: map[string]any{
				"date":       str("Date in YYYY-MM-DD format"),
				"end_date":   str("End date for a range query, YYYY-MM-DD (requires date)"),
				"patient_id": str("Filter by patient ID"),
				"limit":      limitProp(maxRows),
			},
		},
		{
			name:        "get_transactions",
			description: "Get transactions for a patient and/or a date range",
			properties: map[string]any{
				"patient_id": str("Patient ID"),
				"date_from":  str("Start date in YYYY-MM-DD format (inclusive)"),
				"date_to":    str("End date in YYYY-MM-DD format (inclusive)"),
				"limit":      limitProp(maxRows),
			},
		},
	}
}
