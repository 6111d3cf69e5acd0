package statement

import (
	"github.com/aandersen2323/filemaker-mcp-server/internal/config"
	"github.com/aandersen2323/filemaker-mcp-server/internal/toolerr"
)

// AppointmentBreakdown selects doctor and exam type of every appointment on
// date. Grouping happens client-side; the FileMaker driver handles GROUP BY poorly.
func AppointmentBreakdown(s config.AppointmentsSchema, date string) (Statement, error) {
	const op = "report daily"
	if date == "" {
		return Statement{}, toolerr.Validation(op, nil, "date is required")
	}
	if err := checkRange(op, "date", date, "", ""); err != nil {
		return Statement{}, err
	}
	sql := "SELECT " + QuoteIdent(s.Doctor) + ", " + QuoteIdent(s.ExamType) +
		" FROM " + QuoteIdent(s.Table) + " WHERE " + QuoteIdent(s.Date) + " = ?"
	return Statement{SQL: sql, Args: []any{date}, Kind: KindQuery}, nil
}

// AppointmentDates selects the date of every appointment in [from, to].
func AppointmentDates(s config.AppointmentsSchema, from, to string) (Statement, error) {
	const op = "report range"
	if from == "" || to == "" {
		return Statement{}, toolerr.Validation(op, nil, "from and to are required")
	}
	if err := checkRange(op, "from", from, "to", to); err != nil {
		return Statement{}, err
	}
	sql := "SELECT " + QuoteIdent(s.Date) + " FROM " + QuoteIdent(s.Table) +
		" WHERE " + QuoteIdent(s.Date) + " BETWEEN ? AND ?"
	return Statement{SQL: sql, Args: []any{from, to}, Kind: KindQuery}, nil
}

// TransactionCount counts transactions dated in [from, to].
func TransactionCount(s config.TransactionsSchema, from, to string) (Statement, error) {
	const op = "report transactions"
	if from == "" || to == "" {
		return Statement{}, toolerr.Validation(op, nil, "from and to are required")
	}
	if err := checkRange(op, "from", from, "to", to); err != nil {
		return Statement{}, err
	}
	sql := "SELECT COUNT(*) AS transaction_count FROM " + QuoteIdent(s.Table) +
		" WHERE " + QuoteIdent(s.Date) + " BETWEEN ? AND ?"
	return Statement{SQL: sql, Args: []any{from, to}, Kind: KindQuery}, nil
}
