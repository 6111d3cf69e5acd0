package statement

import (
	"strings"
	"time"

	"github.com/aandersen2323/filemaker-mcp-server/internal/config"
	"github.com/aandersen2323/filemaker-mcp-server/internal/toolerr"
)

const dateLayout = "2006-01-02"

// PatientSearch filters for search_patients. Names match by prefix,
// the patient ID exactly.
type PatientSearch struct {
	LastName  string
	FirstName string
	PatientID string
}

// AppointmentFilter filters for get_appointments. EndDate turns Date into a
// closed range.
type AppointmentFilter struct {
	Date      string
	EndDate   string
	PatientID string
}

// TransactionFilter filters for get_transactions.
type TransactionFilter struct {
	PatientID string
	DateFrom  string
	DateTo    string
}

type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) sql() string {
	return " WHERE " + strings.Join(w.conds, " AND ")
}

const likePrefixCond = ` LIKE ? ESCAPE '\'`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePrefix turns v into a LIKE pattern matching values that start with v
// literally.
func likePrefix(v string) string {
	return likeEscaper.Replace(v) + "%"
}

// SearchPatients builds a SELECT over the patients table projecting the
// configured patient columns, with the patient ID column first.
func SearchPatients(s config.PatientsSchema, f PatientSearch) (Statement, error) {
	const op = "search_patients"
	var w where
	if f.LastName != "" {
		w.add(QuoteIdent(s.LastName)+likePrefixCond, likePrefix(f.LastName))
	}
	if f.FirstName != "" {
		w.add(QuoteIdent(s.FirstName)+likePrefixCond, likePrefix(f.FirstName))
	}
	if f.PatientID != "" {
		w.add(QuoteIdent(s.PatientID)+" = ?", f.PatientID)
	}
	if len(w.conds) == 0 {
		return Statement{}, toolerr.Validation(op, toolerr.ErrNoFilter, "one of last_name, first_name, patient_id")
	}

	cols := []string{s.PatientID}
	for _, c := range s.Columns {
		if !strings.EqualFold(c, s.PatientID) {
			cols = append(cols, c)
		}
	}
	sql := "SELECT " + strings.Join(quoteAll(cols), ", ") + " FROM " + QuoteIdent(s.Table) + w.sql()
	return Statement{SQL: sql, Args: w.args, Kind: KindQuery}, nil
}

// GetAppointments builds a SELECT over the appointments table ordered by
// appointment time.
func GetAppointments(s config.AppointmentsSchema, f AppointmentFilter) (Statement, error) {
	const op = "get_appointments"
	if f.Date == "" && f.PatientID == "" {
		return Statement{}, toolerr.Validation(op, toolerr.ErrNoFilter, "one of date, patient_id")
	}
	if f.EndDate != "" && f.Date == "" {
		return Statement{}, toolerr.Validation(op, nil, "end_date requires date")
	}
	if err := checkRange(op, "date", f.Date, "end_date", f.EndDate); err != nil {
		return Statement{}, err
	}

	var w where
	dateCol := QuoteIdent(s.Date)
	switch {
	case f.EndDate != "":
		w.add(dateCol+" BETWEEN ? AND ?", f.Date, f.EndDate)
	case f.Date != "":
		w.add(dateCol+" = ?", f.Date)
	}
	if f.PatientID != "" {
		w.add(QuoteIdent(s.PatientID)+" = ?", f.PatientID)
	}

	sql := "SELECT * FROM " + QuoteIdent(s.Table) + w.sql()
	if s.Time != "" {
		sql += " ORDER BY " + QuoteIdent(s.Time)
	}
	return Statement{SQL: sql, Args: w.args, Kind: KindQuery}, nil
}

// GetTransactions builds a SELECT over the transactions table. A date range
// is closed when both bounds are given and open-ended otherwise.
func GetTransactions(s config.TransactionsSchema, f TransactionFilter) (Statement, error) {
	const op = "get_transactions"
	if f.PatientID == "" && f.DateFrom == "" && f.DateTo == "" {
		return Statement{}, toolerr.Validation(op, toolerr.ErrNoFilter, "one of patient_id, date_from, date_to")
	}
	if err := checkRange(op, "date_from", f.DateFrom, "date_to", f.DateTo); err != nil {
		return Statement{}, err
	}

	var w where
	if f.PatientID != "" {
		w.add(QuoteIdent(s.PatientID)+" = ?", f.PatientID)
	}
	dateCol := QuoteIdent(s.Date)
	switch {
	case f.DateFrom != "" && f.DateTo != "":
		w.add(dateCol+" BETWEEN ? AND ?", f.DateFrom, f.DateTo)
	case f.DateFrom != "":
		w.add(dateCol+" >= ?", f.DateFrom)
	case f.DateTo != "":
		w.add(dateCol+" <= ?", f.DateTo)
	}

	sql := "SELECT * FROM " + QuoteIdent(s.Table) + w.sql()
	return Statement{SQL: sql, Args: w.args, Kind: KindQuery}, nil
}

// checkRange validates YYYY-MM-DD bounds and their order. Empty bounds are skipped.
func checkRange(op, fromName, from, toName, to string) error {
	var fromT, toT time.Time
	var err error
	if from != "" {
		if fromT, err = time.Parse(dateLayout, from); err != nil {
			return toolerr.Validation(op, nil, "%s must be YYYY-MM-DD, got %q", fromName, from)
		}
	}
	if to != "" {
		if toT, err = time.Parse(dateLayout, to); err != nil {
			return toolerr.Validation(op, nil, "%s must be YYYY-MM-DD, got %q", toName, to)
		}
	}
	if from != "" && to != "" && toT.Before(fromT) {
		return toolerr.Validation(op, nil, "%s %s is before %s %s", toName, to, fromName, from)
	}
	return nil
}
