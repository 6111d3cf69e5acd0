// Package report builds practice summaries on top of the executor and
// writes them as JSONL, one record per line.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/aandersen2323/filemaker-mcp-server/internal/config"
	"github.com/aandersen2323/filemaker-mcp-server/internal/executor"
	"github.com/aandersen2323/filemaker-mcp-server/internal/statement"
)

const (
	Unassigned  = "Unassigned"
	Unspecified = "Unspecified"
	dateLayout  = "2006-01-02"
)

// DailyAppointments summarizes one day of the schedule.
type DailyAppointments struct {
	Date              string         `json:"date"`
	TotalAppointments int            `json:"total_appointments"`
	ByDoctor          map[string]int `json:"by_doctor"`
	ByExamType        map[string]int `json:"by_exam_type"`
	Truncated         bool           `json:"truncated,omitempty"`
}

// DayCount is the number of appointments on one date.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// RangeSummary holds per-day appointment counts for [From, To]. When
// Truncated is set the row cap was hit and the counts are a lower bound.
type RangeSummary struct {
	From      string     `json:"from"`
	To        string     `json:"to"`
	Days      []DayCount `json:"days"`
	Truncated bool       `json:"truncated,omitempty"`
}

// TransactionSummary counts transactions in a date range.
type TransactionSummary struct {
	From             string `json:"from"`
	To               string `json:"to"`
	TransactionCount int    `json:"transaction_count"`
}

// Runner is the part of the executor reports need.
type Runner interface {
	Run(ctx context.Context, database string, st statement.Statement, maxRows int) (*executor.ResultSet, error)
}

type Reporter struct {
	run     Runner
	schema  config.SchemaConfig
	maxRows int
}

func New(run Runner, schema config.SchemaConfig, maxRows int) *Reporter {
	return &Reporter{run: run, schema: schema, maxRows: maxRows}
}

// Daily counts the appointments on date by doctor and by exam type.
func (r *Reporter) Daily(ctx context.Context, date string) (*DailyAppointments, error) {
	s := r.schema.Appointments
	st, err := statement.AppointmentBreakdown(s, date)
	if err != nil {
		return nil, err
	}
	rs, err := r.run.Run(ctx, s.Database, st, r.maxRows)
	if err != nil {
		return nil, err
	}

	out := &DailyAppointments{
		Date:       date,
		ByDoctor:   map[string]int{},
		ByExamType: map[string]int{},
		Truncated:  rs.Capped,
	}
	for _, row := range rs.Rows {
		out.TotalAppointments++
		out.ByDoctor[label(row[0], Unassigned)]++
		out.ByExamType[label(row[1], Unspecified)]++
	}
	return out, nil
}

// Range counts appointments per day between from and to, inclusive.
// Days without appointments are omitted.
func (r *Reporter) Range(ctx context.Context, from, to string) (*RangeSummary, error) {
	s := r.schema.Appointments
	st, err := statement.AppointmentDates(s, from, to)
	if err != nil {
		return nil, err
	}
	rs, err := r.run.Run(ctx, s.Database, st, r.maxRows)
	if err != nil {
		return nil, err
	}

	counts := map[string]int{}
	for _, row := range rs.Rows {
		counts[dateString(row[0])]++
	}
	days := make([]DayCount, 0, len(counts))
	for d, n := range counts {
		days = append(days, DayCount{Date: d, Count: n})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return &RangeSummary{From: from, To: to, Days: days, Truncated: rs.Capped}, nil
}

// Transactions counts the transactions dated between from and to.
func (r *Reporter) Transactions(ctx context.Context, from, to string) (*TransactionSummary, error) {
	s := r.schema.Transactions
	st, err := statement.TransactionCount(s, from, to)
	if err != nil {
		return nil, err
	}
	rs, err := r.run.Run(ctx, s.Database, st, 1)
	if err != nil {
		return nil, err
	}
	out := &TransactionSummary{From: from, To: to}
	if len(rs.Rows) > 0 && len(rs.Rows[0]) > 0 {
		n, err := toInt(rs.Rows[0][0])
		if err != nil {
			return nil, fmt.Errorf("transaction count: %w", err)
		}
		out.TransactionCount = n
	}
	return out, nil
}

// WriteJSONL writes each record on its own line.
func WriteJSONL(w io.Writer, records ...any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encoding record: %w", err)
		}
	}
	return nil
}

func label(v any, empty string) string {
	if v == nil {
		return empty
	}
	s := fmt.Sprint(v)
	if s == "" {
		return empty
	}
	return s
}

// dateString normalizes a date cell. ODBC returns time.Time for DATE
// fields, text drivers return the string as stored.
func dateString(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format(dateLayout)
	case nil:
		return ""
	default:
		s := fmt.Sprint(t)
		if len(s) > len(dateLayout) {
			if _, err := time.Parse(dateLayout, s[:len(dateLayout)]); err == nil {
				return s[:len(dateLayout)]
			}
		}
		return s
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("unexpected %T", v)
	}
}
