package audit

import (
	"context"
	"time"

	"github.com/hazyhaar/pkg/idgen"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Entry records a single tool invocation for the audit trail.
type Entry struct {
	EntryID    string `json:"entry_id"`
	Timestamp  int64  `json:"timestamp"`
	Action     string `json:"action"`
	Database   string `json:"database"`
	Transport  string `json:"transport"` // "stdio" or "http"
	UserID     string `json:"user_id"`
	RequestID  string `json:"request_id"`
	Parameters string `json:"parameters"`
	Result     string `json:"result"`
	Category   string `json:"error_category"`
	Error      string `json:"error_message"`
	DurationMs int64  `json:"duration_ms"`
	Status     string `json:"status"`
}

// complete fills the fields a caller may leave empty.
func (e *Entry) complete() {
	if e.EntryID == "" {
		e.EntryID = "aud_" + idgen.New()
	}
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().Unix()
	}
	if e.Transport == "" {
		e.Transport = "stdio"
	}
	if e.Status == "" {
		e.Status = StatusSuccess
		if e.Error != "" || e.Category != "" {
			e.Status = StatusError
		}
	}
}

// Logger writes audit entries to storage.
type Logger interface {
	Log(ctx context.Context, entry *Entry) error
	LogAsync(entry *Entry)
	Close() error
}
