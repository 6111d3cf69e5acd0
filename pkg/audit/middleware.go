package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aandersen2323/filemaker-mcp-server/pkg/kit"
)

// Categorized is implemented by errors that carry a caller-facing category.
type Categorized interface {
	ErrorCategory() string
}

// Targeted is implemented by requests, responses and errors that know which
// configured database a call touched.
type Targeted interface {
	TargetDatabase() string
}

type options struct {
	results bool
}

type Option func(*options)

// WithResults stores the marshaled response of successful calls. Results
// contain record data, so it is off unless asked for.
func WithResults() Option {
	return func(o *options) { o.results = true }
}

// Middleware records one Entry per call to next and queues it on logger.
func Middleware(logger Logger, action string, opts ...Option) kit.Middleware {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, request any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, request)

			entry := &Entry{
				Action:     action,
				Database:   targetOf(resp, err, request),
				Transport:  kit.GetTransport(ctx),
				UserID:     kit.GetUserID(ctx),
				RequestID:  kit.GetRequestID(ctx),
				DurationMs: time.Since(start).Milliseconds(),
			}
			if params, e := json.Marshal(request); e == nil {
				entry.Parameters = string(params)
			}
			entry.outcome(resp, err, o.results)

			logger.LogAsync(entry)
			return resp, err
		}
	}
}

// outcome sets status, category and result from what the call returned.
func (e *Entry) outcome(resp any, err error, withResult bool) {
	if err != nil {
		e.Status = StatusError
		e.Error = err.Error()
		var c Categorized
		if errors.As(err, &c) {
			e.Category = c.ErrorCategory()
		}
		return
	}
	e.Status = StatusSuccess
	if withResult {
		if result, je := json.Marshal(resp); je == nil {
			e.Result = string(result)
		}
	}
}

// targetOf prefers the database the call resolved to over the one the
// caller asked for.
func targetOf(resp any, err error, request any) string {
	if t, ok := resp.(Targeted); ok && t.TargetDatabase() != "" {
		return t.TargetDatabase()
	}
	var t Targeted
	if err != nil && errors.As(err, &t) && t.TargetDatabase() != "" {
		return t.TargetDatabase()
	}
	if t, ok := request.(Targeted); ok {
		return t.TargetDatabase()
	}
	return ""
}
