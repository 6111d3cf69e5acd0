// Package registry owns the single session kept per logical FileMaker database.
//
// Sessions are opened lazily on first Acquire and kept until Reset or Close.
// The registry never pings proactively: callers that see a connection-lost
// error call Reset and acquire again.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/aandersen2323/filemaker-mcp-server/internal/toolerr"
)

// Options is the process-wide, read-only connection configuration.
type Options struct {
	DSN      string
	User     string
	Password string
	// Template overrides the ODBC connection string. It may reference
	// {dsn}, {database}, {user} and {password}.
	Template string
	// Databases maps logical names to the catalog qualifier the driver expects.
	Databases map[string]string
	// LostStates are SQLSTATE values that mark a session as unusable.
	LostStates []string
}

type Registry struct {
	driver     Driver
	opts       Options
	lostStates map[string]bool
	logger     *slog.Logger

	mu       sync.Mutex
	sessions map[string]Session
}

func New(driver Driver, opts Options, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	lost := make(map[string]bool, len(opts.LostStates))
	for _, s := range opts.LostStates {
		lost[strings.ToUpper(s)] = true
	}
	return &Registry{
		driver:     driver,
		opts:       opts,
		lostStates: lost,
		logger:     logger,
		sessions:   make(map[string]Session),
	}
}

// Has reports whether name is one of the configured logical databases.
func (r *Registry) Has(name string) bool {
	_, ok := r.opts.Databases[name]
	return ok
}

// Names returns the configured logical database names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.opts.Databases))
	for n := range r.opts.Databases {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Acquire returns the open session for name, opening it if needed.
func (r *Registry) Acquire(ctx context.Context, name string) (Session, error) {
	catalog, ok := r.opts.Databases[name]
	if !ok {
		return nil, toolerr.Configuration("acquire", toolerr.ErrUnknownDatabase, "%q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[name]; ok {
		return s, nil
	}

	connStr, err := r.connString(catalog)
	if err != nil {
		return nil, err
	}
	s, err := r.driver.Open(ctx, connStr)
	if err != nil {
		r.logger.Error("connect failed", "database", name, "error", err)
		return nil, toolerr.Connection("connect "+name, err)
	}
	r.sessions[name] = s
	r.logger.Info("connected", "database", name, "catalog", catalog)
	return s, nil
}

// Reset closes and forgets the session for name. The next Acquire reconnects.
func (r *Registry) Reset(name string) error {
	if !r.Has(name) {
		return toolerr.Configuration("reset", toolerr.ErrUnknownDatabase, "%q", name)
	}
	r.mu.Lock()
	s, ok := r.sessions[name]
	delete(r.sessions, name)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	r.logger.Info("connection reset", "database", name)
	if err := s.Close(); err != nil {
		// A dead session often fails to close cleanly; it is already forgotten.
		r.logger.Debug("closing stale session", "database", name, "error", err)
	}
	return nil
}

// IsOpen reports whether a session is currently held for name.
func (r *Registry) IsOpen(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[name]
	return ok
}

// Close closes every open session.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, s := range r.sessions {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing %s: %w", name, err)
		}
		delete(r.sessions, name)
	}
	return firstErr
}

func (r *Registry) connString(catalog string) (string, error) {
	if r.opts.Template != "" {
		if strings.Contains(r.opts.Template, "{dsn}") && r.opts.DSN == "" {
			return "", toolerr.Configuration("acquire", nil, "no DSN configured")
		}
		return strings.NewReplacer(
			"{dsn}", r.opts.DSN,
			"{database}", catalog,
			"{user}", r.opts.User,
			"{password}", r.opts.Password,
		).Replace(r.opts.Template), nil
	}
	if r.opts.DSN == "" {
		return "", toolerr.Configuration("acquire", nil, "no DSN configured")
	}
	// The SequeLink driver selects the hosted file through ServerDataSource.
	parts := []string{"DSN=" + r.opts.DSN, "ServerDataSource=" + catalog}
	if r.opts.User != "" {
		parts = append(parts, "UID="+r.opts.User)
	}
	if r.opts.Password != "" {
		parts = append(parts, "PWD="+r.opts.Password)
	}
	return strings.Join(parts, ";"), nil
}
