package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/alexbrainman/odbc"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/mark3labs/mcp-go/server"
	_ "modernc.org/sqlite"

	"github.com/aandersen2323/filemaker-mcp-server/internal/auth"
	"github.com/aandersen2323/filemaker-mcp-server/internal/config"
	"github.com/aandersen2323/filemaker-mcp-server/internal/dispatch"
	"github.com/aandersen2323/filemaker-mcp-server/internal/executor"
	"github.com/aandersen2323/filemaker-mcp-server/internal/mcp"
	"github.com/aandersen2323/filemaker-mcp-server/internal/metrics"
	"github.com/aandersen2323/filemaker-mcp-server/internal/registry"
	"github.com/aandersen2323/filemaker-mcp-server/internal/report"
	"github.com/aandersen2323/filemaker-mcp-server/internal/statement"
	"github.com/aandersen2323/filemaker-mcp-server/pkg/audit"
	"github.com/aandersen2323/filemaker-mcp-server/pkg/kit"
	"github.com/aandersen2323/filemaker-mcp-server/pkg/trace"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	var err error
	switch os.Args[1] {
	case "serve":
		err = cmdServe(os.Args[2:])
	case "check":
		err = cmdCheck(os.Args[2:])
	case "report":
		err = cmdReport(os.Args[2:])
	case "token":
		err = cmdToken(os.Args[2:])
	case "version":
		fmt.Printf("filemaker-mcp-server %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`filemaker-mcp-server, MCP tools over FileMaker ODBC

Usage:
  filemaker-mcp-server serve  [--config config.toml] [--transport stdio|http] [--addr :8080]
  filemaker-mcp-server check  [--config config.toml] [--database Patients]
  filemaker-mcp-server report [--config config.toml] daily DATE | range FROM TO | transactions FROM TO
  filemaker-mcp-server token  [--config config.toml] CLIENT
  filemaker-mcp-server version
  filemaker-mcp-server help

Commands:
  serve     Serve the MCP tools over stdio or streamable HTTP
  check     Open one database and list its first tables
  report    Print appointment or transaction summaries as JSONL
  token     Mint a bearer token for the HTTP transport
  version   Print version
  help      Show this help`)
}

// app holds the wired core shared by the subcommands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	reg    *registry.Registry
	exec   *executor.Executor
	store  *sql.DB
	trace  *trace.Store
}

func newApp(cfg *config.Config) (*app, error) {
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}
	if cfg.Audit.Path != "" {
		db, err := audit.OpenStore(cfg.Audit.Path)
		if err != nil {
			return nil, fmt.Errorf("opening audit store: %w", err)
		}
		a.store = db
	}
	a.trace = trace.NewStore(a.store, logger)
	if err := a.trace.Init(); err != nil {
		a.close()
		return nil, fmt.Errorf("initializing trace store: %w", err)
	}

	a.reg = registry.New(registry.SQLDriver{Name: cfg.FileMaker.Driver}, registry.Options{
		DSN:        cfg.FileMaker.DSN,
		User:       cfg.FileMaker.User,
		Password:   cfg.FileMaker.Password,
		Template:   cfg.FileMaker.ConnectionTemplate,
		Databases:  cfg.Databases,
		LostStates: cfg.FileMaker.ConnectionLostStates,
	}, logger)
	a.exec = executor.New(a.reg, cfg.Query.BatchSize, a.trace, logger)
	return a, nil
}

func (a *app) close() {
	if a.reg != nil {
		a.reg.Close()
	}
	if a.trace != nil {
		a.trace.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

func (a *app) dispatcher() (*dispatch.Dispatcher, error) {
	dialect, err := statement.ParseDialect(a.cfg.FileMaker.Dialect)
	if err != nil {
		return nil, err
	}
	return dispatch.New(a.reg, a.exec, dispatch.Options{
		Dialect:         dialect,
		Schema:          a.cfg.Schema,
		MaxRows:         a.cfg.Query.MaxRows,
		MetadataMaxRows: a.cfg.Query.MetadataMaxRows,
		Logger:          a.logger,
	}), nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	// stdout carries the stdio protocol; logs always go to stderr.
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, error) {
	configPath := fs.String("config", os.Getenv("FILEMAKER_MCP_CONFIG"), "path to config.toml")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return config.Load(*configPath)
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	transport := fs.String("transport", "", "stdio or http (overrides config)")
	addr := fs.String("addr", "", "listen address for http (overrides config)")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	if *transport != "" {
		cfg.Server.Transport = *transport
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	d, err := a.dispatcher()
	if err != nil {
		return err
	}

	var auditLog audit.Logger
	if a.store != nil {
		l := audit.NewSQLiteLogger(a.store, a.logger)
		if err := l.Init(); err != nil {
			return fmt.Errorf("initializing audit log: %w", err)
		}
		defer l.Close()
		auditLog = l
	}

	srv := mcp.NewServer(d, mcp.Options{
		Name:         cfg.Server.Name,
		Version:      version,
		Transport:    cfg.Server.Transport,
		MaxRows:      cfg.Query.MaxRows,
		Audit:        auditLog,
		AuditResults: cfg.Audit.IncludeResults,
		Logger:       a.logger,
	})

	a.logger.Info("filemaker-mcp-server starting",
		"version", version,
		"transport", cfg.Server.Transport,
		"databases", cfg.DatabaseNames(),
		"max_rows", cfg.Query.MaxRows)

	if cfg.Server.Transport == "http" {
		return serveHTTP(cfg, a.logger, srv)
	}
	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr, a.logger)
	}
	return server.ServeStdio(srv)
}

func serveHTTP(cfg *config.Config, logger *slog.Logger, srv *server.MCPServer) error {
	au := auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiryMin)
	if !au.Enabled() {
		logger.Warn("auth disabled: no jwt_secret configured")
	}

	streamable := server.NewStreamableHTTPServer(srv,
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			ctx = kit.NewRequestContext(ctx, "http")
			return kit.WithUserID(ctx, kit.GetUserID(r.Context()))
		}),
	)

	mux := http.NewServeMux()
	mux.Handle("/mcp", au.Middleware(streamable))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","version":%q}`, version)
	})

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", cfg.Server.Addr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	logger.Info("metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server", "error", err)
	}
}

func cmdCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	database := fs.String("database", "Patients", "database to open")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	d, err := a.dispatcher()
	if err != nil {
		return err
	}
	res := d.Dispatch(context.Background(), dispatch.Invocation{
		Name: "list_tables",
		Args: dispatch.Args{"database": *database},
	})
	if !res.OK() {
		return res.Failure
	}
	fmt.Printf("connected to %s, %d tables\n", *database, res.RowCount)
	for i, row := range res.Rows {
		if i == 20 {
			fmt.Printf("  ... and %d more\n", res.RowCount-20)
			break
		}
		fmt.Printf("  %v\n", row[0])
	}
	return nil
}

func cmdReport(args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return errors.New("report: expected daily, range or transactions")
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	r := report.New(a.exec, cfg.Schema, cfg.Report.MaxRows)
	ctx := kit.NewRequestContext(context.Background(), "cli")

	var rec any
	switch {
	case rest[0] == "daily" && len(rest) == 2:
		rec, err = r.Daily(ctx, rest[1])
	case rest[0] == "range" && len(rest) == 3:
		rec, err = r.Range(ctx, rest[1], rest[2])
	case rest[0] == "transactions" && len(rest) == 3:
		rec, err = r.Transactions(ctx, rest[1], rest[2])
	default:
		return fmt.Errorf("report: bad arguments %q", rest)
	}
	if err != nil {
		return err
	}
	return report.WriteJSONL(os.Stdout, rec)
}

func cmdToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("token: expected exactly one client name")
	}
	tok, err := auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiryMin).GenerateToken(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
