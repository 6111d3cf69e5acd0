package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	FileMaker FileMakerConfig   `toml:"filemaker"`
	Databases map[string]string `toml:"databases"`
	Query     QueryConfig       `toml:"query"`
	Schema    SchemaConfig      `toml:"schema"`
	Server    ServerConfig      `toml:"server"`
	Auth      AuthConfig        `toml:"auth"`
	Audit     AuditConfig       `toml:"audit"`
	Metrics   MetricsConfig     `toml:"metrics"`
	Logging   LoggingConfig     `toml:"logging"`
	Report    ReportConfig      `toml:"report"`
}

// FileMakerConfig describes how sessions are opened through the driver.
type FileMakerConfig struct {
	// Driver is the database/sql driver name: "odbc" for FileMaker,
	// "postgres" or "sqlite" for a mirror read with the matching dialect.
	Driver               string   `toml:"driver"`
	DSN                  string   `toml:"dsn"`
	User                 string   `toml:"user"`
	Password             string   `toml:"password"`
	ConnectionTemplate   string   `toml:"connection_template"`
	Dialect              string   `toml:"dialect"`
	ConnectionLostStates []string `toml:"connection_lost_states"`
}

type QueryConfig struct {
	MaxRows   int `toml:"max_rows"`
	BatchSize int `toml:"batch_size"`
	// MetadataMaxRows caps list_tables, describe_table and schema reads.
	MetadataMaxRows int `toml:"metadata_max_rows"`
}

type SchemaConfig struct {
	Patients     PatientsSchema     `toml:"patients"`
	Appointments AppointmentsSchema `toml:"appointments"`
	Transactions TransactionsSchema `toml:"transactions"`
}

type PatientsSchema struct {
	Database  string   `toml:"database"`
	Table     string   `toml:"table"`
	LastName  string   `toml:"last_name"`
	FirstName string   `toml:"first_name"`
	PatientID string   `toml:"patient_id"`
	Columns   []string `toml:"columns"`
}

type AppointmentsSchema struct {
	Database  string `toml:"database"`
	Table     string `toml:"table"`
	Date      string `toml:"date"`
	Time      string `toml:"time"`
	PatientID string `toml:"patient_id"`
	Doctor    string `toml:"doctor"`
	ExamType  string `toml:"exam_type"`
}

type TransactionsSchema struct {
	Database  string `toml:"database"`
	Table     string `toml:"table"`
	Date      string `toml:"date"`
	PatientID string `toml:"patient_id"`
}

type ServerConfig struct {
	Name      string `toml:"name"`
	Transport string `toml:"transport"`
	Addr      string `toml:"addr"`
}

type AuthConfig struct {
	JWTSecret      string `toml:"jwt_secret"`
	TokenExpiryMin int    `toml:"token_expiry_min"`
}

type AuditConfig struct {
	Path           string `toml:"path"`
	IncludeResults bool   `toml:"include_results"`
}

type MetricsConfig struct {
	Addr string `toml:"addr"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ReportConfig struct {
	MaxRows int `toml:"max_rows"`
}

// DefaultDatabases are the FileMaker files served by the practice's host.
var DefaultDatabases = []string{
	"Appointments",
	"CLOrders",
	"Dispenses",
	"Email",
	"Lookups",
	"Open",
	"OpenAdmin",
	"OpenMngr",
	"Patients",
	"ProdPrices",
	"Timecards",
	"Transactions",
}

func DefaultConfig() *Config {
	dbs := make(map[string]string, len(DefaultDatabases))
	for _, name := range DefaultDatabases {
		dbs[name] = name
	}
	return &Config{
		FileMaker: FileMakerConfig{
			Driver:               "odbc",
			DSN:                  "FileMaker",
			Dialect:              "filemaker",
			ConnectionLostStates: []string{"08001", "08003", "08007", "08S01", "HYT01"},
		},
		Databases: dbs,
		Query: QueryConfig{
			MaxRows:         100,
			BatchSize:       50,
			MetadataMaxRows: 1000,
		},
		Schema: SchemaConfig{
			Patients: PatientsSchema{
				Database:  "Patients",
				Table:     "Patients",
				LastName:  "Last Name",
				FirstName: "First Name",
				PatientID: "patient id#",
				Columns: []string{
					"Last Name", "First Name", "Middle Initial",
					"Street Address", "City", "State", "Zip",
					"Home Phone", "Work Phone", "birth date",
				},
			},
			Appointments: AppointmentsSchema{
				Database:  "Appointments",
				Table:     "Appointments",
				Date:      "dateappt",
				Time:      "timeappt",
				PatientID: "patient id#",
				Doctor:    "doctor",
				ExamType:  "examtype",
			},
			Transactions: TransactionsSchema{
				Database:  "Transactions",
				Table:     "Transactions",
				Date:      "trans date",
				PatientID: "patient id#",
			},
		},
		Server: ServerConfig{
			Name:      "filemaker-mcp-server",
			Transport: "stdio",
			Addr:      ":8080",
		},
		Auth: AuthConfig{
			TokenExpiryMin: 1440, // 24h
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Report: ReportConfig{
			MaxRows: 10000,
		},
	}
}

// Load reads the TOML file at path over the defaults, then applies the
// FILEMAKER_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			// A [databases] table replaces the default set instead of merging into it.
			defaults := cfg.Databases
			cfg.Databases = nil
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
			if cfg.Databases == nil {
				cfg.Databases = defaults
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FILEMAKER_DSN"); v != "" {
		c.FileMaker.DSN = v
	}
	if v := os.Getenv("FILEMAKER_USER"); v != "" {
		c.FileMaker.User = v
	}
	if v := os.Getenv("FILEMAKER_PASS"); v != "" {
		c.FileMaker.Password = v
	}
	if v := os.Getenv("FILEMAKER_MCP_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
}

// Validate checks the settings the core depends on. The batch size is
// clamped to max_rows rather than rejected.
func (c *Config) Validate() error {
	if len(c.Databases) == 0 {
		return fmt.Errorf("config: no databases configured")
	}
	for name, catalog := range c.Databases {
		if strings.TrimSpace(name) == "" || strings.TrimSpace(catalog) == "" {
			return fmt.Errorf("config: database %q has an empty name or catalog", name)
		}
	}
	if c.Query.MaxRows < 1 {
		return fmt.Errorf("config: query.max_rows must be positive, got %d", c.Query.MaxRows)
	}
	if c.Query.BatchSize < 1 {
		return fmt.Errorf("config: query.batch_size must be positive, got %d", c.Query.BatchSize)
	}
	if c.Query.BatchSize > c.Query.MaxRows {
		c.Query.BatchSize = c.Query.MaxRows
	}
	if c.Query.MetadataMaxRows < 1 {
		c.Query.MetadataMaxRows = c.Query.MaxRows
	}
	if c.FileMaker.Driver == "" {
		return fmt.Errorf("config: filemaker.driver is required")
	}
	if c.FileMaker.ConnectionTemplate == "" || strings.Contains(c.FileMaker.ConnectionTemplate, "{dsn}") {
		if c.FileMaker.DSN == "" {
			return fmt.Errorf("config: filemaker.dsn is required")
		}
	}
	switch c.Server.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("config: server.transport must be stdio or http, got %q", c.Server.Transport)
	}
	if c.Report.MaxRows < 1 {
		c.Report.MaxRows = c.Query.MaxRows
	}
	return nil
}

// DatabaseNames returns the configured logical database names in sorted order.
func (c *Config) DatabaseNames() []string {
	names := make([]string, 0, len(c.Databases))
	for name := range c.Databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
