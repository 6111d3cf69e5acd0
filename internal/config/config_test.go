package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, "odbc", cfg.FileMaker.Driver)
	assert.Equal(t, 100, cfg.Query.MaxRows)
	assert.Len(t, cfg.Databases, len(DefaultDatabases))
	assert.Equal(t, "Patients", cfg.Databases["Patients"])
}

func TestLoadDatabasesReplaceDefaults(t *testing.T) {
	path := writeConfig(t, `
[databases]
Patients = "PatientsCatalog"
Appointments = "Appointments"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"Appointments", "Patients"}, cfg.DatabaseNames())
	assert.Equal(t, "PatientsCatalog", cfg.Databases["Patients"])
}

func TestLoadClampsBatchSize(t *testing.T) {
	path := writeConfig(t, `
[query]
max_rows = 10
batch_size = 500
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Query.BatchSize)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FILEMAKER_DSN", "Filemaker")
	t.Setenv("FILEMAKER_USER", "frontdesk")
	t.Setenv("FILEMAKER_PASS", "secret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "Filemaker", cfg.FileMaker.DSN)
	assert.Equal(t, "frontdesk", cfg.FileMaker.User)
	assert.Equal(t, "secret", cfg.FileMaker.Password)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero max rows", "[query]\nmax_rows = 0\n"},
		{"zero batch", "[query]\nbatch_size = 0\n"},
		{"bad transport", "[server]\ntransport = \"quic\"\n"},
		{"empty dsn", "[filemaker]\ndsn = \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestTemplateWithoutDSN(t *testing.T) {
	path := writeConfig(t, `
[filemaker]
driver = "sqlite"
dsn = ""
connection_template = "file:{database}?mode=memory"
`)
	_, err := Load(path)
	assert.NoError(t, err)
}

func TestParseError(t *testing.T) {
	_, err := Load(writeConfig(t, "[query\n"))
	assert.ErrorContains(t, err, "parsing config")
}

func TestExampleConfigLoads(t *testing.T) {
	t.Setenv("FILEMAKER_DSN", "")
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	require.NoError(t, err)

	assert.Equal(t, []string{"Appointments", "Patients", "Transactions"}, cfg.DatabaseNames())
	assert.Equal(t, "FileMaker", cfg.FileMaker.DSN)
	assert.Equal(t, 1000, cfg.Query.MetadataMaxRows)
	assert.Equal(t, "examtype", cfg.Schema.Appointments.ExamType)
	assert.Equal(t, 10000, cfg.Report.MaxRows)
	assert.False(t, cfg.Audit.IncludeResults)
}
