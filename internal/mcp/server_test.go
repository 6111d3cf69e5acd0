package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aandersen2323/filemaker-mcp-server/internal/config"
	"github.com/aandersen2323/filemaker-mcp-server/internal/dispatch"
	"github.com/aandersen2323/filemaker-mcp-server/internal/executor"
	"github.com/aandersen2323/filemaker-mcp-server/internal/registry"
	"github.com/aandersen2323/filemaker-mcp-server/internal/statement"
	"github.com/aandersen2323/filemaker-mcp-server/pkg/audit"
)

type memAudit struct {
	mu      sync.Mutex
	entries []*audit.Entry
}

func (m *memAudit) Log(_ context.Context, e *audit.Entry) error { m.LogAsync(e); return nil }
func (m *memAudit) LogAsync(e *audit.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}
func (m *memAudit) Close() error { return nil }

func newTestServer(t *testing.T) (*server.MCPServer, *memAudit) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "patients.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`
CREATE TABLE Patients ("patient id#" TEXT, "Last Name" TEXT, "First Name" TEXT);
INSERT INTO Patients VALUES ('P001', 'Smith', 'John');`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reg := registry.New(registry.SQLDriver{Name: "sqlite"}, registry.Options{
		Template:  "{database}",
		Databases: map[string]string{"Patients": path},
	}, nil)
	t.Cleanup(func() { reg.Close() })

	d := dispatch.New(reg, executor.New(reg, 10, nil, nil), dispatch.Options{
		Dialect: statement.DialectSQLite,
		Schema:  config.DefaultConfig().Schema,
		MaxRows: 100,
	})
	log := &memAudit{}
	srv := NewServer(d, Options{
		Name:      "filemaker-mcp-server",
		Version:   "test",
		Transport: "stdio",
		MaxRows:   100,
		Audit:     log,
	})
	return srv, log
}

var nextID int

// rpc sends one JSON-RPC request and decodes the "result" member into out.
func rpc(t *testing.T, srv *server.MCPServer, method string, params any, out any) {
	t.Helper()
	nextID++
	req, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      nextID,
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)

	resp := srv.HandleMessage(context.Background(), req)
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &envelope))
	require.Nil(t, envelope.Error, "rpc %s failed: %s", method, raw)
	require.NoError(t, json.Unmarshal(envelope.Result, out))
}

func initialize(t *testing.T, srv *server.MCPServer) {
	var out map[string]any
	rpc(t, srv, "initialize", map[string]any{
		"protocolVersion": "2025-03-26",
		"clientInfo":      map[string]any{"name": "test", "version": "1"},
		"capabilities":    map[string]any{},
	}, &out)
}

type callResult struct {
	IsError bool `json:"isError"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]any) callResult {
	t.Helper()
	var out callResult
	rpc(t, srv, "tools/call", map[string]any{"name": name, "arguments": args}, &out)
	require.Len(t, out.Content, 1)
	return out
}

func TestToolsListed(t *testing.T) {
	srv, _ := newTestServer(t)
	initialize(t, srv)

	var out struct {
		Tools []struct {
			Name        string         `json:"name"`
			InputSchema map[string]any `json:"inputSchema"`
		} `json:"tools"`
	}
	rpc(t, srv, "tools/list", map[string]any{}, &out)

	var names []string
	for _, tool := range out.Tools {
		names = append(names, tool.Name)
		assert.Equal(t, "object", tool.InputSchema["type"], tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"query", "list_tables", "describe_table", "insert_record", "update_record",
		"list_all_databases", "search_patients", "get_appointments", "get_transactions",
	}, names)
}

func TestCallToolSuccess(t *testing.T) {
	srv, log := newTestServer(t)
	initialize(t, srv)

	out := callTool(t, srv, "query", map[string]any{
		"database": "Patients",
		"sql":      `SELECT "Last Name", "First Name" FROM Patients`,
	})
	require.False(t, out.IsError, out.Content[0].Text)

	var res dispatch.Result
	require.NoError(t, json.Unmarshal([]byte(out.Content[0].Text), &res))
	assert.Equal(t, []string{"Last Name", "First Name"}, res.Columns)
	assert.Equal(t, [][]any{{"Smith", "John"}}, res.Rows)
	assert.Equal(t, 1, res.RowCount)

	require.Len(t, log.entries, 1)
	assert.Equal(t, "query", log.entries[0].Action)
	assert.Equal(t, "Patients", log.entries[0].Database)
	assert.Equal(t, "stdio", log.entries[0].Transport)
	assert.NotEmpty(t, log.entries[0].RequestID)
	assert.Equal(t, "success", log.entries[0].Status)
	assert.Empty(t, log.entries[0].Result)
}

func TestCallToolFailureShape(t *testing.T) {
	srv, log := newTestServer(t)
	initialize(t, srv)

	tests := map[string]struct {
		tool     string
		args     map[string]any
		category string
	}{
		"validation":    {"search_patients", map[string]any{}, "ValidationError"},
		"configuration": {"list_tables", map[string]any{"database": "Billing"}, "ConfigurationError"},
		"driver":        {"query", map[string]any{"database": "Patients", "sql": "SELECT x FROM Nope"}, "DriverError"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			out := callTool(t, srv, tt.tool, tt.args)
			require.True(t, out.IsError)

			var f dispatch.Failure
			require.NoError(t, json.Unmarshal([]byte(out.Content[0].Text), &f), out.Content[0].Text)
			assert.Equal(t, tt.category, string(f.Category))
			assert.NotEmpty(t, f.Message)
		})
	}

	require.Len(t, log.entries, len(tests))
	for _, e := range log.entries {
		assert.Equal(t, "error", e.Status)
		assert.NotEmpty(t, e.Category)
	}
}

func TestSchemaResource(t *testing.T) {
	srv, _ := newTestServer(t)
	initialize(t, srv)

	var list struct {
		Resources []struct {
			URI      string `json:"uri"`
			MIMEType string `json:"mimeType"`
		} `json:"resources"`
	}
	rpc(t, srv, "resources/list", map[string]any{}, &list)
	require.Len(t, list.Resources, 1)
	assert.Equal(t, "filemaker://Patients", list.Resources[0].URI)
	assert.Equal(t, "application/json", list.Resources[0].MIMEType)

	var read struct {
		Contents []struct {
			URI  string `json:"uri"`
			Text string `json:"text"`
		} `json:"contents"`
	}
	rpc(t, srv, "resources/read", map[string]any{"uri": "filemaker://Patients"}, &read)
	require.Len(t, read.Contents, 1)

	var schema dispatch.DatabaseSchema
	require.NoError(t, json.Unmarshal([]byte(read.Contents[0].Text), &schema))
	assert.Equal(t, "Patients", schema.Database)
	require.Len(t, schema.Tables, 1)
	assert.Equal(t, "Patients", schema.Tables[0].Name)
	assert.Len(t, schema.Tables[0].Columns, 3)
	assert.Equal(t, "patient id#", schema.Tables[0].Columns[0].Name)
}

func TestToolSchemasAdvertiseDatabases(t *testing.T) {
	specs := toolSpecs([]string{"Appointments", "Patients"}, 100)
	for _, s := range specs {
		if db, ok := s.properties["database"].(map[string]string); ok {
			assert.Contains(t, db["description"], "Appointments, Patients", s.name)
		}
	}
	assert.Len(t, specs, 9)
}

func TestSchemaResourceFailureShape(t *testing.T) {
	reg := registry.New(registry.SQLDriver{Name: "sqlite"}, registry.Options{
		Template:  "{database}",
		Databases: map[string]string{"Email": filepath.Join(t.TempDir(), "missing", "email.db")},
	}, nil)
	t.Cleanup(func() { reg.Close() })
	d := dispatch.New(reg, executor.New(reg, 10, nil, nil), dispatch.Options{
		Dialect: statement.DialectSQLite,
		Schema:  config.DefaultConfig().Schema,
		MaxRows: 100,
	})
	srv := NewServer(d, Options{Name: "filemaker-mcp-server", Version: "test", Transport: "stdio", MaxRows: 100})
	initialize(t, srv)

	var read struct {
		Contents []struct {
			Text string `json:"text"`
		} `json:"contents"`
	}
	rpc(t, srv, "resources/read", map[string]any{"uri": "filemaker://Email"}, &read)
	require.Len(t, read.Contents, 1)

	var f dispatch.Failure
	require.NoError(t, json.Unmarshal([]byte(read.Contents[0].Text), &f))
	assert.Equal(t, "ConnectionError", string(f.Category))
	assert.NotEmpty(t, f.Message)
}
