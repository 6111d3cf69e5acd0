// Package mcp exposes the dispatcher as MCP tools and the database schemas
// as filemaker:// resources.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aandersen2323/filemaker-mcp-server/internal/dispatch"
	"github.com/aandersen2323/filemaker-mcp-server/internal/toolerr"
	"github.com/aandersen2323/filemaker-mcp-server/pkg/audit"
	"github.com/aandersen2323/filemaker-mcp-server/pkg/kit"
)

const resourceScheme = "filemaker://"

type Options struct {
	Name    string
	Version string
	// Transport tags audit entries and request contexts ("stdio" or "http").
	Transport string
	// MaxRows is advertised as the default limit in tool schemas.
	MaxRows      int
	Audit        audit.Logger
	AuditResults bool
	Logger       *slog.Logger
}

// NewServer creates an MCPServer with every dispatcher tool and one schema
// resource per configured database.
func NewServer(d *dispatch.Dispatcher, opts Options) *server.MCPServer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	srv := server.NewMCPServer(
		opts.Name,
		opts.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, false),
	)

	for _, spec := range toolSpecs(d.Databases(), opts.MaxRows) {
		registerTool(srv, d, spec, opts)
	}
	for _, db := range d.Databases() {
		registerSchemaResource(srv, d, db, opts)
	}
	return srv
}

func registerTool(srv *server.MCPServer, d *dispatch.Dispatcher, spec toolSpec, opts Options) {
	var endpoint kit.Endpoint = func(ctx context.Context, request any) (any, error) {
		res := d.Dispatch(ctx, request.(dispatch.Invocation))
		if res.Failure != nil {
			return nil, res.Failure
		}
		return res, nil
	}
	if opts.Audit != nil {
		var aopts []audit.Option
		if opts.AuditResults {
			aopts = append(aopts, audit.WithResults())
		}
		endpoint = audit.Middleware(opts.Audit, spec.name, aopts...)(endpoint)
	}

	schema := map[string]any{
		"type":       "object",
		"properties": spec.properties,
	}
	if len(spec.required) > 0 {
		schema["required"] = spec.required
	}
	raw, _ := json.Marshal(schema)
	tool := mcp.NewToolWithRawSchema(spec.name, spec.description, raw)

	name := spec.name
	srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if kit.GetRequestID(ctx) == "" {
			ctx = kit.NewRequestContext(ctx, opts.Transport)
		}
		resp, err := endpoint(ctx, dispatch.Invocation{Name: name, Args: req.GetArguments()})
		if err != nil {
			return errorResult(err), nil
		}
		body, err := json.Marshal(resp)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("%s: encoding result: %v", name, err)), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	})
}

// errorResult renders a failure as {"errorCategory": ..., "message": ...}.
func errorResult(err error) *mcp.CallToolResult {
	var f *dispatch.Failure
	if !errors.As(err, &f) {
		f = &dispatch.Failure{Category: toolerr.CategoryDriver, Message: err.Error()}
	}
	body, _ := json.Marshal(f)
	return mcp.NewToolResultError(string(body))
}

func registerSchemaResource(srv *server.MCPServer, d *dispatch.Dispatcher, db string, opts Options) {
	resource := mcp.NewResource(
		resourceScheme+db,
		"FileMaker: "+db,
		mcp.WithResourceDescription("Tables and columns of the FileMaker database "+db),
		mcp.WithMIMEType("application/json"),
	)
	srv.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		uri := req.Params.URI
		name := strings.TrimPrefix(uri, resourceScheme)
		if kit.GetRequestID(ctx) == "" {
			ctx = kit.NewRequestContext(ctx, opts.Transport)
		}

		var body []byte
		schema, err := d.DescribeDatabase(ctx, name)
		if err != nil {
			opts.Logger.Error("reading resource", "uri", uri, "error", err)
			body, _ = json.Marshal(dispatch.Failure{
				Category: toolerr.CategoryOf(err),
				Message:  err.Error(),
			})
		} else {
			body, _ = json.Marshal(schema)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(body),
			},
		}, nil
	})
}
