// Package mcpserver exposes the physics tools over the Model Context
// Protocol, on stdio or as an SSE endpoint.
package mcpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/m4xw311/nima/config"
	"github.com/m4xw311/nima/errors"
	"github.com/m4xw311/nima/tools"
	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverName = "mcp-nima"

// New builds a server that serves every tool of registry.
func New(registry *tools.ToolRegistry, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil)
	for _, t := range registry.List() {
		d := tools.Describe(t)
		server.AddTool(&mcp.Tool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: InputSchema(d),
		}, handler(t))
	}
	return server
}

func handler(t tools.Tool) mcp.ToolHandler {
	return func(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[map[string]any]) (*mcp.CallToolResultFor[any], error) {
		args := params.Arguments
		if args == nil {
			args = map[string]any{}
		}
		out, err := t.Execute(ctx, args)
		if err != nil {
			return &mcp.CallToolResultFor[any]{
				Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Error executing tool '%s': %v", t.Name(), err)}},
				IsError: true,
			}, nil
		}
		return &mcp.CallToolResultFor[any]{
			Content: []mcp.Content{&mcp.TextContent{Text: out}},
		}, nil
	}
}

// InputSchema converts a tool descriptor to a JSON object schema.
func InputSchema(d tools.Descriptor) *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(d.Parameters)),
	}
	for _, p := range d.Parameters {
		prop := &jsonschema.Schema{Type: p.Type, Description: p.Description}
		if p.Items != "" {
			prop.Items = &jsonschema.Schema{Type: p.Items}
		}
		s.Properties[p.Name] = prop
		if p.Required {
			s.Required = append(s.Required, p.Name)
		}
	}
	return s
}

// Run serves until ctx is cancelled or the transport closes.
func Run(ctx context.Context, server *mcp.Server, cfg config.MCP) error {
	switch cfg.Transport {
	case "", "stdio":
		// stdout carries the protocol.
		fmt.Fprintln(os.Stderr, "Starting MCP-NIMA server in STDIO mode...")
		return server.Run(ctx, mcp.NewStdioTransport())
	case "sse":
		return runSSE(ctx, server, cfg)
	default:
		return errors.New("unknown MCP transport '%s' (want stdio or sse)", cfg.Transport)
	}
}

func runSSE(ctx context.Context, server *mcp.Server, cfg config.MCP) error {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mux := http.NewServeMux()
	mux.Handle("/sse", mcp.NewSSEHandler(func(*http.Request) *mcp.Server { return server }))

	httpServer := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	fmt.Println("Starting MCP-NIMA server in SSE mode...")
	fmt.Printf("Server listening on http://%s\n", addr)
	fmt.Printf("SSE endpoint: http://%s/sse\n", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrapf(err, "SSE server on %s failed", addr)
	}
	return nil
}
