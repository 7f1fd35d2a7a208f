package mcp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/m4xw311/nima/config"
	"github.com/m4xw311/nima/errors"
	"github.com/m4xw311/nima/tools"
	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPClient manages the connection to a single MCP server.
type MCPClient struct {
	Name  string
	cmd   *exec.Cmd
	conn  *mcpsdk.ClientSession
	tools []*MCPTool
}

// NewMCPClient starts the MCP server subprocess and initializes the client.
func NewMCPClient(ctx context.Context, name, command string, args []string) (*MCPClient, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr
	client, err := Connect(ctx, name, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		return nil, err
	}
	client.cmd = cmd
	return client, nil
}

// Connect opens a session over transport and discovers the server's tools.
func Connect(ctx context.Context, name string, transport mcpsdk.Transport) (*MCPClient, error) {
	mcpClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "nima", Version: "v1.0.0"}, nil)
	conn, err := mcpClient.Connect(ctx, transport)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", name)
	}
	client := &MCPClient{Name: name, conn: conn}

	params := &mcpsdk.ListToolsParams{}
	for {
		list, err := conn.ListTools(ctx, params)
		if err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", name)
		}
		for _, t := range list.Tools {
			client.tools = append(client.tools, &MCPTool{
				toolName:    t.Name,
				description: t.Description,
				parameters:  schemaParameters(t.InputSchema),
				client:      client,
			})
		}
		if list.NextCursor == "" {
			break
		}
		params.Cursor = list.NextCursor
	}

	fmt.Printf("INFO: Initialized MCP client for '%s' with %d tools.\n", name, len(client.tools))
	return client, nil
}

// Tools returns the tools discovered on the server.
func (c *MCPClient) Tools() []*MCPTool {
	return c.tools
}

// Stop closes the session and terminates the server subprocess, if any.
func (c *MCPClient) Stop() error {
	if c.conn != nil {
		c.conn.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		fmt.Printf("INFO: Terminating MCP server '%s'\n", c.Name)
		return c.cmd.Process.Kill()
	}
	return nil
}

// RegisterServers starts every configured server and registers its tools
// under their own names. Servers that fail to start are reported and
// skipped. The returned clients must be stopped by the caller.
func RegisterServers(ctx context.Context, registry *tools.ToolRegistry, servers []config.MCPServer) []*MCPClient {
	var clients []*MCPClient
	for _, s := range servers {
		c, err := NewMCPClient(ctx, s.Name, s.Command, s.Args)
		if err != nil {
			fmt.Printf("Warning: MCP server '%s' not available: %v\n", s.Name, err)
			continue
		}
		for _, t := range c.Tools() {
			registry.Register(t)
		}
		clients = append(clients, c)
	}
	return clients
}

// MCPTool is a tool served by an external MCP server. It satisfies
// tools.Tool.
type MCPTool struct {
	toolName    string
	description string
	parameters  []tools.Parameter
	client      *MCPClient
}

func (t *MCPTool) Name() string { return t.toolName }

func (t *MCPTool) Description() string { return t.description }

func (t *MCPTool) Parameters() []tools.Parameter { return t.parameters }

// Execute calls the tool on the server and joins its text content. A
// result flagged as an error is returned as one.
func (t *MCPTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	result, err := t.client.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.toolName,
		Arguments: args,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to call tool '%s'", t.Name())
	}
	var b strings.Builder
	for _, c := range result.Content {
		if text, ok := c.(*mcpsdk.TextContent); ok {
			b.WriteString(text.Text)
		}
	}
	if result.IsError {
		return "", errors.New("tool '%s' failed: %s", t.Name(), b.String())
	}
	return b.String(), nil
}

// schemaParameters flattens the top level properties of an input schema.
func schemaParameters(s *jsonschema.Schema) []tools.Parameter {
	if s == nil {
		return nil
	}
	required := map[string]bool{}
	for _, name := range s.Required {
		required[name] = true
	}
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]tools.Parameter, 0, len(names))
	for _, name := range names {
		prop := s.Properties[name]
		p := tools.Parameter{Name: name, Required: required[name], Type: "string"}
		if prop != nil {
			p.Description = prop.Description
			p.Type = schemaType(prop)
			if prop.Items != nil {
				p.Items = schemaType(prop.Items)
			}
		}
		params = append(params, p)
	}
	return params
}

func schemaType(s *jsonschema.Schema) string {
	if s.Type != "" {
		return s.Type
	}
	for _, t := range s.Types {
		if t != "null" {
			return t
		}
	}
	return "string"
}
