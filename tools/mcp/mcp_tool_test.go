package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/m4xw311/nima/config"
	"github.com/m4xw311/nima/mcpserver"
	"github.com/m4xw311/nima/tools"
	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func connectInMemory(t *testing.T) *MCPClient {
	t.Helper()
	ctx := context.Background()
	server := mcpserver.New(tools.NewPhysicsRegistry(config.Default(), tools.Deps{}), "test")
	serverTransport, clientTransport := mcpsdk.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverTransport)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { ss.Close() })

	client, err := Connect(ctx, "physics", clientTransport)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { client.Stop() })
	return client
}

func findTool(t *testing.T, c *MCPClient, name string) *MCPTool {
	t.Helper()
	for _, tool := range c.Tools() {
		if tool.Name() == name {
			return tool
		}
	}
	t.Fatalf("tool %s not discovered", name)
	return nil
}

func TestDiscoveredToolsKeepParameters(t *testing.T) {
	c := connectInMemory(t)
	tool := findTool(t, c, "calculate_binding_energy")
	params := tool.Parameters()
	if len(params) != 3 {
		t.Fatalf("expected 3 parameters, got %d", len(params))
	}
	// Parameters come back sorted by name.
	if params[0].Name != "isotope_mass_u" || params[0].Type != "number" || !params[0].Required {
		t.Fatalf("unexpected first parameter %+v", params[0])
	}

	viz := findTool(t, c, "visualize_quark_distributions")
	for _, p := range viz.Parameters() {
		if p.Name == "truth_params" && (p.Type != "array" || p.Items != "number") {
			t.Fatalf("array item type lost: %+v", p)
		}
	}
}

func TestExecuteRemoteTool(t *testing.T) {
	c := connectInMemory(t)
	out, err := findTool(t, c, "calculate_lorentz_factor").Execute(context.Background(), map[string]interface{}{
		"velocity_fraction": 0.6,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out != "1.25" {
		t.Fatalf("expected 1.25, got %s", out)
	}
}

func TestExecuteRemoteToolError(t *testing.T) {
	c := connectInMemory(t)
	_, err := findTool(t, c, "calculate_lorentz_factor").Execute(context.Background(), map[string]interface{}{
		"velocity_fraction": 2.0,
	})
	if err == nil || !strings.Contains(err.Error(), "Velocity must be less than speed of light") {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func TestRemoteToolsRegisterIntoRegistry(t *testing.T) {
	c := connectInMemory(t)
	registry := tools.NewToolRegistry()
	for _, tool := range c.Tools() {
		registry.Register(tool)
	}
	active, err := registry.GetActiveTools([]string{"calculate_*"})
	if err != nil {
		t.Fatalf("GetActiveTools: %v", err)
	}
	if len(active) != 4 {
		t.Fatalf("expected 4 remote calculators, got %d", len(active))
	}
}

func TestRegisterServersSkipsUnavailable(t *testing.T) {
	registry := tools.NewToolRegistry()
	clients := RegisterServers(context.Background(), registry, []config.MCPServer{
		{Name: "ghost", Command: "/nonexistent/mcp-server"},
	})
	if len(clients) != 0 || len(registry.List()) != 0 {
		t.Fatalf("unavailable server should register nothing")
	}
}

func TestSchemaParameters(t *testing.T) {
	s := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"b": {Types: []string{"null", "integer"}},
			"a": {Type: "string", Description: "first"},
		},
		Required: []string{"a"},
	}
	params := schemaParameters(s)
	if len(params) != 2 {
		t.Fatalf("expected 2 parameters, got %d", len(params))
	}
	if params[0].Name != "a" || !params[0].Required || params[0].Description != "first" {
		t.Fatalf("unexpected parameter %+v", params[0])
	}
	if params[1].Name != "b" || params[1].Type != "integer" || params[1].Required {
		t.Fatalf("unexpected parameter %+v", params[1])
	}
	if schemaParameters(nil) != nil {
		t.Fatalf("nil schema should have no parameters")
	}
}
