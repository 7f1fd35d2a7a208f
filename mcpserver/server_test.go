package mcpserver

import (
	"context"
	"strings"
	"testing"

	"github.com/m4xw311/nima/config"
	"github.com/m4xw311/nima/tools"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	registry := tools.NewPhysicsRegistry(config.Default(), tools.Deps{})
	server := New(registry, "test")

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverTransport)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	cs, err := client.Connect(ctx, clientTransport)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs
}

func TestInputSchema(t *testing.T) {
	d := tools.Descriptor{
		Name: "visualize",
		Parameters: []tools.Parameter{
			{Name: "truth_params", Type: "array", Items: "number"},
			{Name: "mass_MeV", Type: "number", Description: "mass", Required: true},
		},
	}
	s := InputSchema(d)
	assert.Equal(t, "object", s.Type)
	assert.Equal(t, []string{"mass_MeV"}, s.Required)
	require.Contains(t, s.Properties, "truth_params")
	assert.Equal(t, "array", s.Properties["truth_params"].Type)
	require.NotNil(t, s.Properties["truth_params"].Items)
	assert.Equal(t, "number", s.Properties["truth_params"].Items.Type)
	assert.Equal(t, "mass", s.Properties["mass_MeV"].Description)
}

func TestListTools(t *testing.T) {
	cs := connect(t)
	list, err := cs.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)

	var names []string
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}
	assert.Contains(t, names, "calculate_lorentz_factor")
	assert.Contains(t, names, "generate_physics_events")
	assert.NotContains(t, names, "search_knowledge_base")
}

func TestCallTool(t *testing.T) {
	cs := connect(t)
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "calculate_relativistic_energy",
		Arguments: map[string]any{"mass_MeV": 3.0, "momentum_MeV": 4.0},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	assert.Equal(t, "5", res.Content[0].(*mcp.TextContent).Text)
}

func TestCallToolErrorIsFlagged(t *testing.T) {
	cs := connect(t)
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "calculate_lorentz_factor",
		Arguments: map[string]any{"velocity_fraction": 1.5},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	text := res.Content[0].(*mcp.TextContent).Text
	assert.True(t, strings.HasPrefix(text, "Error executing tool 'calculate_lorentz_factor'"), text)
	assert.Contains(t, text, "Velocity must be less than speed of light")
}

func TestRunRejectsUnknownTransport(t *testing.T) {
	server := New(tools.NewToolRegistry(), "test")
	err := Run(context.Background(), server, config.MCP{Transport: "carrier-pigeon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}
