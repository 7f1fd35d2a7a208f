package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m4xw311/nima/config"
	"github.com/m4xw311/nima/docsearch"
	"github.com/m4xw311/nima/errors"
)

// Tool defines the interface for any action the agent can take.
type Tool interface {
	Name() string
	Description() string
	Parameters() []Parameter
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// Parameter describes one named argument of a tool.
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // string, number, integer, boolean or array
	Items       string `json:"items,omitempty"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Descriptor is the declared shape of a tool.
type Descriptor struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
}

func Describe(t Tool) Descriptor {
	return Descriptor{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()}
}

// Signature renders the descriptor as name(arg: type, [optional: type]).
func (d Descriptor) Signature() string {
	s := d.Name + "("
	for i, p := range d.Parameters {
		if i > 0 {
			s += ", "
		}
		typ := p.Type
		if p.Items != "" {
			typ = fmt.Sprintf("%s[%s]", p.Type, p.Items)
		}
		if p.Required {
			s += fmt.Sprintf("%s: %s", p.Name, typ)
		} else {
			s += fmt.Sprintf("[%s: %s]", p.Name, typ)
		}
	}
	return s + ")"
}

// ToolRegistry holds all available tools in registration order.
type ToolRegistry struct {
	tools map[string]Tool
	order []string
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Deps are the collaborators the physics tools need.
type Deps struct {
	Store *docsearch.Store
	// Plots are tried in order when a plot has no explicit save path.
	Plots []PlotSink
}

// NewPhysicsRegistry registers every physics tool enabled in cfg.
func NewPhysicsRegistry(cfg *config.Config, deps Deps) *ToolRegistry {
	r := NewToolRegistry()
	all := []Tool{
		&RelativisticEnergyTool{},
		&LorentzFactorTool{},
		&ParticlePropertiesTool{},
		&DecayProbabilityTool{},
		&BindingEnergyTool{},
		&GenerateEventsTool{},
		&VisualizeQuarksTool{fsAccess: &cfg.FilesystemAccess, sinks: deps.Plots},
	}
	if deps.Store != nil {
		all = append(all,
			&SearchKnowledgeBaseTool{store: deps.Store},
			&LoadDocumentsTool{store: deps.Store, fsAccess: &cfg.FilesystemAccess},
		)
	}
	for _, t := range all {
		if cfg.ToolEnabled(t.Name()) {
			r.Register(t)
		}
	}
	return r
}

// Register adds t, replacing any tool with the same name.
func (r *ToolRegistry) Register(t Tool) {
	if _, ok := r.tools[t.Name()]; !ok {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

func (r *ToolRegistry) GetTool(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns the tools in registration order.
func (r *ToolRegistry) List() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

func (r *ToolRegistry) Descriptors() []Descriptor {
	var out []Descriptor
	for _, t := range r.List() {
		out = append(out, Describe(t))
	}
	return out
}

// GetActiveTools returns the tools matching names. A name may be a glob
// such as "calculate_*"; a plain name must be registered.
func (r *ToolRegistry) GetActiveTools(names []string) ([]Tool, error) {
	seen := map[string]bool{}
	var active []Tool
	for _, pattern := range names {
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.New("invalid tool pattern '%s'", pattern)
		}
		matched := false
		for _, name := range r.order {
			if ok, _ := doublestar.Match(pattern, name); ok {
				matched = true
				if !seen[name] {
					seen[name] = true
					active = append(active, r.tools[name])
				}
			}
		}
		if !matched {
			return nil, errors.New("tool '%s' is not registered", pattern)
		}
	}
	return active, nil
}

// Names returns the registered tool names, sorted.
func (r *ToolRegistry) Names() []string {
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// isPathRestricted checks if a path matches any of the glob patterns.
func isPathRestricted(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.PathMatch(pattern, path)
		if err != nil {
			return false, fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}
