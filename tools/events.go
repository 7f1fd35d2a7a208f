package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/m4xw311/nima/config"
	"github.com/m4xw311/nima/errors"
	"github.com/m4xw311/nima/physics"
)

const defaultNumEvents = 10000

var truthParamsParam = Parameter{
	Name:        "truth_params",
	Type:        "array",
	Items:       "number",
	Description: "Optional list of 6 parameters [u_a, u_b, u_p, d_a, d_b, d_q]",
}

func paramsArg(args map[string]interface{}) (physics.Params, error) {
	v, err := optionalFloatsArg(args, "truth_params")
	if err != nil {
		return physics.Params{}, err
	}
	if v == nil {
		return physics.DefaultParams, nil
	}
	return physics.ParamsFromSlice(v)
}

func formatParams(p physics.Params) string {
	parts := make([]string, len(p))
	for i, v := range p {
		parts[i] = formatFloat(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// GenerateEventsTool samples events from the quark model cross sections.
type GenerateEventsTool struct{}

func (t *GenerateEventsTool) Name() string { return "generate_physics_events" }
func (t *GenerateEventsTool) Description() string {
	return "Generate particle physics events based on quark distribution models and report their statistics."
}
func (t *GenerateEventsTool) Parameters() []Parameter {
	return []Parameter{
		{Name: "num_events", Type: "integer", Description: "Number of events to generate (default 10000)"},
		truthParamsParam,
		{Name: "seed", Type: "integer", Description: "Random seed for reproducibility"},
	}
}

func (t *GenerateEventsTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	n, err := optionalIntArg(args, "num_events", defaultNumEvents)
	if err != nil {
		return "", err
	}
	params, err := paramsArg(args)
	if err != nil {
		return "", err
	}
	var seed *uint64
	if v, ok := args["seed"]; ok && v != nil {
		s, err := intArg(args, "seed")
		if err != nil {
			return "", err
		}
		u := uint64(s)
		seed = &u
	}

	ev, err := physics.GenerateEvents(n, params, seed)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`Generated %d physics events:

Sigma1 (4u + d) distribution:
  Mean: %.3f
  Std: %.3f

Sigma2 (4d + u) distribution:
  Mean: %.3f
  Std: %.3f

Truth parameters used: %s
`, n, ev.Stats1.Mean, ev.Stats1.Std, ev.Stats2.Mean, ev.Stats2.Std, formatParams(params)), nil
}

// PlotSink stores a rendered PNG and returns where it went. A sink that
// cannot take the plot right now returns an error and the next one is tried.
type PlotSink interface {
	SavePlot(data []byte) (string, error)
}

// DirSink saves plots into a directory under unique names.
type DirSink struct {
	Dir string
}

func (d DirSink) SavePlot(data []byte) (string, error) {
	if err := os.MkdirAll(d.Dir, 0755); err != nil {
		return "", errors.Wrapf(err, "could not create plots directory")
	}
	path := filepath.Join(d.Dir, fmt.Sprintf("quark_distributions_%s.png", uuid.NewString()[:8]))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.Wrapf(err, "could not save plot")
	}
	return path, nil
}

// VisualizeQuarksTool renders the quark distribution panels to a PNG.
type VisualizeQuarksTool struct {
	fsAccess *config.FilesystemAccess
	sinks    []PlotSink
}

func (t *VisualizeQuarksTool) Name() string { return "visualize_quark_distributions" }
func (t *VisualizeQuarksTool) Description() string {
	return "Create a 2x2 visualization of u and d quark distributions, their ratio, the cross sections and their ratio."
}
func (t *VisualizeQuarksTool) Parameters() []Parameter {
	return []Parameter{
		truthParamsParam,
		{Name: "save_path", Type: "string", Description: "Optional path to save the PNG figure"},
	}
}

func (t *VisualizeQuarksTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	params, err := paramsArg(args)
	if err != nil {
		return "", err
	}
	savePath, err := optionalStringArg(args, "save_path")
	if err != nil {
		return "", err
	}

	png, err := physics.RenderQuarkPlots(params)
	if err != nil {
		return "", err
	}

	if savePath != "" {
		if err := t.checkWritable(savePath); err != nil {
			return "", err
		}
		if dir := filepath.Dir(savePath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return "", errors.Wrapf(err, "failed to create directory for '%s'", savePath)
			}
		}
		if err := os.WriteFile(savePath, png, 0644); err != nil {
			return "", errors.Wrapf(err, "failed to write plot to '%s'", savePath)
		}
		return fmt.Sprintf("Visualization saved to %s", savePath), nil
	}

	desc := "Visualization created (4 subplots showing quark distributions, ratios, and cross-sections)"
	for _, sink := range t.sinks {
		path, err := sink.SavePlot(png)
		if err != nil {
			continue
		}
		return fmt.Sprintf("%s and saved to %s", desc, path), nil
	}
	return desc, nil
}

func (t *VisualizeQuarksTool) checkWritable(path string) error {
	if t.fsAccess == nil {
		return nil
	}
	hidden, err := isPathRestricted(path, t.fsAccess.Hidden)
	if err != nil {
		return err
	}
	if hidden {
		return errors.New("access denied: path '%s' is hidden", path)
	}
	readOnly, err := isPathRestricted(path, t.fsAccess.ReadOnly)
	if err != nil {
		return err
	}
	if readOnly {
		return errors.New("access denied: path '%s' is read-only", path)
	}
	return nil
}
