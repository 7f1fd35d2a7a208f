// Package experiments saves the artifacts of agent runs into timestamped
// directories.
package experiments

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/m4xw311/nima/errors"
)

const (
	dirTimeLayout  = "2006-01-02_15-04-05"
	maxDescription = 50
	metadataFile   = "metadata.json"
)

// ErrNoExperiment is returned by SavePlot when no experiment is active.
var ErrNoExperiment = errors.New("no active experiment")

// Tracker owns at most one active experiment directory under a base
// directory. The Save methods do nothing while no experiment is active.
type Tracker struct {
	mu      sync.Mutex
	baseDir string
	current string
	now     func() time.Time
}

// NewTracker creates baseDir if needed.
func NewTracker(baseDir string) (*Tracker, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "could not create experiments directory")
	}
	return &Tracker{baseDir: baseDir, now: time.Now}, nil
}

// Start opens a new experiment directory named after the current time and
// the sanitized description, and writes its metadata.json.
func (t *Tracker) Start(description string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	stamp := now.Format(dirTimeLayout)
	name := stamp
	if description != "" {
		name = stamp + "_" + sanitize(description)
	}

	dir := filepath.Join(t.baseDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrapf(err, "could not create experiment directory")
	}
	meta := map[string]any{
		"id":          uuid.NewString(),
		"timestamp":   stamp,
		"description": description,
		"start_time":  now.Format(time.RFC3339),
	}
	if err := writeJSON(filepath.Join(dir, metadataFile), meta); err != nil {
		return "", err
	}
	t.current = dir
	return dir, nil
}

// Path returns the active experiment directory, or "".
func (t *Tracker) Path() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// SaveCode writes code under filename, generated_code.py if empty.
func (t *Tracker) SaveCode(code, filename string) error {
	if filename == "" {
		filename = "generated_code.py"
	}
	return t.write(filename, []byte(code))
}

// SaveCodes writes each block as code_block_NN.py, counting from 1.
func (t *Tracker) SaveCodes(codes []string) error {
	for i, code := range codes {
		if err := t.SaveCode(code, fmt.Sprintf("code_block_%02d.py", i+1)); err != nil {
			return err
		}
	}
	return nil
}

// SaveOutput writes text output under filename, output.txt if empty.
func (t *Tracker) SaveOutput(output, filename string) error {
	if filename == "" {
		filename = "output.txt"
	}
	return t.write(filename, []byte(output))
}

// SavePlot writes a PNG as plot_NN.png, numbered after the plots already
// saved, and returns its path.
func (t *Tracker) SavePlot(data []byte) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == "" {
		return "", ErrNoExperiment
	}
	existing, err := doublestar.Glob(os.DirFS(t.current), "plot_*.png")
	if err != nil {
		return "", errors.Wrapf(err, "could not list plots")
	}
	path := filepath.Join(t.current, fmt.Sprintf("plot_%02d.png", len(existing)+1))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.Wrapf(err, "could not save plot")
	}
	return path, nil
}

// SaveMetadata sets one key in metadata.json.
func (t *Tracker) SaveMetadata(key string, value any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == "" {
		return nil
	}
	return t.saveMetadata(key, value)
}

// Finish records the end time and closes the active experiment.
func (t *Tracker) Finish() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == "" {
		return nil
	}
	err := t.saveMetadata("end_time", t.now().Format(time.RFC3339))
	t.current = ""
	return err
}

// List returns the experiment directory names, most recent first.
func (t *Tracker) List() ([]string, error) {
	entries, err := os.ReadDir(t.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "could not list experiments")
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

func (t *Tracker) saveMetadata(key string, value any) error {
	path := filepath.Join(t.current, metadataFile)
	meta := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &meta); err != nil {
			return errors.Wrapf(err, "could not parse %s", path)
		}
	}
	meta[key] = value
	return writeJSON(path, meta)
}

func (t *Tracker) write(filename string, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == "" {
		return nil
	}
	if err := os.WriteFile(filepath.Join(t.current, filename), data, 0644); err != nil {
		return errors.Wrapf(err, "could not save %s", filename)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "could not encode %s", path)
	}
	return os.WriteFile(path, data, 0644)
}

// sanitize keeps letters, digits, '-' and '_', replaces everything else
// with '_' and cuts the result to 50 characters.
func sanitize(s string) string {
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n == maxDescription {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
		n++
	}
	return b.String()
}
