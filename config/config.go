package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/m4xw311/nima/errors"
	"gopkg.in/yaml.v3"
)

type FilesystemAccess struct {
	Hidden   []string `yaml:"hidden"`
	ReadOnly []string `yaml:"read_only"`
}

type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// Generation holds the sampling parameters sent with every model call.
type Generation struct {
	Temperature     float32 `yaml:"temperature"`
	TopP            float32 `yaml:"top_p"`
	TopK            int32   `yaml:"top_k"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`
	// SafetySettings maps a harm category (harassment, hate_speech,
	// sexually_explicit, dangerous_content) to a threshold (block_none,
	// block_only_high, block_medium_and_above, block_low_and_above).
	SafetySettings map[string]string `yaml:"safety_settings"`
}

type Retry struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
}

type MCP struct {
	Transport string `yaml:"transport"` // "stdio" or "sse"
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
}

type Web struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	LLMClient            string           `yaml:"llm"`
	Model                string           `yaml:"model"`
	APIKey               string           `yaml:"api_key"`
	Generation           Generation       `yaml:"generation"`
	Retry                Retry            `yaml:"retry"`
	PDFsDir              string           `yaml:"pdfs_dir"`
	PlotsDir             string           `yaml:"plots_dir"`
	ExperimentsDir       string           `yaml:"experiments_dir"`
	TrackExperiments     bool             `yaml:"track_experiments"`
	SessionsDir          string           `yaml:"sessions_dir"`
	MaxSteps             int              `yaml:"max_steps"`
	Verbose              bool             `yaml:"verbose"`
	Tools                []string         `yaml:"tools"`
	AdditionalMCPServers []MCPServer      `yaml:"additional_mcp_servers"`
	FilesystemAccess     FilesystemAccess `yaml:"filesystem_access"`
	MCP                  MCP              `yaml:"mcp"`
	Web                  Web              `yaml:"web"`
}

// Default returns the configuration used when no file or environment
// variable says otherwise.
func Default() *Config {
	return &Config{
		LLMClient: "gemini",
		Model:     "gemini-2.5-flash",
		Generation: Generation{
			Temperature:     0.3,
			TopP:            0.95,
			TopK:            40,
			MaxOutputTokens: 8192,
		},
		Retry: Retry{
			MaxRetries: 3,
			BaseDelay:  2 * time.Second,
		},
		PDFsDir:        "./pdfs",
		PlotsDir:       "./plots",
		ExperimentsDir: "./experiments",
		SessionsDir:    filepath.Join(".nima", "sessions"),
		MaxSteps:       10,
		Verbose:        true,
		FilesystemAccess: FilesystemAccess{
			Hidden: []string{".nima", ".nima/**"},
		},
		MCP: MCP{Transport: "stdio", Host: "0.0.0.0", Port: 8000},
		Web: Web{Addr: ":8501"},
	}
}

// LoadConfig loads configuration from the user's home directory and the current
// working directory, with the latter taking precedence. Environment variables
// are applied last.
func LoadConfig() (*Config, error) {
	cfg := Default()

	// Load user-level config first
	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, ".nima", "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	// Load project-level config, overriding user-level
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, ".nima", "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Fields present in the YAML replace what is already set.
	return yaml.Unmarshal(data, cfg)
}

// ApplyEnv overrides fields from environment variables looked up with getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("GOOGLE_API_KEY"); v != "" {
		c.APIKey = v
	} else if v := getenv("GEMINI_API_KEY"); v != "" && c.APIKey == "" {
		c.APIKey = v
	}
	if v := getenv("GEMINI_MODEL"); v != "" {
		c.Model = v
	}
	if v := getenv("PDFS_DIR"); v != "" {
		c.PDFsDir = v
	}
	if v := getenv("MAX_STEPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid MAX_STEPS %q", v)
		}
		c.MaxSteps = n
	}
	if v := getenv("TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return errors.Wrapf(err, "invalid TEMPERATURE %q", v)
		}
		c.Generation.Temperature = float32(f)
	}
	if v := getenv("VERBOSE"); v != "" {
		c.Verbose = strings.ToLower(v) == "true"
	}
	if v := getenv("MCP_TRANSPORT"); v != "" {
		c.MCP.Transport = strings.ToLower(v)
	}
	if v := getenv("MCP_HOST"); v != "" {
		c.MCP.Host = v
	}
	if v := getenv("MCP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid MCP_PORT %q", v)
		}
		c.MCP.Port = port
	}
	return nil
}

// ToolEnabled reports whether the named tool should be registered. An empty
// tool list enables everything.
func (c *Config) ToolEnabled(name string) bool {
	if len(c.Tools) == 0 {
		return true
	}
	for _, t := range c.Tools {
		if t == name {
			return true
		}
	}
	return false
}
