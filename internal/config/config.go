// Package config loads and validates the deskhand YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultAgentID is the agent used when no --agent flag is given.
	DefaultAgentID = "default"

	keyringService = "deskhand"
)

// Config is the root configuration, loaded from ~/.deskhand/config.yaml.
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Agent    AgentConfig    `yaml:"agent"`
	Display  DisplayConfig  `yaml:"display"`
	Shell    ShellConfig    `yaml:"shell"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Store    StoreConfig    `yaml:"store"`
}

// ProviderConfig selects and authenticates the model client.
type ProviderConfig struct {
	Name    string `yaml:"name"`     // "openai" (any OpenAI-compatible endpoint)
	APIKey  string `yaml:"api_key"`  // empty = resolve from env / keyring
	APIBase string `yaml:"api_base"` // empty = provider default
	Model   string `yaml:"model"`
	// Requests per minute shared across all concurrent runs. 0 disables.
	RPM int `yaml:"rpm"`
	// Max retries for transient transport failures before the run aborts.
	MaxRetries int `yaml:"max_retries"`
}

// AgentConfig bounds and tunes the agent loop.
type AgentConfig struct {
	// MaxSteps is the per-run cycle budget. Exceeding it aborts the run.
	MaxSteps int `yaml:"max_steps"`
	// RetryFailedActions re-dispatches a failed action up to N times before
	// surfacing the failure to the model. 0 = always surface as-is.
	RetryFailedActions int `yaml:"retry_failed_actions"`
	// SystemPrompt overrides the built-in system prompt when set.
	SystemPrompt string `yaml:"system_prompt"`
	// Pruning controls transcript trimming on long runs.
	Pruning PruningConfig `yaml:"pruning"`
}

// PruningConfig controls context pruning of old tool results.
type PruningConfig struct {
	Disabled           bool    `yaml:"disabled"`
	KeepLastAssistants int     `yaml:"keep_last_assistants"`
	ContextWindowChars int     `yaml:"context_window_chars"`
	SoftTrimRatio      float64 `yaml:"soft_trim_ratio"`
	HardClearRatio     float64 `yaml:"hard_clear_ratio"`
	KeepLastImages     int     `yaml:"keep_last_images"`
}

// DisplayConfig configures screen capture and input injection.
type DisplayConfig struct {
	// CaptureCommand captures the screen to the PNG file appended as the
	// last argument, e.g. "scrot -z" or "import -window root".
	CaptureCommand string `yaml:"capture_command"`
	// InputBinary is the xdotool-compatible binary used for injection.
	InputBinary string `yaml:"input_binary"`
	// Number of the X display to target, -1 = current.
	DisplayNumber int `yaml:"display_number"`
	// TargetWidth/TargetHeight override the automatic scaling target.
	TargetWidth  int `yaml:"target_width"`
	TargetHeight int `yaml:"target_height"`
	// ScreenshotDelayMs is the pause before a post-action screenshot.
	ScreenshotDelayMs int `yaml:"screenshot_delay_ms"`
}

// ShellConfig configures the persistent command session.
type ShellConfig struct {
	// Command is the shell command line, parsed with shellwords.
	Command string `yaml:"command"`
	// TimeoutSec bounds a single command. Default 120.
	TimeoutSec int `yaml:"timeout_sec"`
	// KillOnTimeout restarts the shell after a timeout instead of leaving
	// the command running.
	KillOnTimeout bool `yaml:"kill_on_timeout"`
	// OutputMaxChars bounds captured output before it enters the transcript.
	OutputMaxChars int `yaml:"output_max_chars"`
}

// GatewayConfig configures the WebSocket event stream.
type GatewayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"` // host:port
	RPM     int    `yaml:"rpm"`    // per-client connect rate limit
}

// TracingConfig configures the span collector.
type TracingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"` // empty = store-only
}

// StoreConfig configures run persistence.
type StoreConfig struct {
	Path string `yaml:"path"` // sqlite file, empty = ~/.deskhand/runs.db
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(baseDir(), "config.yaml")
}

func baseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".deskhand"
	}
	return filepath.Join(home, ".deskhand")
}

// Load reads the config file, applies defaults and validates.
// A missing file yields the pure-default config.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Provider.Name == "" {
		c.Provider.Name = "openai"
	}
	if c.Provider.Model == "" {
		c.Provider.Model = "gpt-4o"
	}
	if c.Provider.MaxRetries == 0 {
		c.Provider.MaxRetries = 3
	}
	if c.Agent.MaxSteps == 0 {
		c.Agent.MaxSteps = 50
	}
	if c.Agent.Pruning.KeepLastAssistants == 0 {
		c.Agent.Pruning.KeepLastAssistants = 3
	}
	if c.Agent.Pruning.ContextWindowChars == 0 {
		c.Agent.Pruning.ContextWindowChars = 400_000
	}
	if c.Agent.Pruning.SoftTrimRatio == 0 {
		c.Agent.Pruning.SoftTrimRatio = 0.3
	}
	if c.Agent.Pruning.HardClearRatio == 0 {
		c.Agent.Pruning.HardClearRatio = 0.5
	}
	if c.Agent.Pruning.KeepLastImages == 0 {
		c.Agent.Pruning.KeepLastImages = 2
	}
	if c.Display.CaptureCommand == "" {
		c.Display.CaptureCommand = "scrot -z"
	}
	if c.Display.InputBinary == "" {
		c.Display.InputBinary = "xdotool"
	}
	if c.Display.DisplayNumber == 0 {
		c.Display.DisplayNumber = -1
	}
	if c.Display.ScreenshotDelayMs == 0 {
		c.Display.ScreenshotDelayMs = 2000
	}
	if c.Shell.Command == "" {
		c.Shell.Command = "/bin/bash"
	}
	if c.Shell.TimeoutSec == 0 {
		c.Shell.TimeoutSec = 120
	}
	if c.Shell.OutputMaxChars == 0 {
		c.Shell.OutputMaxChars = 50_000
	}
	if c.Gateway.Listen == "" {
		c.Gateway.Listen = "127.0.0.1:7478"
	}
	if c.Gateway.RPM == 0 {
		c.Gateway.RPM = 60
	}
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(baseDir(), "runs.db")
	}
}

func (c *Config) validate() error {
	if c.Agent.MaxSteps < 1 {
		return fmt.Errorf("config: agent.max_steps must be positive, got %d", c.Agent.MaxSteps)
	}
	if c.Shell.TimeoutSec < 1 {
		return fmt.Errorf("config: shell.timeout_sec must be positive, got %d", c.Shell.TimeoutSec)
	}
	if c.Agent.RetryFailedActions < 0 {
		return fmt.Errorf("config: agent.retry_failed_actions must not be negative")
	}
	if (c.Display.TargetWidth == 0) != (c.Display.TargetHeight == 0) {
		return fmt.Errorf("config: display.target_width and display.target_height must be set together")
	}
	if c.Provider.Name != "openai" {
		return fmt.Errorf("config: unknown provider %q", c.Provider.Name)
	}
	return nil
}

// ResolveAPIKey returns the model API key, trying in order: the config
// value, the DESKHAND_API_KEY / OPENAI_API_KEY environment variables, and
// the OS keyring entry for the provider name.
func (c *Config) ResolveAPIKey() (string, error) {
	if c.Provider.APIKey != "" {
		return c.Provider.APIKey, nil
	}
	for _, env := range []string{"DESKHAND_API_KEY", "OPENAI_API_KEY"} {
		if v := os.Getenv(env); v != "" {
			return v, nil
		}
	}
	v, err := keyring.Get(keyringService, c.Provider.Name)
	if err != nil {
		return "", fmt.Errorf("no API key: set provider.api_key, DESKHAND_API_KEY, or store one with `deskhand config set-key`")
	}
	return v, nil
}

// StoreAPIKey saves the key in the OS keyring for the configured provider.
func (c *Config) StoreAPIKey(key string) error {
	return keyring.Set(keyringService, c.Provider.Name, key)
}

// ExpandHome expands a leading ~ in a path.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
		}
	}
	return path
}

var (
	validIDRe    = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)
	invalidChars = regexp.MustCompile(`[^a-z0-9_-]+`)
	edgeDashes   = regexp.MustCompile(`^-+|-+$`)
)

// NormalizeAgentID converts a user-provided name into a valid agent ID:
// lowercase, max 64 chars, only [a-z0-9_-], empty falls back to "default".
func NormalizeAgentID(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return DefaultAgentID
	}
	if validIDRe.MatchString(lower) {
		return lower
	}
	result := invalidChars.ReplaceAllString(lower, "-")
	result = edgeDashes.ReplaceAllString(result, "")
	if len(result) > 64 {
		result = result[:64]
	}
	if result == "" {
		return DefaultAgentID
	}
	return result
}
