// Package config holds all prospect pipeline configuration.
// Config is loaded from YAML, then overridden by environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all prospect pipeline configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Browser BrowserConfig `yaml:"browser"`
	Agent   AgentConfig   `yaml:"agent"`
	LLM     LLMConfig     `yaml:"llm"`
	Apify   ApifyConfig   `yaml:"apify"`
	Session SessionConfig `yaml:"session"`
	Output  OutputConfig  `yaml:"output"`
	Monitor MonitorConfig `yaml:"monitor"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
}

// BrowserConfig configures the rod-driven Chrome instance.
type BrowserConfig struct {
	Headless     bool   `yaml:"headless"`
	ProfileDir   string `yaml:"profile_dir"` // persistent Chrome profile, empty = temp
	WindowWidth  int    `yaml:"window_width"`
	WindowHeight int    `yaml:"window_height"`
	UserAgent    string `yaml:"user_agent"`
	NavTimeout   string `yaml:"nav_timeout"`
	SlowMotion   string `yaml:"slow_motion"` // per-action delay, humanizes input
	DebuggerURL  string `yaml:"debugger_url"` // attach instead of launch when set
}

// AgentConfig configures the LLM navigation agent.
type AgentConfig struct {
	MaxSteps    int     `yaml:"max_steps"`
	Temperature float64 `yaml:"temperature"`
	StepTimeout string  `yaml:"step_timeout"`
	Screenshots bool    `yaml:"screenshots"`
}

// LLMConfig configures the LLM provider used by the agent.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// ApifyConfig configures the Apify scraping actor.
type ApifyConfig struct {
	Token        string `yaml:"token"`
	ActorID      string `yaml:"actor_id"`
	TotalRecords int    `yaml:"total_records"`
	FileName     string `yaml:"file_name"`
	PollInterval string `yaml:"poll_interval"`
	RunTimeout   string `yaml:"run_timeout"`
	BaseURL      string `yaml:"base_url"`
}

// SessionConfig configures Apollo session persistence and validation.
type SessionConfig struct {
	Dir              string `yaml:"dir"`                // session file directory
	ProfileDir       string `yaml:"profile_dir"`        // persistent browser profile
	StalenessDays    int    `yaml:"staleness_days"`     // sessions older than this are stale
	ValidationTTL    string `yaml:"validation_ttl"`     // validation result cache
	RecoveryAttempts int    `yaml:"recovery_attempts"`  // alternate-config recovery tries
}

// OutputConfig configures contact export.
type OutputConfig struct {
	Dir        string `yaml:"dir"`
	FilePrefix string `yaml:"file_prefix"`
}

// MonitorConfig configures run monitoring.
type MonitorConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Screenshots   bool   `yaml:"screenshots"`
	ScreenshotDir string `yaml:"screenshot_dir"`
	ReportDir     string `yaml:"report_dir"`
}

// StoreConfig configures the run-history database.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures categorized file logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultActorID is the Apollo scraping actor used when none is configured.
const DefaultActorID = "jljBwyyQakqrL1wae"

// MaxTotalRecords is the largest record count the actor accepts per run.
const MaxTotalRecords = 50000

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "prospectpipe",
		Version: "1.0.0",

		Browser: BrowserConfig{
			Headless:     false,
			ProfileDir:   "apollo_profile",
			WindowWidth:  1920,
			WindowHeight: 1080,
			NavTimeout:   "60s",
			SlowMotion:   "100ms",
		},

		Agent: AgentConfig{
			MaxSteps:    25,
			Temperature: 0.0,
			StepTimeout: "90s",
			Screenshots: false,
		},

		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o",
			BaseURL:  "https://api.openai.com/v1",
			Timeout:  "120s",
		},

		Apify: ApifyConfig{
			ActorID:      DefaultActorID,
			TotalRecords: 200,
			FileName:     "Apollo Prospects",
			PollInterval: "10s",
			RunTimeout:   "10m",
			BaseURL:      "https://api.apify.com",
		},

		Session: SessionConfig{
			Dir:              "cookies",
			ProfileDir:       "apollo_profile",
			StalenessDays:    30,
			ValidationTTL:    "5m",
			RecoveryAttempts: 3,
		},

		Output: OutputConfig{
			Dir:        "output",
			FilePrefix: "apollo_contacts",
		},

		Monitor: MonitorConfig{
			Enabled:       true,
			Screenshots:   true,
			ScreenshotDir: "monitoring/screenshots",
			ReportDir:     "monitoring",
		},

		Store: StoreConfig{
			DatabasePath: filepath.Join(".prospect", "runs.db"),
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// LLM API key from environment (check in priority order)
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "openai"
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}

	if v := os.Getenv("APOLLO_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = b
		}
	}
	if dir := os.Getenv("APOLLO_PROFILE_DIR"); dir != "" {
		c.Browser.ProfileDir = dir
		c.Session.ProfileDir = dir
	}
	if dir := os.Getenv("APOLLO_SESSION_DIR"); dir != "" {
		c.Session.Dir = dir
	}

	if token := os.Getenv("APIFY_TOKEN"); token != "" {
		c.Apify.Token = token
	}
	if actor := os.Getenv("APIFY_ACTOR_ID"); actor != "" {
		c.Apify.ActorID = actor
	}
	if v := os.Getenv("APIFY_TOTAL_RECORDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Apify.TotalRecords = n
		}
	}

	if dir := os.Getenv("PROSPECT_OUTPUT_DIR"); dir != "" {
		c.Output.Dir = dir
	}
	if path := os.Getenv("PROSPECT_DB"); path != "" {
		c.Store.DatabasePath = path
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetNavTimeout returns the browser navigation timeout as a duration.
func (c *Config) GetNavTimeout() time.Duration {
	d, err := time.ParseDuration(c.Browser.NavTimeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetSlowMotion returns the per-action browser delay as a duration.
func (c *Config) GetSlowMotion() time.Duration {
	d, err := time.ParseDuration(c.Browser.SlowMotion)
	if err != nil {
		return 100 * time.Millisecond
	}
	return d
}

// GetStepTimeout returns the per-step agent timeout as a duration.
func (c *Config) GetStepTimeout() time.Duration {
	d, err := time.ParseDuration(c.Agent.StepTimeout)
	if err != nil {
		return 90 * time.Second
	}
	return d
}

// GetPollInterval returns the Apify run poll interval as a duration.
func (c *Config) GetPollInterval() time.Duration {
	d, err := time.ParseDuration(c.Apify.PollInterval)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetRunTimeout returns the Apify run timeout as a duration.
func (c *Config) GetRunTimeout() time.Duration {
	d, err := time.ParseDuration(c.Apify.RunTimeout)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// GetValidationTTL returns the session validation cache TTL as a duration.
func (c *Config) GetValidationTTL() time.Duration {
	d, err := time.ParseDuration(c.Session.ValidationTTL)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"openai", "gemini"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	if c.Apify.ActorID == "" {
		return fmt.Errorf("apify actor ID not configured")
	}
	if c.Apify.TotalRecords < 1 || c.Apify.TotalRecords > MaxTotalRecords {
		return fmt.Errorf("apify total_records out of range [1, %d]: %d", MaxTotalRecords, c.Apify.TotalRecords)
	}
	if c.Agent.MaxSteps < 1 {
		return fmt.Errorf("agent max_steps must be positive: %d", c.Agent.MaxSteps)
	}
	if c.Session.StalenessDays < 1 {
		return fmt.Errorf("session staleness_days must be positive: %d", c.Session.StalenessDays)
	}
	if c.Browser.WindowWidth < 320 || c.Browser.WindowHeight < 240 {
		return fmt.Errorf("browser window too small: %dx%d", c.Browser.WindowWidth, c.Browser.WindowHeight)
	}
	return nil
}

// RequireLLM validates that an LLM API key is configured. Pipeline runs
// need it; session info and fetch-only commands do not.
func (c *Config) RequireLLM() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set OPENAI_API_KEY or GEMINI_API_KEY)")
	}
	return nil
}

// RequireApify validates that an Apify token is configured.
func (c *Config) RequireApify() error {
	if c.Apify.Token == "" {
		return fmt.Errorf("apify token not configured (set APIFY_TOKEN)")
	}
	return nil
}
