// Package config loads and validates the cognicore TOML configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that unmarshals from TOML strings like "60s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the root configuration for a cognicore process.
type Config struct {
	General  General  `toml:"general"`
	Provider Provider `toml:"provider"`
	Tools    Tools    `toml:"tools"`
}

// General holds process-wide settings: storage location and logging.
type General struct {
	StateDB  string `toml:"state_db"`  // path to the embedded SQL database file
	LogLevel string `toml:"log_level"` // debug | info | warn | error
	LogJSON  bool   `toml:"log_json"`  // emit structured JSON logs instead of text
}

// Provider configures the outgoing AI provider adapter (DeepSeek).
//
// APIKeyOverride is read from the COGNICAL_DEEPSEEK_API_KEY environment variable at
// process start, not from the TOML file, so a secret never lands on disk next
// to the config. BaseURL and Model may be overridden by
// COGNICAL_DEEPSEEK_BASE_URL / COGNICAL_DEEPSEEK_MODEL; see applyEnv.
type Provider struct {
	BaseURL string   `toml:"base_url"`
	Model   string   `toml:"model"`
	Timeout Duration `toml:"timeout"`

	// APIKeyOverride is populated from COGNICAL_DEEPSEEK_API_KEY at load time,
	// never from the TOML file. Empty means: use the key stored in the vault.
	APIKeyOverride string `toml:"-"`
}

// Tools configures the tool-dispatch registry's default bounds.
type Tools struct {
	DefaultTimeout Duration `toml:"default_timeout"` // per-call handler timeout (default 15s)
	Concurrency    int      `toml:"concurrency"`      // max tool calls in flight at once (default 5)
}

// Clone returns a deep copy of cfg so callers can safely mutate the result.
// Every field of Config is currently a value type, so the shallow copy below
// already is a deep copy; the method exists to satisfy ConfigManager and to
// keep the clone-on-read/clone-on-write contract explicit if a reference
// field is ever added.
func (cfg *Config) Clone() *Config {
	if cfg == nil {
		return nil
	}
	cloned := *cfg
	return &cloned
}

// Load reads and validates a cognicore TOML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyDefaults(&cfg)
	normalizePaths(&cfg)
	applyEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Reload reads and validates a cognicore TOML configuration file.
//
// This mirrors Load but is intentionally named to reflect runtime refresh paths.
func Reload(path string) (*Config, error) {
	return Load(path)
}

// LoadManager reads config from path and returns an RWMutex-backed thread-safe manager.
func LoadManager(path string) (ConfigManager, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}

	cfg, err := Reload(path)
	if err != nil {
		return nil, err
	}
	return NewRWMutexManager(cfg), nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.StateDB == "" {
		cfg.General.StateDB = "cognicore.db"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}

	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = "https://api.deepseek.com"
	}
	if cfg.Provider.Model == "" {
		cfg.Provider.Model = "deepseek-chat"
	}
	if cfg.Provider.Timeout.Duration == 0 {
		cfg.Provider.Timeout.Duration = 30 * time.Second
	}

	if cfg.Tools.DefaultTimeout.Duration == 0 {
		cfg.Tools.DefaultTimeout.Duration = 15 * time.Second
	}
	if cfg.Tools.Concurrency == 0 {
		cfg.Tools.Concurrency = 5
	}
}

func normalizePaths(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.General.StateDB = ExpandHome(strings.TrimSpace(cfg.General.StateDB))
}

// applyEnv layers the documented COGNICAL_DEEPSEEK_* environment overrides on
// top of whatever the TOML file and defaults produced. The environment always
// wins: it is how a deployment rotates a key or points at a self-hosted
// endpoint without touching the file on disk.
func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("COGNICAL_DEEPSEEK_API_KEY")); v != "" {
		cfg.Provider.APIKeyOverride = v
	}
	if v := strings.TrimSpace(os.Getenv("COGNICAL_DEEPSEEK_BASE_URL")); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("COGNICAL_DEEPSEEK_MODEL")); v != "" {
		cfg.Provider.Model = v
	}
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.General.StateDB) == "" {
		return fmt.Errorf("general.state_db is required")
	}
	if _, ok := knownLogLevels[strings.ToLower(cfg.General.LogLevel)]; !ok {
		return fmt.Errorf("general.log_level %q is not one of debug, info, warn, error", cfg.General.LogLevel)
	}

	if strings.TrimSpace(cfg.Provider.BaseURL) == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	if strings.TrimSpace(cfg.Provider.Model) == "" {
		return fmt.Errorf("provider.model is required")
	}
	if cfg.Provider.Timeout.Duration <= 0 {
		return fmt.Errorf("provider.timeout must be positive")
	}

	if cfg.Tools.DefaultTimeout.Duration <= 0 {
		return fmt.Errorf("tools.default_timeout must be positive")
	}
	if cfg.Tools.Concurrency <= 0 {
		return fmt.Errorf("tools.concurrency must be positive")
	}

	return nil
}

var knownLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// ExpandHome resolves a leading "~" in path to the current user's home directory.
func ExpandHome(path string) string {
	if len(path) == 0 {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home + path[1:]
	}
	return path
}
