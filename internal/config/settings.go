package config

import (
	"errors"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultRuntimeBaseURL      = "http://127.0.0.1:4096"
	defaultRuntimeUsername     = "opencode"
	defaultRuntimeTimeout      = 30
	defaultMaxHydratedSessions = 24
	defaultLayoutDebounceMS    = 40
	defaultNodeSpacing         = 2
	defaultDepthSpacing        = 4
)

var defaultExpandedKinds = []string{"patch", "file"}

type Config struct {
	Runtime RuntimeConfig `toml:"runtime"`
	Cache   CacheConfig   `toml:"cache"`
	Layout  LayoutConfig  `toml:"layout"`
	Logging LoggingConfig `toml:"logging"`
	UI      UIConfig      `toml:"ui"`
}

type RuntimeConfig struct {
	BaseURL        string `toml:"base_url"`
	Username       string `toml:"username"`
	Token          string `toml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type CacheConfig struct {
	MaxHydratedSessions int `toml:"max_hydrated_sessions"`
}

type LayoutConfig struct {
	Direction    string `toml:"direction"`
	NodeSpacing  int    `toml:"node_spacing"`
	DepthSpacing int    `toml:"depth_spacing"`
	DebounceMS   int    `toml:"debounce_ms"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

type UIConfig struct {
	DefaultExpanded []string `toml:"default_expanded"`
}

func Default() Config {
	return Config{
		Runtime: RuntimeConfig{
			BaseURL:        defaultRuntimeBaseURL,
			Username:       defaultRuntimeUsername,
			TimeoutSeconds: defaultRuntimeTimeout,
		},
		Cache: CacheConfig{
			MaxHydratedSessions: defaultMaxHydratedSessions,
		},
		Layout: LayoutConfig{
			Direction:    "vertical",
			NodeSpacing:  defaultNodeSpacing,
			DepthSpacing: defaultDepthSpacing,
			DebounceMS:   defaultLayoutDebounceMS,
		},
		Logging: LoggingConfig{Level: "info"},
		UI:      UIConfig{DefaultExpanded: append([]string{}, defaultExpandedKinds...)},
	}
}

func Load() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	return LoadFromPath(path)
}

func LoadFromPath(path string) (Config, error) {
	cfg := Default()
	if err := readTOML(path, &cfg); err != nil {
		return Config{}, err
	}
	if env := strings.TrimSpace(os.Getenv("CANOPY_RUNTIME_URL")); env != "" {
		cfg.Runtime.BaseURL = env
	}
	if env := strings.TrimSpace(os.Getenv("CANOPY_RUNTIME_TOKEN")); env != "" {
		cfg.Runtime.Token = env
	}
	return cfg, nil
}

func (c Config) RuntimeBaseURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.Runtime.BaseURL), "/")
	if base == "" {
		return defaultRuntimeBaseURL
	}
	return base
}

func (c Config) RuntimeUsername() string {
	username := strings.TrimSpace(c.Runtime.Username)
	if username == "" {
		return defaultRuntimeUsername
	}
	return username
}

func (c Config) RuntimeTimeout() time.Duration {
	seconds := c.Runtime.TimeoutSeconds
	if seconds <= 0 {
		seconds = defaultRuntimeTimeout
	}
	return time.Duration(seconds) * time.Second
}

func (c Config) MaxHydratedSessions() int {
	if c.Cache.MaxHydratedSessions <= 0 {
		return defaultMaxHydratedSessions
	}
	return c.Cache.MaxHydratedSessions
}

func (c Config) LayoutDebounce() time.Duration {
	ms := c.Layout.DebounceMS
	if ms <= 0 {
		ms = defaultLayoutDebounceMS
	}
	return time.Duration(ms) * time.Millisecond
}

func (c Config) LayoutDirection() string {
	switch strings.ToLower(strings.TrimSpace(c.Layout.Direction)) {
	case "horizontal":
		return "horizontal"
	default:
		return "vertical"
	}
}

func (c Config) LayoutNodeSpacing() int {
	if c.Layout.NodeSpacing <= 0 {
		return defaultNodeSpacing
	}
	return c.Layout.NodeSpacing
}

func (c Config) LayoutDepthSpacing() int {
	if c.Layout.DepthSpacing <= 0 {
		return defaultDepthSpacing
	}
	return c.Layout.DepthSpacing
}

func (c Config) LogLevel() string {
	level := strings.TrimSpace(c.Logging.Level)
	if level == "" {
		return "info"
	}
	return level
}

func (c Config) DefaultExpandedKinds() []string {
	kinds := normalizedList(c.UI.DefaultExpanded)
	if len(kinds) == 0 {
		return append([]string{}, defaultExpandedKinds...)
	}
	return kinds
}

func readTOML(path string, out any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	return toml.Unmarshal(data, out)
}

func normalizedList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := map[string]bool{}
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" || seen[value] {
			continue
		}
		seen[value] = true
		out = append(out, value)
	}
	return out
}
