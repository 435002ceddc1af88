// Package config loads exporter settings from a JSON config file with
// HISTORIAN_* environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Server ServerConfig
	Export ExportConfig
	Log    LogConfig
}

type ServerConfig struct {
	URL      string
	User     string
	Password string
}

type ExportConfig struct {
	// PauseSeconds is the baseline delay before every provider call.
	PauseSeconds int
	// CountMax is the per-window message limit requested from the provider.
	CountMax  int
	OutputDir string
	StateFile string
	// DataDir holds the export ledger database.
	DataDir string
}

type LogConfig struct {
	Level string // "debug" or "info"
	File  string // optional log file, tee'd with stderr
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Export: ExportConfig{
			PauseSeconds: 1,
			CountMax:     5000,
			OutputDir:    "export",
			StateFile:    filepath.Join(dataDir, "state.json"),
			DataDir:      dataDir,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the XDG-compatible config file location.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "historian", "config.json")
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "historian-data"
		}
	}
	return filepath.Join(dir, "historian")
}

// Load reads configuration from the JSON file at path (a flat object keyed
// like "server.url"), applies HISTORIAN_* environment overrides, and
// validates required fields. A missing file is not an error; the defaults
// and environment carry the load.
func Load(path string) (Config, error) {
	cfg := defaults()

	values, err := readFileValues(path)
	if err != nil {
		return Config{}, err
	}
	applyFileValues(&cfg, values)
	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readFileValues(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	values := make(map[string]any)
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return values, nil
}

func validate(cfg Config) error {
	required := []struct {
		value, key, env string
	}{
		{cfg.Server.URL, "server.url", "HISTORIAN_SERVER_URL"},
		{cfg.Server.User, "server.user", "HISTORIAN_SERVER_USER"},
		{cfg.Server.Password, "server.password", "HISTORIAN_SERVER_PASSWORD"},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("missing required config: %s (set it in the config file or via %s)", r.key, r.env)
		}
	}
	if cfg.Export.PauseSeconds < 0 {
		return fmt.Errorf("export.pause_seconds must not be negative")
	}
	if cfg.Export.CountMax <= 0 {
		return fmt.Errorf("export.count_max must be positive")
	}
	return nil
}
