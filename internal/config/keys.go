package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key   string
	typ   keyType
	env   string
	apply func(cfg *Config, v any)
}

var specs = []keySpec{
	{
		key: "server.url", typ: kString, env: "HISTORIAN_SERVER_URL",
		apply: func(cfg *Config, v any) { cfg.Server.URL = v.(string) },
	},
	{
		key: "server.user", typ: kString, env: "HISTORIAN_SERVER_USER",
		apply: func(cfg *Config, v any) { cfg.Server.User = v.(string) },
	},
	{
		key: "server.password", typ: kString, env: "HISTORIAN_SERVER_PASSWORD",
		apply: func(cfg *Config, v any) { cfg.Server.Password = v.(string) },
	},
	{
		key: "export.pause_seconds", typ: kInt, env: "HISTORIAN_EXPORT_PAUSE_SECONDS",
		apply: func(cfg *Config, v any) { cfg.Export.PauseSeconds = v.(int) },
	},
	{
		key: "export.count_max", typ: kInt, env: "HISTORIAN_EXPORT_COUNT_MAX",
		apply: func(cfg *Config, v any) { cfg.Export.CountMax = v.(int) },
	},
	{
		key: "export.output_dir", typ: kString, env: "HISTORIAN_EXPORT_OUTPUT_DIR",
		apply: func(cfg *Config, v any) { cfg.Export.OutputDir = v.(string) },
	},
	{
		key: "export.state_file", typ: kString, env: "HISTORIAN_EXPORT_STATE_FILE",
		apply: func(cfg *Config, v any) { cfg.Export.StateFile = v.(string) },
	},
	{
		key: "export.data_dir", typ: kString, env: "HISTORIAN_EXPORT_DATA_DIR",
		apply: func(cfg *Config, v any) { cfg.Export.DataDir = v.(string) },
	},
	{
		key: "log.level", typ: kString, env: "HISTORIAN_LOG_LEVEL",
		apply: func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
	},
	{
		key: "log.file", typ: kString, env: "HISTORIAN_LOG_FILE",
		apply: func(cfg *Config, v any) { cfg.Log.File = v.(string) },
	},
}

func applyFileValues(cfg *Config, values map[string]any) {
	for _, s := range specs {
		v, ok := values[s.key]
		if !ok {
			continue
		}
		switch s.typ {
		case kString:
			if sv, ok := v.(string); ok {
				s.apply(cfg, sv)
			} else {
				s.apply(cfg, fmt.Sprintf("%v", v))
			}
		case kInt:
			if i, ok := asInt(v); ok {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from config key %s=%v. Using default value.\n", s.key, v)
			}
		}
	}
}

func asInt(v any) (int, bool) {
	switch val := v.(type) {
	case float64:
		if val < math.MinInt || val > math.MaxInt || val != math.Trunc(val) {
			return 0, false
		}
		return int(val), true
	case string:
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
