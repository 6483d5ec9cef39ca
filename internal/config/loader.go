package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader reads configuration from a YAML file, applies environment-variable
// substitution and overrides, and validates the result.
type Loader struct{}

// NewLoader returns a Loader.
func NewLoader() *Loader {
	return &Loader{}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces every ${VAR} occurrence in s with the named
// environment variable's value. An unresolved reference is left literal.
func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return match
	})
}

// substituteInStrings walks a generic YAML-decoded value (maps, slices,
// strings, scalars) and substitutes environment variables into every
// string it finds.
func substituteInStrings(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return substituteEnvVars(val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = substituteInStrings(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = substituteInStrings(item)
		}
		return out
	default:
		return val
	}
}

// LoadFile loads configuration from a YAML file at path, applies
// ${VAR} substitution, overlays direct environment-variable overrides
// (env takes precedence over file), fills in defaults, and validates.
func (l *Loader) LoadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	var generic map[string]interface{}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if generic == nil {
		return nil, fmt.Errorf("config file %s is empty", path)
	}

	substituted := substituteInStrings(generic)

	reencoded, err := yaml.Marshal(substituted)
	if err != nil {
		return nil, fmt.Errorf("re-encode config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(reencoded, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromEnv builds a Config entirely from environment variables, for
// deployments without a config file on disk.
func (l *Loader) LoadFromEnv() (*Config, error) {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides layers direct environment-variable overrides on top of
// whatever the file (or zero value) already set. Env always wins.
func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("POLYSENTRY_SLUGS"); ok {
		cfg.Slugs = splitNonEmpty(v, ",")
	}
	if v, ok := os.LookupEnv("POLYSENTRY_POLL_INTERVAL"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PollInterval = n
		}
	}
	if v, ok := os.LookupEnv("POLYSENTRY_SPIKE_THRESHOLD"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SpikeThreshold = f
		}
	}
	if v, ok := os.LookupEnv("POLYSENTRY_LVR_THRESHOLD"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LVRThreshold = f
		}
	}
	if v, ok := os.LookupEnv("POLYSENTRY_ZSCORE_THRESHOLD"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ZScoreThreshold = f
		}
	}
	if v, ok := os.LookupEnv("POLYSENTRY_MAD_MULTIPLIER"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MADMultiplier = f
		}
	}
	if v, ok := os.LookupEnv("POLYSENTRY_DETECTORS"); ok {
		set := DetectorSet{}
		_ = set.fromScalar(v)
		cfg.Detectors = set
	}
	if v, ok := os.LookupEnv("POLYSENTRY_COOLDOWN_MINUTES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CooldownMinutes = n
		}
	}
	if v, ok := os.LookupEnv("POLYSENTRY_ESCALATION_THRESHOLD"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.EscalationThreshold = f
		}
	}
	if v, ok := os.LookupEnv("POLYSENTRY_CLOB_TOKEN_IDS"); ok {
		cfg.ClobTokenIDs = splitNonEmpty(v, ",")
	}
	if v, ok := os.LookupEnv("TELEGRAM_BOT_TOKEN"); ok {
		cfg.Telegram.BotToken = v
	}
	if v, ok := os.LookupEnv("TELEGRAM_CHAT_ID"); ok {
		cfg.Telegram.ChatID = v
	}
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
