// Package config loads and validates the service's configuration: tracked
// slugs, detector thresholds, enabled detector set, cooldown parameters,
// and outbound notification credentials.
package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete, validated application configuration.
type Config struct {
	Slugs               []string       `yaml:"slugs"`
	PollInterval        int            `yaml:"poll_interval"`
	SpikeThreshold      float64        `yaml:"spike_threshold"`
	LVRThreshold        float64        `yaml:"lvr_threshold"`
	ZScoreThreshold     float64        `yaml:"zscore_threshold"`
	MADMultiplier       float64        `yaml:"mad_multiplier"`
	Detectors           DetectorSet    `yaml:"detectors"`
	CooldownMinutes     int            `yaml:"cooldown_minutes"`
	EscalationThreshold float64        `yaml:"escalation_threshold"`
	ClobTokenIDs        []string       `yaml:"clob_token_ids"`
	Telegram            TelegramConfig `yaml:"telegram"`

	// Warnings holds non-fatal issues for the caller to log at startup. The
	// loader in this package adds no entries to it: an unknown detector name
	// is dropped without a warning.
	Warnings []string `yaml:"-"`
}

// TelegramConfig holds outbound notification credentials.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

const (
	DetectorSpike  = "spike"
	DetectorLVR    = "lvr"
	DetectorZScore = "zscore"
	DetectorMAD    = "mad"
	DetectorClosed = "closed"
)

var allDetectors = []string{DetectorSpike, DetectorLVR, DetectorZScore, DetectorMAD, DetectorClosed}

// DetectorSet is the subset of the five detectors that are enabled.
type DetectorSet map[string]bool

// Enabled reports whether name is in the set.
func (d DetectorSet) Enabled(name string) bool {
	return d[name]
}

func defaultDetectorSet() DetectorSet {
	set := make(DetectorSet, len(allDetectors))
	for _, name := range allDetectors {
		set[name] = true
	}
	return set
}

// UnmarshalYAML accepts a YAML scalar ("all", "none", or a comma-separated
// list) or a native sequence of detector names. Unknown names are dropped
// silently, not rejected; no warning is recorded for them.
func (d *DetectorSet) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var asString string
		if err := value.Decode(&asString); err != nil {
			return err
		}
		return d.fromScalar(asString)
	}

	var asSlice []string
	if err := value.Decode(&asSlice); err != nil {
		return fmt.Errorf("detectors: must be a list or a string")
	}
	return d.fromNames(asSlice)
}

func (d *DetectorSet) fromScalar(s string) error {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "all":
		*d = defaultDetectorSet()
		return nil
	case "none":
		*d = DetectorSet{}
		return nil
	}
	return d.fromNames(strings.Split(s, ","))
}

func (d *DetectorSet) fromNames(names []string) error {
	set := make(DetectorSet)
	known := make(map[string]bool, len(allDetectors))
	for _, n := range allDetectors {
		known[n] = true
	}

	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if !known[name] {
			continue
		}
		set[name] = true
	}
	*d = set
	return nil
}

// Validate checks every constraint from the configuration contract and
// returns a single aggregate error naming every violation, or nil.
func (c *Config) Validate() error {
	var errs []string

	if len(c.Slugs) == 0 {
		errs = append(errs, "slugs: must be a non-empty list")
	}
	for i, s := range c.Slugs {
		if strings.TrimSpace(s) == "" {
			errs = append(errs, fmt.Sprintf("slugs[%d]: must be a non-empty string", i))
		}
	}

	if c.PollInterval < 10 {
		errs = append(errs, "poll_interval: must be an integer >= 10")
	}

	if c.SpikeThreshold < 0.1 || c.SpikeThreshold > 100.0 {
		errs = append(errs, "spike_threshold: must be between 0.1 and 100.0")
	}

	if c.LVRThreshold < 0.1 || c.LVRThreshold > 100.0 {
		errs = append(errs, "lvr_threshold: must be between 0.1 and 100.0")
	}

	if c.ZScoreThreshold <= 0 {
		errs = append(errs, "zscore_threshold: must be positive")
	}

	if c.MADMultiplier <= 0 {
		errs = append(errs, "mad_multiplier: must be positive")
	}

	if c.CooldownMinutes < 0 {
		errs = append(errs, "cooldown_minutes: must be >= 0")
	}

	if c.EscalationThreshold <= 0 {
		errs = append(errs, "escalation_threshold: must be positive")
	}

	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		errs = append(errs, "telegram.bot_token: must be a non-empty string")
	}
	if strings.TrimSpace(c.Telegram.ChatID) == "" {
		errs = append(errs, "telegram.chat_id: must be a non-empty string")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
}

// applyDefaults applies the contract's default values to any zero-valued field
// not set by the file or environment.
func (c *Config) applyDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 60
	}
	if c.SpikeThreshold == 0 {
		c.SpikeThreshold = 5.0
	}
	if c.LVRThreshold == 0 {
		c.LVRThreshold = 8.0
	}
	if c.ZScoreThreshold == 0 {
		c.ZScoreThreshold = 3.5
	}
	if c.MADMultiplier == 0 {
		c.MADMultiplier = 3.0
	}
	if c.EscalationThreshold == 0 {
		c.EscalationThreshold = 1.0
	}
	if c.Detectors == nil {
		c.Detectors = defaultDetectorSet()
	}
}
