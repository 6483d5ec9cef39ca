package config

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestDetectorSetScalarAll(t *testing.T) {
	var d DetectorSet
	if err := yaml.Unmarshal([]byte(`"all"`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, name := range allDetectors {
		if !d.Enabled(name) {
			t.Fatalf("expected %s enabled under 'all'", name)
		}
	}
}

func TestDetectorSetScalarNone(t *testing.T) {
	var d DetectorSet
	if err := yaml.Unmarshal([]byte(`"none"`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(d) != 0 {
		t.Fatalf("expected empty set under 'none', got %v", d)
	}
}

func TestDetectorSetCommaSeparated(t *testing.T) {
	var d DetectorSet
	if err := yaml.Unmarshal([]byte(`"spike,mad"`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !d.Enabled(DetectorSpike) || !d.Enabled(DetectorMAD) || d.Enabled(DetectorZScore) {
		t.Fatalf("unexpected set: %v", d)
	}
}

func TestDetectorSetUnknownNameDropped(t *testing.T) {
	var d DetectorSet
	if err := yaml.Unmarshal([]byte(`[spike, bogus]`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !d.Enabled(DetectorSpike) || d.Enabled("bogus") {
		t.Fatalf("unexpected set: %v", d)
	}
}

func TestDetectorSetSequence(t *testing.T) {
	var d DetectorSet
	if err := yaml.Unmarshal([]byte(`[spike, zscore]`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !d.Enabled(DetectorSpike) || !d.Enabled(DetectorZScore) || d.Enabled(DetectorMAD) {
		t.Fatalf("unexpected set: %v", d)
	}
}

func TestValidateRejectsEmptySlugs(t *testing.T) {
	c := &Config{
		PollInterval:        60,
		SpikeThreshold:      5,
		LVRThreshold:        8,
		ZScoreThreshold:     3.5,
		MADMultiplier:       3,
		EscalationThreshold: 1,
		Telegram:            TelegramConfig{BotToken: "t", ChatID: "c"},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error for empty slugs")
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	c := &Config{
		Slugs:               []string{"some-event"},
		PollInterval:        60,
		SpikeThreshold:      5,
		LVRThreshold:        8,
		ZScoreThreshold:     3.5,
		MADMultiplier:       3,
		EscalationThreshold: 1,
		Telegram:            TelegramConfig{BotToken: "t", ChatID: "c"},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestSubstituteEnvVarsResolvesKnownVar(t *testing.T) {
	os.Setenv("POLYSENTRY_TEST_VAR", "resolved")
	defer os.Unsetenv("POLYSENTRY_TEST_VAR")

	got := substituteEnvVars("prefix-${POLYSENTRY_TEST_VAR}-suffix")
	if got != "prefix-resolved-suffix" {
		t.Fatalf("got %q", got)
	}
}

func TestSubstituteEnvVarsLeavesUnresolvedLiteral(t *testing.T) {
	got := substituteEnvVars("${POLYSENTRY_DEFINITELY_UNSET}")
	if got != "${POLYSENTRY_DEFINITELY_UNSET}" {
		t.Fatalf("expected literal passthrough, got %q", got)
	}
}

func TestLoadFileAppliesEnvSubstitutionAndDefaults(t *testing.T) {
	os.Setenv("POLYSENTRY_TEST_TOKEN", "abc123")
	defer os.Unsetenv("POLYSENTRY_TEST_TOKEN")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
slugs:
  - will-it-rain
telegram:
  bot_token: "${POLYSENTRY_TEST_TOKEN}"
  chat_id: "12345"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := NewLoader().LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Telegram.BotToken != "abc123" {
		t.Fatalf("expected substituted token, got %q", cfg.Telegram.BotToken)
	}
	if cfg.PollInterval != 60 {
		t.Fatalf("expected default poll_interval 60, got %d", cfg.PollInterval)
	}
	if !cfg.Detectors.Enabled(DetectorSpike) {
		t.Fatalf("expected default detector set to include spike")
	}
}

func TestLoadFileEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
slugs:
  - will-it-rain
poll_interval: 30
telegram:
  bot_token: "file-token"
  chat_id: "12345"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	os.Setenv("POLYSENTRY_POLL_INTERVAL", "90")
	defer os.Unsetenv("POLYSENTRY_POLL_INTERVAL")

	cfg, err := NewLoader().LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.PollInterval != 90 {
		t.Fatalf("expected env override to win, got %d", cfg.PollInterval)
	}
}
