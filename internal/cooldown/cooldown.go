// Package cooldown implements the suppression discipline that deduplicates
// repeated detector alerts for the same target until either the cooldown
// window elapses or the anomaly's score escalates.
package cooldown

import "time"

// Key identifies one cooldown target: a market/token id, the metric it was
// computed over, and the window span.
type Key struct {
	MarketID string
	Metric   string
	Window   string
}

type entry struct {
	lastAlertTime time.Time
	lastScore     float64
}

// Manager tracks per-key cooldown state. It is single-writer; the
// orchestrator is the sole caller within a cycle.
type Manager struct {
	cooldownDuration time.Duration
	escalationDelta  float64
	entries          map[Key]entry
}

// New creates a Manager. cooldownDuration of zero disables suppression
// entirely (ShouldAlert always returns true).
func New(cooldownDuration time.Duration, escalationDelta float64) *Manager {
	return &Manager{
		cooldownDuration: cooldownDuration,
		escalationDelta:  escalationDelta,
		entries:          make(map[Key]entry),
	}
}

// ShouldAlert reports whether a candidate alert for key with the given
// score survives suppression at time now. An escalation fires only on an
// increase in score over the last recorded value, never an absolute delta.
func (m *Manager) ShouldAlert(key Key, score float64, now time.Time) bool {
	if m.cooldownDuration <= 0 {
		return true
	}

	e, ok := m.entries[key]
	if !ok {
		return true
	}

	elapsed := now.Sub(e.lastAlertTime)
	if elapsed >= m.cooldownDuration {
		return true
	}

	return score-e.lastScore >= m.escalationDelta
}

// RecordAlert upserts key's entry. Call only after an alert has survived
// ShouldAlert and is actually being emitted.
func (m *Manager) RecordAlert(key Key, score float64, now time.Time) {
	m.entries[key] = entry{lastAlertTime: now, lastScore: score}
}

// Clear removes key's entry, for callers that determine the anomaly has
// resolved. The orchestrator is not required to exercise this path.
func (m *Manager) Clear(key Key) {
	delete(m.entries, key)
}

// CleanupStale removes every entry whose age exceeds twice the cooldown
// duration. Called once per cycle, before detection. A no-op when cooldown
// is disabled.
func (m *Manager) CleanupStale(now time.Time) {
	if m.cooldownDuration <= 0 {
		return
	}
	staleAfter := 2 * m.cooldownDuration
	for k, e := range m.entries {
		if now.Sub(e.lastAlertTime) > staleAfter {
			delete(m.entries, k)
		}
	}
}
