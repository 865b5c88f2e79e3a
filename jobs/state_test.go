package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigMapMerge(t *testing.T) {
	base := ConfigMap{"intervalMinutes": 15, "batchSize": 25, "enabled": true}
	merged := base.Merge(ConfigMap{"batchSize": 10, "extra": "x"})

	assert.Equal(t, 15, merged.Int("intervalMinutes", 0))
	assert.Equal(t, 10, merged.Int("batchSize", 0))
	assert.Equal(t, "x", merged.String("extra", ""))

	// Merge never mutates the receiver.
	assert.Equal(t, 25, base.Int("batchSize", 0))
	_, ok := base["extra"]
	assert.False(t, ok)
}

func TestConfigMapEnabled(t *testing.T) {
	assert.True(t, ConfigMap{}.Enabled(), "missing enabled defaults to true")
	assert.True(t, ConfigMap{"enabled": true}.Enabled())
	assert.False(t, ConfigMap{"enabled": false}.Enabled())
	assert.True(t, ConfigMap{"enabled": "no"}.Enabled(), "mistyped enabled falls back to true")
}

func TestConfigMapInt(t *testing.T) {
	cfg := ConfigMap{
		"asInt":   5,
		"asFloat": float64(7), // JSON round-trip form
		"asInt64": int64(9),
		"bad":     "nope",
	}
	assert.Equal(t, 5, cfg.Int("asInt", 0))
	assert.Equal(t, 7, cfg.Int("asFloat", 0))
	assert.Equal(t, 9, cfg.Int("asInt64", 0))
	assert.Equal(t, 42, cfg.Int("bad", 42))
	assert.Equal(t, 42, cfg.Int("missing", 42))
}

func TestConfigMapDuration(t *testing.T) {
	cfg := ConfigMap{"delaySeconds": 90}
	assert.Equal(t, 90*time.Second, cfg.Duration("delaySeconds", time.Second))
	assert.Equal(t, time.Second, cfg.Duration("missing", time.Second))
}

func TestConfigMapBoolAndString(t *testing.T) {
	cfg := ConfigMap{"flag": true, "name": "alpha"}
	assert.True(t, cfg.Bool("flag", false))
	assert.False(t, cfg.Bool("missing", false))
	assert.Equal(t, "alpha", cfg.String("name", ""))
	assert.Equal(t, "def", cfg.String("missing", "def"))
}

func TestRunStatsCycleAccounting(t *testing.T) {
	var s RunStats
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	s.BeginCycle(start)
	s.LastRunSucceeded = 3
	s.LastRunFailed = 1
	s.Progress = 4
	s.Total = 4
	s.CurrentItem = "last"
	s.EndCycle(start, start.Add(1500*time.Millisecond))

	assert.Equal(t, int64(1), s.TotalRuns)
	assert.Equal(t, int64(3), s.TotalSucceeded)
	assert.Equal(t, int64(1), s.TotalFailed)
	assert.Equal(t, int64(1500), s.LastRunDurationMs)
	assert.Zero(t, s.Progress)
	assert.Zero(t, s.Total)
	assert.Empty(t, s.CurrentItem)

	// Second cycle resets the last-run counters but keeps the totals.
	s.BeginCycle(start.Add(time.Hour))
	assert.Equal(t, int64(2), s.TotalRuns)
	assert.Zero(t, s.LastRunSucceeded)
	assert.Zero(t, s.LastRunFailed)
	assert.Equal(t, int64(3), s.TotalSucceeded)
}
