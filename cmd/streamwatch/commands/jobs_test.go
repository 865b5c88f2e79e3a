package commands

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/halcyonlabs/streamwatch/jobs"
)

func TestParseConfigValue(t *testing.T) {
	assert.Equal(t, true, parseConfigValue("true"))
	assert.Equal(t, false, parseConfigValue("false"))
	assert.Equal(t, 42, parseConfigValue("42"))
	assert.Equal(t, 2.5, parseConfigValue("2.5"))
	assert.Equal(t, "hello", parseConfigValue("hello"))
	assert.Equal(t, "/srv/media", parseConfigValue("/srv/media"))
}

func TestJobStateLabel(t *testing.T) {
	assert.Equal(t, "stopped", jobStateLabel(jobs.Status{}))
	assert.Equal(t, "running", jobStateLabel(jobs.Status{Running: true}))
	assert.Equal(t, "paused", jobStateLabel(jobs.Status{Running: true, Paused: true}))
	assert.Equal(t, "processing", jobStateLabel(jobs.Status{Running: true, Processing: true}))
}

func TestLastRunLabel(t *testing.T) {
	assert.Equal(t, "never", lastRunLabel(jobs.RunStats{}))

	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	assert.NotEqual(t, "never", lastRunLabel(jobs.RunStats{LastRunAt: &at}))
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "Start", titleCase("start"))
	assert.Equal(t, "Reset stats", titleCase("reset stats"))
	assert.Equal(t, "", titleCase(""))
}
