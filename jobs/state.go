// Package jobs implements the recurring job orchestration subsystem: the
// per-job lifecycle state machine, the periodic scheduler, durable state
// persistence, crash recovery, and the batch dispatcher used by
// high-volume cycles.
package jobs

import "time"

// ConfigMap holds a job's configuration. The orchestrator treats it as
// schema-less: individual runners own the meaning of their keys.
type ConfigMap map[string]interface{}

// Clone returns a shallow copy of the config map.
func (c ConfigMap) Clone() ConfigMap {
	out := make(ConfigMap, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Merge overlays partial onto a copy of c and returns the result.
// Keys present in partial win; all other keys are preserved.
func (c ConfigMap) Merge(partial ConfigMap) ConfigMap {
	out := c.Clone()
	for k, v := range partial {
		out[k] = v
	}
	return out
}

// Enabled reports whether the config allows the job to run.
// A missing "enabled" key defaults to true.
func (c ConfigMap) Enabled() bool {
	v, ok := c["enabled"]
	if !ok {
		return true
	}
	b, ok := v.(bool)
	if !ok {
		return true
	}
	return b
}

// Bool returns the named boolean key, or def if absent or mistyped.
func (c ConfigMap) Bool(key string, def bool) bool {
	v, ok := c[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// Int returns the named integer key, or def if absent or mistyped.
// JSON round-trips store numbers as float64, so both forms are accepted.
func (c ConfigMap) Int(key string, def int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// Duration interprets the named key as a number of seconds.
func (c ConfigMap) Duration(key string, def time.Duration) time.Duration {
	secs := c.Int(key, -1)
	if secs < 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}

// String returns the named string key, or def if absent or mistyped.
func (c ConfigMap) String(key string, def string) string {
	v, ok := c[key].(string)
	if !ok {
		return def
	}
	return v
}

// JobState is the durable record for one job, as held by the StateStore.
// Invariant: Paused implies Running - pause is only meaningful for a started job.
type JobState struct {
	Name      string
	Running   bool
	Paused    bool
	Config    ConfigMap
	Stats     RunStats
	UpdatedAt time.Time
}
