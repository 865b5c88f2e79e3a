// Package config holds the streamwatch daemon configuration. It is loaded
// from TOML with environment variable overrides, persisted back to disk when
// edited through the API, and watched for external edits.
package config

import "strings"

// Config is the top level streamwatch configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Platform PlatformConfig `mapstructure:"platform"`
	Bus      BusConfig      `mapstructure:"bus"`
	Media    MediaConfig    `mapstructure:"media"`

	// Jobs carries per-job config overrides keyed by job name. Keys inside
	// each section use the job's own config vocabulary (intervalMinutes,
	// batchSize, ...) and are overlaid on the job defaults at startup and
	// on config file reload.
	Jobs map[string]map[string]interface{} `mapstructure:"jobs"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the HTTP/WebSocket server
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// PlatformConfig configures the upstream platform API client
type PlatformConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
}

// BusConfig configures the optional NATS bus. An empty URL disables it.
type BusConfig struct {
	URL string `mapstructure:"url"`
}

// MediaConfig configures media archiving
type MediaConfig struct {
	DestDir string `mapstructure:"dest_dir"`
}

// JobOverrides returns the override section for a job, or nil if the config
// file has none.
func (c *Config) JobOverrides(name string) map[string]interface{} {
	if c == nil || c.Jobs == nil {
		return nil
	}
	return c.Jobs[name]
}

// CanonicalizeKeys remaps keys onto their canonical spelling. Viper folds
// TOML keys to lower case, but jobs address their config with camelCase
// keys (intervalMinutes, batchSize). reference supplies the canonical
// names; keys with no case-insensitive match pass through unchanged.
func CanonicalizeKeys(overrides map[string]interface{}, reference []string) map[string]interface{} {
	if overrides == nil {
		return nil
	}
	canon := make(map[string]string, len(reference))
	for _, name := range reference {
		canon[strings.ToLower(name)] = name
	}
	out := make(map[string]interface{}, len(overrides))
	for k, v := range overrides {
		if name, ok := canon[strings.ToLower(k)]; ok {
			out[name] = v
		} else {
			out[k] = v
		}
	}
	return out
}
