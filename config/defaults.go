package config

import (
	"github.com/spf13/viper"
)

// Default server port constants
const (
	DefaultServerAddr = "127.0.0.1:8870"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "streamwatch.db")

	// Server defaults
	v.SetDefault("server.addr", DefaultServerAddr)

	// Platform API defaults
	v.SetDefault("platform.base_url", "http://localhost:4380")
	v.SetDefault("platform.requests_per_second", 1.0) // Polite pacing against the upstream API
	v.SetDefault("platform.burst", 1)
	v.SetDefault("platform.timeout_seconds", 30)

	// Bus defaults: empty URL means no NATS
	v.SetDefault("bus.url", "")

	// Media defaults
	v.SetDefault("media.dest_dir", "")
}

// BindSensitiveEnvVars explicitly binds values that should come from the
// environment rather than a file checked into dotfiles.
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("platform.base_url", "STREAMWATCH_PLATFORM_BASE_URL")
	_ = v.BindEnv("bus.url", "STREAMWATCH_BUS_URL")
}
