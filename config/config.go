// Package config loads the settings of the hotswap command: which runtime
// to drive, where updates come from, how checks are triggered and how the
// update server listens. Files may be YAML, TOML or HCL; environment
// variables override file values.
package config

import (
	"time"
)

// Config is the complete configuration.
type Config struct {
	Runtime   RuntimeConfig   `yaml:"runtime" toml:"runtime"`
	Transport TransportConfig `yaml:"transport" toml:"transport"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Trigger   TriggerConfig   `yaml:"trigger" toml:"trigger"`
	Log       LogConfig       `yaml:"log" toml:"log"`
}

// RuntimeConfig identifies the runtime and tunes its applies.
type RuntimeConfig struct {
	Name             string   `yaml:"name" toml:"name" hcl:"name,optional" env:"RUNTIME_NAME"`
	Hash             string   `yaml:"hash" toml:"hash" hcl:"hash,optional" env:"RUNTIME_HASH"`
	InstalledChunks  []string `yaml:"installed_chunks" toml:"installed_chunks" hcl:"installed_chunks,optional"`
	AutoApply        bool     `yaml:"auto_apply" toml:"auto_apply" hcl:"auto_apply,optional" env:"RUNTIME_AUTO_APPLY"`
	IgnoreDeclined   bool     `yaml:"ignore_declined" toml:"ignore_declined" hcl:"ignore_declined,optional" env:"RUNTIME_IGNORE_DECLINED"`
	IgnoreUnaccepted bool     `yaml:"ignore_unaccepted" toml:"ignore_unaccepted" hcl:"ignore_unaccepted,optional" env:"RUNTIME_IGNORE_UNACCEPTED"`
	IgnoreErrored    bool     `yaml:"ignore_errored" toml:"ignore_errored" hcl:"ignore_errored,optional" env:"RUNTIME_IGNORE_ERRORED"`
}

// TransportConfig selects where manifests and chunks are fetched from.
// Kind is "http" or "file".
type TransportConfig struct {
	Kind    string `yaml:"kind" toml:"kind" hcl:"kind,optional" env:"TRANSPORT_KIND"`
	URL     string `yaml:"url" toml:"url" hcl:"url,optional" env:"TRANSPORT_URL"`
	Dir     string `yaml:"dir" toml:"dir" hcl:"dir,optional" env:"TRANSPORT_DIR"`
	Timeout string `yaml:"timeout" toml:"timeout" hcl:"timeout,optional" env:"TRANSPORT_TIMEOUT"`
}

// RequestTimeout parses Timeout.
func (t TransportConfig) RequestTimeout() (time.Duration, error) {
	return time.ParseDuration(t.Timeout)
}

// ServerConfig configures the update server.
type ServerConfig struct {
	Addr string `yaml:"addr" toml:"addr" hcl:"addr,optional" env:"SERVER_ADDR"`
	Dir  string `yaml:"dir" toml:"dir" hcl:"dir,optional" env:"SERVER_DIR"`
}

// TriggerConfig chooses what starts a check. Any combination may be set.
type TriggerConfig struct {
	// Watch checks whenever a manifest appears in the transport directory.
	Watch bool `yaml:"watch" toml:"watch" hcl:"watch,optional" env:"TRIGGER_WATCH"`
	// Poll is a cron spec such as "@every 10s".
	Poll string `yaml:"poll" toml:"poll" hcl:"poll,optional" env:"TRIGGER_POLL"`
	// Socket is the URL of a dev server pushing hash and ok messages.
	Socket     string `yaml:"socket" toml:"socket" hcl:"socket,optional" env:"TRIGGER_SOCKET"`
	SocketPath string `yaml:"socket_path" toml:"socket_path" hcl:"socket_path,optional" env:"TRIGGER_SOCKET_PATH"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level" hcl:"level,optional" env:"LOG_LEVEL"`
	Format string `yaml:"format" toml:"format" hcl:"format,optional" env:"LOG_FORMAT"`
}

// Defaults returns the configuration used for every unset value.
func Defaults() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			Name: "main",
		},
		Transport: TransportConfig{
			Kind:    "file",
			Dir:     "hot-updates",
			Timeout: "30s",
		},
		Server: ServerConfig{
			Addr: ":8787",
			Dir:  "hot-updates",
		},
		Trigger: TriggerConfig{
			SocketPath: "/socket.io/",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
