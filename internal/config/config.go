// Package config loads engine configuration and builds loggers.
//
// Configuration is resolved from, in order of precedence: explicit config
// file, OVC_* environment variables, then defaults. The resulting Config is
// passed to constructors explicitly; nothing reads configuration through
// package globals.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds the full engine configuration.
type Config struct {
	// DataDir is the root for local state (database, logs).
	DataDir string `mapstructure:"data_dir"`

	// Owner is the acting user's identity, required for addressing the
	// remote replica.
	Owner string `mapstructure:"owner"`

	// HubURL is the websocket endpoint of the replica hub.
	HubURL string `mapstructure:"hub_url"`

	// HubAddr is the listen address when hosting a hub locally.
	HubAddr string `mapstructure:"hub_addr"`

	// ImportDir, when set, is watched by the daemon; task JSON files
	// dropped there are imported as local creates.
	ImportDir string `mapstructure:"import_dir"`

	// LogFile, when set, receives rotated log output instead of stderr.
	LogFile string `mapstructure:"log_file"`

	// DrainRetryInterval is the delay before a failed drain is retried.
	DrainRetryInterval time.Duration `mapstructure:"drain_retry_interval"`

	// ProbeInterval is how often the daemon checks replica reachability.
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
}

// DatabasePath returns the record store location under DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "tasks.db")
}

// Load reads configuration. path may be empty, in which case only
// environment variables and defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	home, _ := os.UserHomeDir()
	v.SetDefault("data_dir", filepath.Join(home, ".overcooked"))
	v.SetDefault("owner", "")
	v.SetDefault("hub_url", "ws://127.0.0.1:7423/sync")
	v.SetDefault("hub_addr", ":7423")
	v.SetDefault("import_dir", "")
	v.SetDefault("log_file", "")
	v.SetDefault("drain_retry_interval", 30*time.Second)
	v.SetDefault("probe_interval", 15*time.Second)

	v.SetEnvPrefix("OVC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// NewLogger builds a component logger. With LogFile set, output goes to a
// size-rotated file shared by all components; otherwise stderr.
func (c *Config) NewLogger(prefix string) *log.Logger {
	if c.LogFile == "" {
		return log.New(os.Stderr, prefix, log.LstdFlags)
	}
	return log.New(&lumberjack.Logger{
		Filename:   c.LogFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}, prefix, log.LstdFlags)
}
