// Package config loads engine process configuration from an optional
// YAML file with environment-variable overrides. Chart state (symbols,
// levels, overlays) is not configured here; it lives in the persisted
// store and survives restarts on its own.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the engine's process-level settings.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	RESTBase   string `yaml:"rest_base"`
	StreamBase string `yaml:"stream_base"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`

	SQLitePath string `yaml:"sqlite_path"`
	ExportDir  string `yaml:"export_dir"`

	RelayURL string `yaml:"relay_url"`

	SpeechCommand string `yaml:"speech_command"`

	LogLevel string `yaml:"log_level"`
}

func defaults() Config {
	return Config{
		ListenAddr:    ":8085",
		MetricsAddr:   ":9091",
		RESTBase:      "", // feed package default
		StreamBase:    "", // feed package default
		RedisAddr:     "localhost:6379",
		SQLitePath:    "data/fibwatch.db",
		ExportDir:     "data/exports",
		SpeechCommand: "espeak",
		LogLevel:      "info",
	}
}

// Load reads path (when it exists), then applies env overrides. A
// missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// run on defaults + env
		case err != nil:
			return cfg, fmt.Errorf("read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.ListenAddr = getEnv("FIBWATCH_LISTEN_ADDR", c.ListenAddr)
	c.MetricsAddr = getEnv("FIBWATCH_METRICS_ADDR", c.MetricsAddr)
	c.RESTBase = getEnv("FIBWATCH_REST_BASE", c.RESTBase)
	c.StreamBase = getEnv("FIBWATCH_STREAM_BASE", c.StreamBase)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)
	c.ExportDir = getEnv("FIBWATCH_EXPORT_DIR", c.ExportDir)
	c.RelayURL = getEnv("FIBWATCH_RELAY_URL", c.RelayURL)
	c.SpeechCommand = getEnv("FIBWATCH_SPEECH_CMD", c.SpeechCommand)
	c.LogLevel = getEnv("FIBWATCH_LOG_LEVEL", c.LogLevel)
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q: want debug, info, warn or error", c.LogLevel)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
