// Package config resolves glimpse settings from defaults, an optional config
// file and the environment. Command-line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/papercomputeco/glimpse/pkg/ollama"
	"github.com/papercomputeco/glimpse/pkg/transcript"
)

const (
	DefaultModel  = "llama3.2-vision"
	DefaultPrompt = "you are an expert at describing the following image"
	DefaultImage  = "image.png"
	DefaultListen = ":8080"

	// EnvHost overrides the backend address, as with the ollama CLI.
	EnvHost = "OLLAMA_HOST"
	// EnvModel overrides the default model.
	EnvModel = "GLIMPSE_MODEL"
)

// Config holds all application configuration.
type Config struct {
	// Backend
	Host      string `toml:"host" yaml:"host"`
	Model     string `toml:"model" yaml:"model"`
	KeepAlive string `toml:"keep_alive" yaml:"keep_alive"`

	// Default chat input
	Prompt string `toml:"prompt" yaml:"prompt"`
	Image  string `toml:"image" yaml:"image"`

	// Server
	Listen string `toml:"listen" yaml:"listen"`

	// Record is the SQLite transcript path. Empty disables recording.
	Record string `toml:"record" yaml:"record"`

	// HistoryWindow is how many of the most recent messages a recorded
	// conversation shows when read back. Zero shows all of them.
	HistoryWindow int `toml:"history_window" yaml:"history_window"`

	Debug    bool `toml:"debug" yaml:"debug"`
	Markdown bool `toml:"markdown" yaml:"markdown"`
}

// Default returns the configuration used when nothing is configured. It
// reproduces a local "describe image.png with llama3.2-vision" call.
func Default() Config {
	return Config{
		Host:   ollama.DefaultHost,
		Model:  DefaultModel,
		Prompt: DefaultPrompt,
		Image:  DefaultImage,
		Listen: DefaultListen,

		HistoryWindow: transcript.DefaultWindow,
	}
}

// DefaultPath returns ~/.glimpse/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".glimpse", "config.toml"), nil
}

// DefaultDBPath returns ~/.glimpse/glimpse.db, the transcript database used
// when neither a flag nor the config file names one.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".glimpse", "glimpse.db"), nil
}

// DBPath returns the transcript database to use: flagValue, then Record,
// then DefaultDBPath.
func (c Config) DBPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if c.Record != "" {
		return c.Record, nil
	}
	return DefaultDBPath()
}

// Load builds the configuration. An explicit path must exist; with an empty
// path the default location is used only if present.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()

	if path == "" {
		if p, err := DefaultPath(); err == nil {
			if _, statErr := os.Stat(p); statErr == nil {
				path = p
			}
		}
	}

	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	if getenv != nil {
		cfg.applyEnv(getenv)
	}

	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml", "":
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("parse config file %q: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config file %q: %w", path, err)
		}
	default:
		return fmt.Errorf("config file %q: unsupported format %q", path, ext)
	}

	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvHost)); v != "" {
		c.Host = v
	}
	if v := strings.TrimSpace(getenv(EnvModel)); v != "" {
		c.Model = v
	}
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Host) == "" {
		errs = append(errs, errors.New("host cannot be empty"))
	} else if _, err := ollama.ParseHost(c.Host); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, errors.New("model cannot be empty"))
	}
	if c.KeepAlive != "" {
		if _, err := time.ParseDuration(c.KeepAlive); err != nil {
			errs = append(errs, fmt.Errorf("keep_alive: %w", err))
		}
	}
	if c.HistoryWindow < 0 {
		errs = append(errs, fmt.Errorf("history_window cannot be negative, got %d", c.HistoryWindow))
	}

	return errors.Join(errs...)
}
