// Package settings holds the flags every glimpse command shares and turns
// them, together with the config file and environment, into the components a
// command needs.
package settings

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/glimpse/pkg/config"
	"github.com/papercomputeco/glimpse/pkg/llm"
	"github.com/papercomputeco/glimpse/pkg/logger"
	"github.com/papercomputeco/glimpse/pkg/merkle"
	"github.com/papercomputeco/glimpse/pkg/ollama"
	"github.com/papercomputeco/glimpse/pkg/transcript"
)

// Options are the backend flags. Non-empty flag values win over the config
// file and the environment.
type Options struct {
	ConfigPath string
	Host       string
	Model      string
	KeepAlive  string
	Debug      bool

	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// AddFlags registers the shared flags on cmd.
func (o *Options) AddFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&o.ConfigPath, "config", "c", "", "Path to a TOML or YAML config file (default ~/.glimpse/config.toml)")
	f.StringVar(&o.Host, "host", "", "Ollama address (default $OLLAMA_HOST or http://127.0.0.1:11434)")
	f.StringVarP(&o.Model, "model", "m", "", "Model name (default $GLIMPSE_MODEL or llama3.2-vision)")
	f.StringVar(&o.KeepAlive, "keep-alive", "", "How long the model stays loaded after the call (e.g. 5m)")
	f.BoolVar(&o.Debug, "debug", false, "Enable debug logging")
}

// Resolve loads and validates the effective configuration.
func (o *Options) Resolve() (config.Config, error) {
	getenv := o.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg, err := config.Load(o.ConfigPath, getenv)
	if err != nil {
		return config.Config{}, err
	}

	if o.Host != "" {
		cfg.Host = o.Host
	}
	if o.Model != "" {
		cfg.Model = o.Model
	}
	if o.KeepAlive != "" {
		cfg.KeepAlive = o.KeepAlive
	}
	if o.Debug {
		cfg.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// NewLogger returns the stderr logger for cfg.
func NewLogger(cfg config.Config) *zap.Logger {
	return logger.NewLogger(cfg.Debug)
}

// NewClient returns a backend client for cfg.
func NewClient(cfg config.Config, logger *zap.Logger) (*ollama.Client, error) {
	client, err := ollama.New(ollama.Config{Host: cfg.Host}, logger)
	if err != nil {
		return nil, fmt.Errorf("could not create client: %w", err)
	}
	return client, nil
}

// OpenRecorder opens the SQLite transcript database at path. The caller
// closes the returned storer.
func OpenRecorder(path string, logger *zap.Logger, opts ...transcript.Option) (*transcript.Recorder, *merkle.SQLiteStorer, error) {
	storer, err := merkle.NewSQLiteStorer(path)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open transcript database %s: %w", path, err)
	}

	logger.Debug("recording transcripts", zap.String("path", path))
	return transcript.NewRecorder(storer, logger, opts...), storer, nil
}

// Recording wraps next so every turn is stored in the transcript database
// named by flagPath, or by the configured record path. Without either, next
// is returned unchanged. The returned close func is never nil.
func Recording(cfg config.Config, flagPath string, next llm.Chatter, logger *zap.Logger) (llm.Chatter, func() error, error) {
	path := flagPath
	if path == "" {
		path = cfg.Record
	}
	if path == "" {
		return next, func() error { return nil }, nil
	}

	recorder, storer, err := OpenRecorder(path, logger)
	if err != nil {
		return nil, nil, err
	}
	return recorder.Wrap(next), storer.Close, nil
}
