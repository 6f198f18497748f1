package servecmder

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/glimpse/cmd/glimpse/settings"
	"github.com/papercomputeco/glimpse/server"
)

const serveLongDesc string = `Serve the chat shim and the image describer over HTTP.

Endpoints:
  POST /api/chat             Ollama-compatible chat, always answered in one JSON object
  POST /api/describe         multipart "image" file, optional "prompt" and "model"
  GET  /health
  GET  /transcripts          one history per conversation leaf
  GET  /transcripts/stats
  GET  /transcripts/:hash    history ending at a node
  POST /transcripts/nodes    ingest nodes pushed with "glimpse push"

Every completed chat is recorded. Without --record the transcript lives in
memory and is lost on exit.

Examples:
  glimpse serve
  glimpse serve --listen :9090 --record ~/.glimpse/glimpse.db`

const serveShortDesc string = "Run the HTTP server"

type serveCommander struct {
	opts   settings.Options
	listen string
	record string
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context())
		},
	}

	cmder.opts.AddFlags(cmd)
	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address to listen on (default :8080)")
	cmd.Flags().StringVar(&cmder.record, "record", "", "SQLite transcript database (default in-memory)")

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	cfg, err := c.opts.Resolve()
	if err != nil {
		return err
	}
	if c.listen != "" {
		cfg.Listen = c.listen
	}
	if c.record != "" {
		cfg.Record = c.record
	}

	logger := settings.NewLogger(cfg)
	defer func() { _ = logger.Sync() }()

	client, err := settings.NewClient(cfg, logger)
	if err != nil {
		return err
	}

	if err := client.Heartbeat(ctx); err != nil {
		logger.Warn("backend is not reachable yet", zap.String("host", client.Host()), zap.Error(err))
	}

	srv, err := server.New(server.Config{
		ListenAddr: cfg.Listen,
		Model:      cfg.Model,
		Prompt:     cfg.Prompt,
		DBPath:     cfg.Record,

		HistoryWindow: cfg.HistoryWindow,
	}, client, logger)
	if err != nil {
		return err
	}
	defer srv.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down server")
		if err := srv.Shutdown(); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}
