package mcpcmder

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/glimpse/cmd/glimpse/settings"
	"github.com/papercomputeco/glimpse/pkg/describe"
	"github.com/papercomputeco/glimpse/pkg/mcpserver"
)

const mcpLongDesc string = `Run a Model Context Protocol server on stdin/stdout.

Tools:
  describe_image  {path, prompt?}          describe a local image file
  chat            {prompt, images?, model?} one chat turn with optional images

Logs go to stderr so they never interleave with protocol messages.

Example MCP client configuration:
  {"command": "glimpse", "args": ["mcp", "--model", "llava"]}`

const mcpShortDesc string = "Serve glimpse tools over MCP (stdio)"

type mcpCommander struct {
	opts   settings.Options
	record string
}

func NewMCPCmd() *cobra.Command {
	cmder := &mcpCommander{}

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: mcpShortDesc,
		Long:  mcpLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd.Root().Version)
		},
	}

	cmder.opts.AddFlags(cmd)
	cmd.Flags().StringVar(&cmder.record, "record", "", "Record every turn in this SQLite transcript database")

	return cmd
}

func (c *mcpCommander) run(ctx context.Context, version string) error {
	cfg, err := c.opts.Resolve()
	if err != nil {
		return err
	}

	logger := settings.NewLogger(cfg)
	defer func() { _ = logger.Sync() }()

	client, err := settings.NewClient(cfg, logger)
	if err != nil {
		return err
	}

	chatter, closeRecording, err := settings.Recording(cfg, c.record, client, logger)
	if err != nil {
		return err
	}
	defer closeRecording()

	describer := describe.New(chatter, cfg.Model, describe.WithLogger(logger))
	if version == "" {
		version = "dev"
	}

	return mcpserver.New(describer, chatter, cfg.Model, version, logger).Run(ctx)
}
