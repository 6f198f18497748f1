package describecmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/glimpse/cmd/glimpse/settings"
	"github.com/papercomputeco/glimpse/pkg/describe"
	"github.com/papercomputeco/glimpse/pkg/llm"
	"github.com/papercomputeco/glimpse/pkg/render"
	"github.com/papercomputeco/glimpse/pkg/timing"
)

const describeLongDesc string = `Describe one or more image files with a vision model.

Each image is sent in its own request. The description is printed followed
by the elapsed minutes for that image. With several images every
description is preceded by the image path.

Examples:
  glimpse describe photo.jpg
  glimpse describe --prompt "List every object you see." *.png`

const describeShortDesc string = "Describe image files"

type describeCommander struct {
	opts   settings.Options
	prompt string
	record string
}

func NewDescribeCmd() *cobra.Command {
	cmder := &describeCommander{}

	cmd := &cobra.Command{
		Use:   "describe <image>...",
		Short: describeShortDesc,
		Long:  describeLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args)
		},
	}

	cmder.opts.AddFlags(cmd)
	cmd.Flags().StringVarP(&cmder.prompt, "prompt", "p", "", "Instruction sent with each image")
	cmd.Flags().StringVar(&cmder.record, "record", "", "Record every turn in this SQLite transcript database")

	return cmd
}

func (c *describeCommander) run(ctx context.Context, cmd *cobra.Command, paths []string) error {
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

	timed := timing.Timed(client, nil)
	chatter, closeRecording, err := settings.Recording(cfg, c.record, timed, logger)
	if err != nil {
		return err
	}
	defer closeRecording()

	describer := describe.New(chatter, cfg.Model,
		describe.WithPrompt(c.prompt),
		describe.WithLogger(logger),
	)
	printer := render.NewPrinter(cmd.OutOrStdout())

	for _, path := range paths {
		description, err := describer.Describe(ctx, llm.ImageFromPath(path))
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		if len(paths) > 1 {
			if err := printer.Text(path + ":"); err != nil {
				return err
			}
		}
		if err := printer.Text(description); err != nil {
			return err
		}
		if err := printer.Elapsed(timed.LastMinutes()); err != nil {
			return err
		}
	}

	return nil
}
