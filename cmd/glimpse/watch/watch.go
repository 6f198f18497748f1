package watchcmder

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/glimpse/cmd/glimpse/settings"
	"github.com/papercomputeco/glimpse/pkg/describe"
	"github.com/papercomputeco/glimpse/pkg/llm"
	"github.com/papercomputeco/glimpse/pkg/render"
	"github.com/papercomputeco/glimpse/pkg/timing"
	"github.com/papercomputeco/glimpse/pkg/watch"
)

const watchLongDesc string = `Watch a directory and describe every image written to it.

An image is described once it has stopped changing for the settle period.
Each description is printed with the image path and the elapsed minutes.
Failures are logged and watching continues. Stop with Ctrl-C.

Examples:
  glimpse watch ~/Screenshots
  glimpse watch --settle 2s --record ~/.glimpse/glimpse.db ./incoming`

const watchShortDesc string = "Describe images as they appear in a directory"

type watchCommander struct {
	opts   settings.Options
	prompt string
	record string
	settle time.Duration
}

func NewWatchCmd() *cobra.Command {
	cmder := &watchCommander{}

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: watchShortDesc,
		Long:  watchLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args[0])
		},
	}

	cmder.opts.AddFlags(cmd)
	cmd.Flags().StringVarP(&cmder.prompt, "prompt", "p", "", "Instruction sent with each image")
	cmd.Flags().StringVar(&cmder.record, "record", "", "Record every turn in this SQLite transcript database")
	cmd.Flags().DurationVar(&cmder.settle, "settle", watch.DefaultSettle, "Quiet period before a changed file is described")

	return cmd
}

func (c *watchCommander) run(ctx context.Context, cmd *cobra.Command, dir string) error {
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

	h := &handler{
		describer: describe.New(chatter, cfg.Model, describe.WithPrompt(c.prompt), describe.WithLogger(logger)),
		timed:     timed,
		printer:   render.NewPrinter(cmd.OutOrStdout()),
		logger:    logger,
	}

	w, err := watch.New(dir, h.describe, watch.WithSettle(c.settle), watch.WithLogger(logger))
	if err != nil {
		return err
	}

	return w.Run(ctx)
}

// handler is called sequentially by the watcher.
type handler struct {
	describer *describe.Describer
	timed     *timing.Chatter
	printer   *render.Printer
	logger    *zap.Logger
}

func (h *handler) describe(ctx context.Context, path string) {
	description, err := h.describer.Describe(ctx, llm.ImageFromPath(path))
	if err != nil {
		h.logger.Error("failed to describe image", zap.String("path", path), zap.Error(err))
		return
	}

	_ = h.printer.Text(path + ":")
	_ = h.printer.Text(description)
	_ = h.printer.Elapsed(h.timed.LastMinutes())
}
