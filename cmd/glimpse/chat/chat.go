package chatcmder

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/glimpse/cmd/glimpse/settings"
	"github.com/papercomputeco/glimpse/pkg/llm"
	"github.com/papercomputeco/glimpse/pkg/render"
	"github.com/papercomputeco/glimpse/pkg/timing"
)

const chatLongDesc string = `Send one chat request, print the full response and the elapsed minutes.

With no flags this describes ./image.png with llama3.2-vision on the local
Ollama. Every image given with --image is attached to the single user
message; pass --image "" to send the prompt alone.

The response is printed as JSON, or rendered as markdown with --markdown.
The elapsed time is measured around the backend call and printed in
minutes on the last line.

Examples:
  glimpse chat
  glimpse chat --model llava --image cat.jpg --prompt "What breed is this?"
  glimpse chat --image before.png --image after.png --prompt "What changed?"
  glimpse chat --record ~/.glimpse/glimpse.db --markdown`

const chatShortDesc string = "Chat with a model about one or more images"

type chatCommander struct {
	opts     settings.Options
	prompt   string
	system   string
	images   []string
	format   string
	markdown bool
	record   string
	timeout  time.Duration
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmder.opts.AddFlags(cmd)
	cmd.Flags().StringVarP(&cmder.prompt, "prompt", "p", "", "User message (default from config)")
	cmd.Flags().StringVar(&cmder.system, "system", "", "Optional system message sent before the prompt")
	cmd.Flags().StringArrayVarP(&cmder.images, "image", "i", nil, "Image file to attach (repeatable, default ./image.png)")
	cmd.Flags().StringVar(&cmder.format, "format", "", `Constrain the reply format (e.g. "json")`)
	cmd.Flags().BoolVar(&cmder.markdown, "markdown", false, "Render the reply as markdown instead of JSON")
	cmd.Flags().StringVar(&cmder.record, "record", "", "Record the turn in this SQLite transcript database")
	cmd.Flags().DurationVar(&cmder.timeout, "timeout", 0, "Give up after this long (default no limit)")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, cmd *cobra.Command) error {
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

	// Elapsed time covers the backend call only, not recording.
	timed := timing.Timed(client, nil)
	chatter, closeRecording, err := settings.Recording(cfg, c.record, timed, logger)
	if err != nil {
		return err
	}
	defer closeRecording()

	req := &llm.ChatRequest{
		Model:     cfg.Model,
		Messages:  c.messages(cmd, cfg.Prompt, cfg.Image),
		KeepAlive: cfg.KeepAlive,
	}
	if c.format != "" {
		req.Format = c.format
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	logger.Debug("sending chat request",
		zap.String("host", client.Host()),
		zap.String("model", req.Model),
		zap.Int("images", len(req.Messages[len(req.Messages)-1].Images)),
	)

	resp, err := chatter.Chat(ctx, req)
	if err != nil {
		return err
	}
	minutes := timed.LastMinutes()

	printer := render.NewPrinter(cmd.OutOrStdout(), render.WithMarkdown(c.markdown || cfg.Markdown))
	if err := printer.Response(resp); err != nil {
		return fmt.Errorf("could not print response: %w", err)
	}
	return printer.Elapsed(minutes)
}

func (c *chatCommander) messages(cmd *cobra.Command, defaultPrompt, defaultImage string) []llm.Message {
	prompt := firstNonEmpty(c.prompt, defaultPrompt)

	paths := []string{defaultImage}
	if cmd.Flags().Changed("image") {
		paths = c.images
	}

	var images []llm.Image
	for _, path := range paths {
		if path != "" {
			images = append(images, llm.ImageFromPath(path))
		}
	}

	var msgs []llm.Message
	if c.system != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: c.system})
	}
	return append(msgs, llm.UserMessage(prompt, images...))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
