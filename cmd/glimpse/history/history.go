package historycmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/glimpse/cmd/glimpse/settings"
	"github.com/papercomputeco/glimpse/pkg/merkle"
	"github.com/papercomputeco/glimpse/pkg/transcript"
)

const historyLongDesc string = `Show recorded conversations.

Without a hash, lists one line per conversation leaf: its hash, depth and
the start of its last message. With a hash, prints the conversation that
ends at that node, oldest message first.

Only the most recent messages of a conversation are shown, up to the
history window (history_window in the config file, 100 by default).
--window 0 shows every message.

Examples:
  glimpse history
  glimpse history 3f2a9c...
  glimpse history --window 10 3f2a9c...
  glimpse history --sqlite ./team.db --json`

const historyShortDesc string = "Show recorded conversations"

const hashWidth = 12

var roleStyle = lipgloss.NewStyle().Bold(true)

type historyCommander struct {
	opts       settings.Options
	sqlitePath string
	window     int
	asJSON     bool
}

func NewHistoryCmd() *cobra.Command {
	cmder := &historyCommander{}

	cmd := &cobra.Command{
		Use:   "history [hash]",
		Short: historyShortDesc,
		Long:  historyLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args)
		},
	}

	cmd.Flags().StringVarP(&cmder.opts.ConfigPath, "config", "c", "", "Path to a TOML or YAML config file")
	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to the transcript database (default ~/.glimpse/glimpse.db)")
	cmd.Flags().IntVarP(&cmder.window, "window", "w", 0, "Most recent messages to show per conversation, 0 for all (default from config)")
	cmd.Flags().BoolVar(&cmder.asJSON, "json", false, "Print JSON")

	return cmd
}

func (c *historyCommander) run(ctx context.Context, cmd *cobra.Command, args []string) error {
	cfg, err := c.opts.Resolve()
	if err != nil {
		return err
	}

	dbPath, err := cfg.DBPath(c.sqlitePath)
	if err != nil {
		return fmt.Errorf("could not resolve database: %w", err)
	}

	window := cfg.HistoryWindow
	if cmd.Flags().Changed("window") {
		if c.window < 0 {
			return fmt.Errorf("--window cannot be negative, got %d", c.window)
		}
		window = c.window
	}

	logger := settings.NewLogger(cfg)
	defer func() { _ = logger.Sync() }()

	recorder, storer, err := settings.OpenRecorder(dbPath, logger, transcript.WithWindow(window))
	if err != nil {
		return err
	}
	defer storer.Close()

	if len(args) == 1 {
		return c.showHistory(ctx, cmd, recorder, args[0])
	}
	return c.listHistories(ctx, cmd, recorder)
}

func (c *historyCommander) showHistory(ctx context.Context, cmd *cobra.Command, recorder *transcript.Recorder, hash string) error {
	history, err := recorder.History(ctx, hash)
	if err != nil {
		var notFound merkle.ErrNotFound
		if errors.As(err, &notFound) {
			return fmt.Errorf("no conversation ends at %s", hash)
		}
		return fmt.Errorf("could not load history: %w", err)
	}

	if c.asJSON {
		return writeJSON(cmd, history)
	}

	out := cmd.OutOrStdout()
	if hidden := history.Depth - len(history.Messages); hidden > 0 {
		fmt.Fprintf(out, "(%d earlier message(s) not shown)\n", hidden)
	}
	for _, msg := range history.Messages {
		fmt.Fprintf(out, "%s %s\n", roleStyle.Render(msg.Role+":"), msg.Content)
		if len(msg.Images) > 0 {
			fmt.Fprintf(out, "  [%d image(s)]\n", len(msg.Images))
		}
	}
	return nil
}

func (c *historyCommander) listHistories(ctx context.Context, cmd *cobra.Command, recorder *transcript.Recorder) error {
	histories, err := recorder.Histories(ctx)
	if err != nil {
		return fmt.Errorf("could not list histories: %w", err)
	}

	if c.asJSON {
		return writeJSON(cmd, histories)
	}

	out := cmd.OutOrStdout()
	if len(histories) == 0 {
		fmt.Fprintln(out, "No recorded conversations.")
		return nil
	}

	for _, h := range histories {
		last := h.Messages[len(h.Messages)-1]
		fmt.Fprintf(out, "%s  %d messages  %s\n", short(h.HeadHash), h.Depth, transcript.Preview(last.Content, 60))
	}
	return nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func short(hash string) string {
	if len(hash) <= hashWidth {
		return hash
	}
	return hash[:hashWidth]
}
