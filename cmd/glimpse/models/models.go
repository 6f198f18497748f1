package modelscmder

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/glimpse/cmd/glimpse/settings"
)

const modelsLongDesc string = `List the models available on the Ollama backend.

Examples:
  glimpse models
  glimpse models --host gpu-box --json`

const modelsShortDesc string = "List available models"

type modelsCommander struct {
	opts   settings.Options
	asJSON bool
}

func NewModelsCmd() *cobra.Command {
	cmder := &modelsCommander{}

	cmd := &cobra.Command{
		Use:   "models",
		Short: modelsShortDesc,
		Long:  modelsLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmder.opts.AddFlags(cmd)
	cmd.Flags().BoolVar(&cmder.asJSON, "json", false, "Print the model list as JSON")

	return cmd
}

func (c *modelsCommander) run(ctx context.Context, cmd *cobra.Command) error {
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

	models, err := client.ListModels(ctx)
	if err != nil {
		return err
	}

	if c.asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(models)
	}

	if len(models) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No models available. Pull one with `ollama pull "+cfg.Model+"`.")
		return nil
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("NAME", "SIZE", "PARAMETERS", "MODIFIED")
	for _, m := range models {
		t.Row(m.Name, humanize.Bytes(uint64(max(m.Size, 0))), m.ParameterSize, m.ModifiedAt.Format("2006-01-02 15:04"))
	}

	fmt.Fprintln(cmd.OutOrStdout(), t.String())
	return nil
}
