package rootcmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/glimpse/cmd/glimpse/chat"
	describecmder "github.com/papercomputeco/glimpse/cmd/glimpse/describe"
	historycmder "github.com/papercomputeco/glimpse/cmd/glimpse/history"
	mcpcmder "github.com/papercomputeco/glimpse/cmd/glimpse/mcp"
	mergecmder "github.com/papercomputeco/glimpse/cmd/glimpse/merge"
	modelscmder "github.com/papercomputeco/glimpse/cmd/glimpse/models"
	pushcmder "github.com/papercomputeco/glimpse/cmd/glimpse/push"
	servecmder "github.com/papercomputeco/glimpse/cmd/glimpse/serve"
	watchcmder "github.com/papercomputeco/glimpse/cmd/glimpse/watch"
)

const rootLongDesc string = `glimpse talks to a local Ollama model about images.

Run without a subcommand it behaves like "glimpse chat": it sends
./image.png to llama3.2-vision with a describe prompt, prints the full
response and then the elapsed minutes.

Configuration is read from ~/.glimpse/config.toml (or --config), then
OLLAMA_HOST and GLIMPSE_MODEL, then flags.`

const rootShortDesc string = "Chat with local vision models"

// NewRootCmd returns the glimpse command tree. The root runs chat.
func NewRootCmd(version string) *cobra.Command {
	cmd := chatcmder.NewChatCmd()
	cmd.Use = "glimpse"
	cmd.Short = rootShortDesc
	cmd.Long = rootLongDesc
	cmd.Version = version
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cmd.AddCommand(
		chatcmder.NewChatCmd(),
		describecmder.NewDescribeCmd(),
		modelscmder.NewModelsCmd(),
		servecmder.NewServeCmd(),
		watchcmder.NewWatchCmd(),
		mcpcmder.NewMCPCmd(),
		historycmder.NewHistoryCmd(),
		mergecmder.NewMergeCmd(),
		pushcmder.NewPushCmd(),
	)

	return cmd
}
