package pushcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/glimpse/cmd/glimpse/settings"
	"github.com/papercomputeco/glimpse/pkg/merkle"
	"github.com/papercomputeco/glimpse/server"
)

const pushLongDesc string = `Send recorded conversations to another glimpse server.

Every conversation (one per leaf of the transcript DAG) is checked locally
first: a node whose hash no longer matches its content stops the push before
anything is sent. Conversations are then sent root first, so the server
always receives a parent before its children. Messages shared by several
conversations are sent once, with the first conversation that contains them.

The server stores nodes by hash, so pushing twice is harmless; the second
run reports everything as existing.

Examples:
  glimpse push http://192.168.1.42:8080
  glimpse push --dry-run http://localhost:8080
  glimpse push --sqlite ./team.db --batch-size 100 http://localhost:8080`

const pushShortDesc string = "Send recorded conversations to another glimpse server"

const hashWidth = 12

type pushCommander struct {
	opts       settings.Options
	sqlitePath string
	batchSize  int
	timeout    time.Duration
	dryRun     bool
}

func NewPushCmd() *cobra.Command {
	cmder := &pushCommander{}

	cmd := &cobra.Command{
		Use:   "push <server-url>",
		Short: pushShortDesc,
		Long:  pushLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&cmder.opts.ConfigPath, "config", "c", "", "Path to a TOML or YAML config file")
	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to the transcript database (default ~/.glimpse/glimpse.db)")
	cmd.Flags().IntVar(&cmder.batchSize, "batch-size", 500, "Most nodes sent in one request")
	cmd.Flags().DurationVar(&cmder.timeout, "timeout", 30*time.Second, "Per-request timeout")
	cmd.Flags().BoolVar(&cmder.dryRun, "dry-run", false, "Check and list what would be sent without sending it")

	return cmd
}

func (c *pushCommander) run(ctx context.Context, cmd *cobra.Command, serverURL string) error {
	if c.batchSize <= 0 {
		return fmt.Errorf("--batch-size must be positive, got %d", c.batchSize)
	}

	cfg, err := c.opts.Resolve()
	if err != nil {
		return err
	}

	dbPath, err := cfg.DBPath(c.sqlitePath)
	if err != nil {
		return fmt.Errorf("could not resolve database: %w", err)
	}

	logger := settings.NewLogger(cfg)
	defer func() { _ = logger.Sync() }()

	_, storer, err := settings.OpenRecorder(dbPath, logger)
	if err != nil {
		return err
	}
	defer storer.Close()

	conversations, err := planPush(ctx, storer)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(conversations) == 0 {
		fmt.Fprintln(out, "No recorded conversations.")
		return nil
	}

	if c.dryRun {
		pending := 0
		for _, conv := range conversations {
			pending += len(conv.nodes)
			fmt.Fprintf(out, "  %s  %d messages: %d to send\n", short(conv.head), conv.depth, len(conv.nodes))
		}
		fmt.Fprintf(out, "Dry run: %d nodes in %d conversations would be sent to %s\n",
			pending, len(conversations), serverURL)
		return nil
	}

	dest := &remote{
		url:    strings.TrimRight(serverURL, "/") + "/transcripts/nodes",
		client: &http.Client{Timeout: c.timeout},
		logger: logger,
	}

	fmt.Fprintf(out, "Pushing %d conversations from %s to %s\n", len(conversations), dbPath, serverURL)

	var total server.IngestResponse
	for _, conv := range conversations {
		result, err := dest.sendConversation(ctx, conv, c.batchSize)
		if err != nil {
			return fmt.Errorf("conversation %s: %w", short(conv.head), err)
		}

		fmt.Fprintf(out, "  %s  %d messages: %d new, %d existing", short(conv.head), conv.depth, result.New, result.Duplicate)
		if result.Errors > 0 {
			fmt.Fprintf(out, ", %d rejected", result.Errors)
		}
		fmt.Fprintln(out)

		total.New += result.New
		total.Duplicate += result.Duplicate
		total.Errors += result.Errors
	}

	fmt.Fprintf(out, "Pushed %d conversations: %d new, %d existing, %d rejected\n",
		len(conversations), total.New, total.Duplicate, total.Errors)

	if total.Errors > 0 {
		return fmt.Errorf("server rejected %d nodes", total.Errors)
	}
	return nil
}

// conversation is what one leaf adds to a push: the nodes of its chain that
// no earlier conversation already carries, root first.
type conversation struct {
	head  string
	depth int
	nodes []*merkle.Node
}

// planPush walks every leaf back to its root and checks each node against
// its hash. It fails on the first node that does not verify or whose parent
// is missing.
func planPush(ctx context.Context, storer merkle.Storer) ([]conversation, error) {
	leaves, err := storer.Leaves(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list conversations: %w", err)
	}

	planned := make(map[string]bool)
	conversations := make([]conversation, 0, len(leaves))

	for _, leaf := range leaves {
		chain, err := storer.Ancestry(ctx, leaf.Hash)
		if err != nil {
			return nil, fmt.Errorf("conversation %s is incomplete: %w", short(leaf.Hash), err)
		}
		slices.Reverse(chain)

		conv := conversation{head: leaf.Hash, depth: len(chain)}
		for _, node := range chain {
			if planned[node.Hash] {
				continue
			}
			if !node.Verify() {
				return nil, fmt.Errorf("node %s in conversation %s does not match its content; nothing was sent",
					node.Hash, short(leaf.Hash))
			}

			planned[node.Hash] = true
			conv.nodes = append(conv.nodes, node)
		}

		conversations = append(conversations, conv)
	}

	return conversations, nil
}

// remote is the node ingest endpoint of another glimpse server.
type remote struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

func (r *remote) sendConversation(ctx context.Context, conv conversation, batchSize int) (server.IngestResponse, error) {
	var result server.IngestResponse

	for chunk := range slices.Chunk(conv.nodes, batchSize) {
		resp, err := r.send(ctx, chunk)
		if err != nil {
			return result, err
		}

		result.New += resp.New
		result.Duplicate += resp.Duplicate
		result.Errors += resp.Errors
	}

	return result, nil
}

func (r *remote) send(ctx context.Context, nodes []*merkle.Node) (server.IngestResponse, error) {
	var result server.IngestResponse

	body, err := json.Marshal(nodes)
	if err != nil {
		return result, fmt.Errorf("could not encode nodes: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return result, fmt.Errorf("could not build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	r.logger.Debug("sending nodes", zap.String("url", r.url), zap.Int("count", len(nodes)))

	resp, err := r.client.Do(req)
	if err != nil {
		return result, fmt.Errorf("could not reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return result, fmt.Errorf("server answered %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return result, fmt.Errorf("could not decode server reply: %w", err)
	}
	return result, nil
}

func short(hash string) string {
	if len(hash) <= hashWidth {
		return hash
	}
	return hash[:hashWidth]
}
