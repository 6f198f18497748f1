// Package transcript records completed chat turns into a merkle DAG and reads
// them back as chronological histories.
//
// Content-addressability means:
//   - Identical message histories deduplicate (same hashes)
//   - Different responses to the same history branch from the common ancestor
//   - No session IDs are needed: the content is the identity
package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/papercomputeco/glimpse/pkg/llm"
	"github.com/papercomputeco/glimpse/pkg/merkle"
)

// DefaultWindow is the number of most recent messages a history shows
// unless configured otherwise.
const DefaultWindow = 100

// Recorder writes conversation turns to a merkle.Storer.
type Recorder struct {
	storer merkle.Storer
	logger *zap.Logger
	window int
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithWindow limits the histories a Recorder reads back to the n most
// recent messages. Zero or less keeps every message, which is the default.
func WithWindow(n int) Option {
	return func(r *Recorder) {
		r.window = n
	}
}

// History is the conversation leading up to (and including) a node.
type History struct {
	// Messages in chronological order (oldest first, up to and including the head).
	// Only the most recent messages are kept when a window applies.
	Messages []HistoryMessage `json:"messages"`
	HeadHash string           `json:"head_hash"`

	// Depth counts every message of the conversation, including those
	// outside the window.
	Depth int `json:"depth"`
}

// HistoryMessage is a single message of a History.
type HistoryMessage struct {
	Hash       string          `json:"hash"`
	ParentHash *string         `json:"parent_hash,omitempty"`
	Role       string          `json:"role"`
	Content    string          `json:"content"`
	Model      string          `json:"model,omitempty"`
	Images     []string        `json:"images,omitempty"`
	Metrics    *merkle.Metrics `json:"metrics,omitempty"`
}

// Stats summarises the shape of the stored DAG.
type Stats struct {
	TotalNodes int `json:"total_nodes"`
	RootCount  int `json:"root_count"`
	LeafCount  int `json:"leaf_count"`
}

// NewRecorder returns a Recorder backed by storer.
func NewRecorder(storer merkle.Storer, logger *zap.Logger, opts ...Option) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Recorder{storer: storer, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Window returns the configured history window; zero means unlimited.
func (r *Recorder) Window() int {
	if r.window < 0 {
		return 0
	}
	return r.window
}

// Storer returns the underlying node store.
func (r *Recorder) Storer() merkle.Storer {
	return r.storer
}

// Record stores every request message as a chained node followed by the
// response, and returns the hash of the response (head) node.
func (r *Recorder) Record(ctx context.Context, turn llm.ConversationTurn) (string, error) {
	if turn.Request == nil || turn.Response == nil {
		return "", errors.New("record turn: request and response are required")
	}

	var parent *merkle.Node
	for _, msg := range turn.Request.Messages {
		bucket, err := messageBucket(msg, turn.Request.Model)
		if err != nil {
			return "", err
		}

		node := merkle.NewNode(bucket, parent)
		if _, err := r.storer.Put(ctx, node); err != nil {
			return "", fmt.Errorf("storing message node: %w", err)
		}

		r.logger.Debug("stored message in transcript",
			zap.String("hash", Preview(node.Hash, 16)),
			zap.String("role", string(msg.Role)),
			zap.String("content_preview", Preview(msg.Content, 50)),
		)

		parent = node
	}

	resp := turn.Response
	responseBucket := merkle.Bucket{
		Type:    "message",
		Role:    string(resp.Message.Role),
		Content: resp.Message.Content,
		Model:   resp.Model,
		Metrics: &merkle.Metrics{
			TotalDurationNs: resp.TotalDuration,
			PromptEvalCount: resp.PromptEvalCount,
			EvalCount:       resp.EvalCount,
			EvalDurationNs:  resp.EvalDuration,
		},
	}

	responseNode := merkle.NewNode(responseBucket, parent)
	if _, err := r.storer.Put(ctx, responseNode); err != nil {
		return "", fmt.Errorf("storing response node: %w", err)
	}

	r.logger.Debug("stored response in transcript",
		zap.String("hash", Preview(responseNode.Hash, 16)),
		zap.String("content_preview", Preview(resp.Message.Content, 50)),
	)

	return responseNode.Hash, nil
}

// History returns the conversation ending at hash, oldest message first,
// limited to the recorder's window.
func (r *Recorder) History(ctx context.Context, hash string) (*History, error) {
	return r.HistoryWindow(ctx, hash, r.window)
}

// HistoryWindow is History with an explicit window. A window of zero or
// less keeps every message.
func (r *Recorder) HistoryWindow(ctx context.Context, hash string, window int) (*History, error) {
	ancestry, err := r.storer.Ancestry(ctx, hash)
	if err != nil {
		return nil, err
	}

	depth := len(ancestry)
	// Ancestry runs head first, so the window is its prefix.
	if window > 0 && depth > window {
		ancestry = ancestry[:window]
	}

	messages := make([]HistoryMessage, len(ancestry))
	for i, node := range ancestry {
		messages[len(ancestry)-1-i] = HistoryMessage{
			Hash:       node.Hash,
			ParentHash: node.ParentHash,
			Role:       node.Content.Role,
			Content:    node.Content.Content,
			Model:      node.Content.Model,
			Images:     node.Content.Images,
			Metrics:    node.Content.Metrics,
		}
	}

	return &History{
		Messages: messages,
		HeadHash: hash,
		Depth:    depth,
	}, nil
}

// Histories returns one history per leaf node, each limited to the
// recorder's window.
func (r *Recorder) Histories(ctx context.Context) ([]History, error) {
	leaves, err := r.storer.Leaves(ctx)
	if err != nil {
		return nil, fmt.Errorf("list leaves: %w", err)
	}

	histories := make([]History, 0, len(leaves))
	for _, leaf := range leaves {
		history, err := r.History(ctx, leaf.Hash)
		if err != nil {
			r.logger.Warn("failed to build history for leaf", zap.String("hash", leaf.Hash), zap.Error(err))
			continue
		}
		histories = append(histories, *history)
	}

	return histories, nil
}

// Stats counts nodes, roots and leaves.
func (r *Recorder) Stats(ctx context.Context) (Stats, error) {
	nodes, err := r.storer.List(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list nodes: %w", err)
	}
	roots, err := r.storer.Roots(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list roots: %w", err)
	}
	leaves, err := r.storer.Leaves(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list leaves: %w", err)
	}

	return Stats{
		TotalNodes: len(nodes),
		RootCount:  len(roots),
		LeafCount:  len(leaves),
	}, nil
}

func messageBucket(msg llm.Message, model string) (merkle.Bucket, error) {
	b := merkle.Bucket{
		Type:    "message",
		Role:    string(msg.Role),
		Content: msg.Content,
		Model:   model,
	}

	for _, img := range msg.Images {
		digest, err := img.Digest()
		if err != nil {
			return merkle.Bucket{}, err
		}
		b.Images = append(b.Images, digest)
	}

	return b, nil
}

// Preview collapses whitespace in s and cuts it to at most maxRunes runes,
// marking a cut with "...". It never splits a multi-byte character.
func Preview(s string, maxRunes int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return string([]rune(s)[:maxRunes]) + "..."
}
