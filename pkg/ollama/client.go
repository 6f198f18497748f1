// Package ollama is the chat client used to talk to an Ollama model-serving
// endpoint. Every call is a single blocking request: responses are never
// streamed and failures are never retried.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/papercomputeco/glimpse/pkg/llm"
)

// Client sends chat requests to a model-serving endpoint.
// It holds no per-call state and is safe for concurrent use.
type Client struct {
	host   *url.URL
	api    *api.Client
	logger *zap.Logger
}

// Model describes a model available on the backend.
type Model struct {
	Name          string    `json:"name"`
	Size          int64     `json:"size"`
	ModifiedAt    time.Time `json:"modified_at"`
	Family        string    `json:"family,omitempty"`
	ParameterSize string    `json:"parameter_size,omitempty"`
}

// New creates a Client for the configured endpoint.
func New(config Config, logger *zap.Logger) (*Client, error) {
	host, err := ParseHost(config.Host)
	if err != nil {
		return nil, err
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		host:   host,
		api:    api.NewClient(host, httpClient),
		logger: logger,
	}, nil
}

// Host returns the normalised endpoint address.
func (c *Client) Host() string {
	return c.host.String()
}

// Chat sends req and blocks until the backend has produced the full response.
// Image references are resolved before anything is sent, so an unreadable
// image fails with llm.InvalidInputError without a network call.
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if req == nil {
		return nil, llm.InvalidInputError{Reason: "request is nil"}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	apiReq, imageCount, err := toAPIRequest(req)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("sending chat request",
		zap.String("host", c.host.String()),
		zap.String("model", req.Model),
		zap.Int("message_count", len(req.Messages)),
		zap.Int("image_count", imageCount),
	)

	// stream=false should yield a single frame, but intermediaries may
	// still stream. Content is spread over the frames and metrics arrive on
	// the last one.
	var (
		final   *api.ChatResponse
		content strings.Builder
	)
	err = c.api.Chat(ctx, apiReq, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		final = &resp
		return nil
	})
	if err != nil {
		return nil, c.classify(req.Model, err)
	}
	if final == nil || !final.Done {
		return nil, llm.ErrIncompleteResponse
	}
	final.Message.Content = content.String()

	resp := fromAPIResponse(final)

	c.logger.Debug("received chat response",
		zap.String("model", resp.Model),
		zap.String("done_reason", resp.DoneReason),
		zap.Int("eval_count", resp.EvalCount),
		zap.Duration("total_duration", time.Duration(resp.TotalDuration)),
	)

	return resp, nil
}

// ListModels returns the models available on the backend.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	resp, err := c.api.List(ctx)
	if err != nil {
		return nil, c.classify("", err)
	}

	models := make([]Model, len(resp.Models))
	for i, m := range resp.Models {
		models[i] = Model{
			Name:          m.Name,
			Size:          m.Size,
			ModifiedAt:    m.ModifiedAt,
			Family:        m.Details.Family,
			ParameterSize: m.Details.ParameterSize,
		}
	}

	return models, nil
}

// Heartbeat checks that the backend is reachable.
func (c *Client) Heartbeat(ctx context.Context) error {
	if err := c.api.Heartbeat(ctx); err != nil {
		return c.classify("", err)
	}
	return nil
}

// classify maps a backend failure onto the llm error taxonomy.
func (c *Client) classify(model string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusNotFound && model != "" {
			return llm.ModelNotFoundError{Model: model, Err: err}
		}
		return fmt.Errorf("backend returned %d: %w", statusErr.StatusCode, err)
	}

	// The api client surfaces a JSON error body as a plain error string.
	if model != "" && isModelNotFound(err) {
		return llm.ModelNotFoundError{Model: model, Err: err}
	}

	var urlErr *url.Error
	var opErr *net.OpError
	if errors.As(err, &urlErr) || errors.As(err, &opErr) {
		return llm.ConnectionError{Host: c.host.String(), Err: err}
	}

	return fmt.Errorf("backend request failed: %w", err)
}

func isModelNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "model") && strings.Contains(msg, "not found")
}

func toAPIRequest(req *llm.ChatRequest) (*api.ChatRequest, int, error) {
	stream := false
	out := &api.ChatRequest{
		Model:    req.Model,
		Messages: make([]api.Message, 0, len(req.Messages)),
		Stream:   &stream,
		Options:  req.Options.Map(),
	}

	if req.Format != "" {
		out.Format = json.RawMessage(strconv.Quote(req.Format))
	}

	if req.KeepAlive != "" {
		d, err := time.ParseDuration(req.KeepAlive)
		if err != nil {
			return nil, 0, llm.InvalidInputError{Reason: fmt.Sprintf("keep_alive %q", req.KeepAlive), Err: err}
		}
		out.KeepAlive = &api.Duration{Duration: d}
	}

	imageCount := 0
	for _, msg := range req.Messages {
		m := api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		}

		for _, img := range msg.Images {
			data, err := img.Bytes()
			if err != nil {
				return nil, 0, err
			}
			m.Images = append(m.Images, api.ImageData(data))
			imageCount++
		}

		out.Messages = append(out.Messages, m)
	}

	return out, imageCount, nil
}

func fromAPIResponse(resp *api.ChatResponse) *llm.ChatResponse {
	role := llm.Role(resp.Message.Role)
	if role == "" {
		role = llm.RoleAssistant
	}

	return &llm.ChatResponse{
		Model:     resp.Model,
		CreatedAt: resp.CreatedAt,
		Message: llm.Message{
			Role:    role,
			Content: resp.Message.Content,
		},
		Done:               resp.Done,
		DoneReason:         resp.DoneReason,
		TotalDuration:      int64(resp.TotalDuration),
		LoadDuration:       int64(resp.LoadDuration),
		PromptEvalCount:    resp.PromptEvalCount,
		PromptEvalDuration: int64(resp.PromptEvalDuration),
		EvalCount:          resp.EvalCount,
		EvalDuration:       int64(resp.EvalDuration),
	}
}
