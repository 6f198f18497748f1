// Package mcpserver exposes image description and single-turn chat as
// Model Context Protocol tools.
package mcpserver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/glimpse/pkg/describe"
	"github.com/papercomputeco/glimpse/pkg/llm"
)

const (
	serverName = "glimpse"

	describeToolName = "describe_image"
	describeToolDesc = "Describe a local image file with a vision model. Returns the description as text."

	chatToolName = "chat"
	chatToolDesc = "Send a single prompt, optionally with local image files attached, and return the model's reply."
)

// DescribeInput is the argument of the describe_image tool.
type DescribeInput struct {
	Path   string `json:"path" jsonschema:"path of the image file to describe"`
	Prompt string `json:"prompt,omitempty" jsonschema:"instruction sent with the image; the server default is used when empty"`
}

// ChatInput is the argument of the chat tool.
type ChatInput struct {
	Prompt string   `json:"prompt" jsonschema:"the user message"`
	Images []string `json:"images,omitempty" jsonschema:"paths of image files to attach"`
	Model  string   `json:"model,omitempty" jsonschema:"model to use instead of the server default"`
}

// Server is an MCP server backed by a chatter.
type Server struct {
	describer *describe.Describer
	chatter   llm.Chatter
	model     string
	logger    *zap.Logger
	server    *mcp.Server
}

// New builds the MCP server and registers its tools. version is reported to
// clients during initialization.
func New(describer *describe.Describer, chatter llm.Chatter, model, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		describer: describer,
		chatter:   chatter,
		model:     model,
		logger:    logger,
		server:    mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil),
	}

	mcp.AddTool(s.server, &mcp.Tool{Name: describeToolName, Description: describeToolDesc}, s.handleDescribe)
	mcp.AddTool(s.server, &mcp.Tool{Name: chatToolName, Description: chatToolDesc}, s.handleChat)

	return s
}

// Run serves over stdin/stdout until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, &mcp.StdioTransport{})
}

// Serve serves a single session over transport.
func (s *Server) Serve(ctx context.Context, transport mcp.Transport) error {
	s.logger.Info("starting MCP server", zap.String("model", s.model))
	return s.server.Run(ctx, transport)
}

func (s *Server) handleDescribe(ctx context.Context, _ *mcp.CallToolRequest, in DescribeInput) (*mcp.CallToolResult, any, error) {
	if in.Path == "" {
		return errorResult(llm.InvalidInputError{Reason: "path is required"}), nil, nil
	}

	description, err := s.describer.DescribeWithPrompt(ctx, llm.ImageFromPath(in.Path), in.Prompt)
	if err != nil {
		s.logger.Warn("describe_image failed", zap.String("path", in.Path), zap.Error(err))
		return errorResult(err), nil, nil
	}

	return textResult(description), nil, nil
}

func (s *Server) handleChat(ctx context.Context, _ *mcp.CallToolRequest, in ChatInput) (*mcp.CallToolResult, any, error) {
	model := in.Model
	if model == "" {
		model = s.model
	}

	images := make([]llm.Image, 0, len(in.Images))
	for _, path := range in.Images {
		images = append(images, llm.ImageFromPath(path))
	}

	resp, err := s.chatter.Chat(ctx, &llm.ChatRequest{
		Model:    model,
		Messages: []llm.Message{llm.UserMessage(in.Prompt, images...)},
	})
	if err != nil {
		s.logger.Warn("chat failed", zap.String("model", model), zap.Error(err))
		return errorResult(err), nil, nil
	}

	return textResult(resp.Message.Content), nil, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error: %v", err)}},
	}
}
