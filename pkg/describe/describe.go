// Package describe produces natural-language descriptions of images using a
// vision-capable chat model.
package describe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/glimpse/pkg/llm"
)

// DefaultPrompt instructs the model to describe the attached image.
const DefaultPrompt = "You are an expert at providing a detailed description of the provided image."

// ErrEmptyDescription is returned when the model answers with no text.
var ErrEmptyDescription = errors.New("model returned an empty description")

// Describer describes images with a fixed model and prompt.
type Describer struct {
	chatter llm.Chatter
	model   string
	prompt  string
	logger  *zap.Logger
}

// Option customises a Describer.
type Option func(*Describer)

// WithPrompt replaces DefaultPrompt.
func WithPrompt(prompt string) Option {
	return func(d *Describer) {
		if strings.TrimSpace(prompt) != "" {
			d.prompt = prompt
		}
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Describer) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New returns a Describer that asks model through chatter.
func New(chatter llm.Chatter, model string, opts ...Option) *Describer {
	d := &Describer{
		chatter: chatter,
		model:   model,
		prompt:  DefaultPrompt,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Model returns the model used for descriptions.
func (d *Describer) Model() string {
	return d.model
}

// Describe returns the model's description of img.
func (d *Describer) Describe(ctx context.Context, img llm.Image) (string, error) {
	return d.DescribeWithPrompt(ctx, img, d.prompt)
}

// DescribeWithPrompt is Describe with a one-off prompt.
func (d *Describer) DescribeWithPrompt(ctx context.Context, img llm.Image, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		prompt = d.prompt
	}

	d.logger.Debug("generating description",
		zap.String("model", d.model),
		zap.String("image", img.Path),
	)

	resp, err := d.chatter.Chat(ctx, &llm.ChatRequest{
		Model:    d.model,
		Messages: []llm.Message{llm.UserMessage(prompt, img)},
	})
	if err != nil {
		return "", fmt.Errorf("describe image: %w", err)
	}

	description := strings.TrimSpace(resp.Message.Content)
	if description == "" {
		return "", ErrEmptyDescription
	}

	return description, nil
}
