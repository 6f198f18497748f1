package llm

import (
	"fmt"
	"strings"
)

// ChatRequest represents a chat completion request (Ollama-compatible).
type ChatRequest struct {
	Model    string    `json:"model"`            // Model name (e.g., "llama3.2-vision")
	Messages []Message `json:"messages"`         // Conversation history, oldest first
	Format   string    `json:"format,omitempty"` // Response format ("json" for JSON mode)

	// Generation options
	Options *Options `json:"options,omitempty"`

	// Keep model loaded, as a Go duration string ("5m", "0s")
	KeepAlive string `json:"keep_alive,omitempty"`
}

// Validate checks the request shape. It does not touch the filesystem or
// the network; image references are resolved by the client.
func (r *ChatRequest) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return InvalidInputError{Reason: "model is required"}
	}
	if len(r.Messages) == 0 {
		return InvalidInputError{Reason: "at least one message is required"}
	}

	for i, msg := range r.Messages {
		if !msg.Role.Valid() {
			return InvalidInputError{Reason: fmt.Sprintf("message %d has unknown role %q", i, msg.Role)}
		}
	}

	return nil
}

// Resolve returns a copy of the request in which every image carries its
// bytes. Readers of the copy all see the same content even if a file is
// rewritten after the call.
func (r *ChatRequest) Resolve() (*ChatRequest, error) {
	out := *r
	out.Messages = make([]Message, len(r.Messages))

	for i, msg := range r.Messages {
		out.Messages[i] = msg
		if len(msg.Images) == 0 {
			continue
		}

		out.Messages[i].Images = make([]Image, len(msg.Images))
		for j, img := range msg.Images {
			data, err := img.Bytes()
			if err != nil {
				return nil, err
			}
			out.Messages[i].Images[j] = Image{Path: img.Path, Data: data}
		}
	}

	return &out, nil
}
