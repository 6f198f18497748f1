package llm

import "context"

// Chatter sends a single chat request and blocks until the full response
// is available.
type Chatter interface {
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}
