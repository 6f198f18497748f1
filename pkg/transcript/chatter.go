package transcript

import (
	"context"

	"go.uber.org/zap"

	"github.com/papercomputeco/glimpse/pkg/llm"
)

type recordingChatter struct {
	next     llm.Chatter
	recorder *Recorder
}

// Wrap returns a Chatter that records every successful turn made through
// next. A storage failure is logged and does not fail the call. Images are
// read once, before next is called, so the recorded digests match the bytes
// that were sent.
func (r *Recorder) Wrap(next llm.Chatter) llm.Chatter {
	return &recordingChatter{next: next, recorder: r}
}

func (c *recordingChatter) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if req != nil {
		resolved, err := req.Resolve()
		if err != nil {
			return nil, err
		}
		req = resolved
	}

	resp, err := c.next.Chat(ctx, req)
	if err != nil {
		return nil, err
	}

	headHash, err := c.recorder.Record(ctx, llm.ConversationTurn{Request: req, Response: resp})
	if err != nil {
		c.recorder.logger.Error("failed to store conversation", zap.Error(err))
	} else {
		c.recorder.logger.Info("conversation stored", zap.String("head_hash", Preview(headHash, 16)))
	}

	return resp, nil
}
