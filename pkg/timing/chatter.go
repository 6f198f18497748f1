package timing

import (
	"context"
	"sync"
	"time"

	"github.com/papercomputeco/glimpse/pkg/llm"
)

// Chatter times the calls made through an llm.Chatter. Wrap the backend
// client directly so decorators layered on top, such as transcript
// recording, are not counted.
type Chatter struct {
	next llm.Chatter
	now  func() time.Time

	mu   sync.Mutex
	last time.Duration
}

// Timed returns a Chatter that times calls to next. A nil clock means time.Now.
func Timed(next llm.Chatter, now func() time.Time) *Chatter {
	return &Chatter{next: next, now: now}
}

func (c *Chatter) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	sw := Start(c.now)
	resp, err := c.next.Chat(ctx, req)
	elapsed := sw.Elapsed()

	c.mu.Lock()
	c.last = elapsed
	c.mu.Unlock()

	return resp, err
}

// Last returns the duration of the most recent call.
func (c *Chatter) Last() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// LastMinutes returns the duration of the most recent call in minutes.
func (c *Chatter) LastMinutes() float64 {
	return Minutes(c.Last())
}
