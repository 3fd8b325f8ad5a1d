package llm

import (
	"context"
	"errors"
	"sync"
)

// Reply is one scripted Fake response
type Reply struct {
	Text string
	Err  error
}

// Fake returns scripted replies in order and records every request.
// With no replies left it returns an error.
type Fake struct {
	mu       sync.Mutex
	replies  []Reply
	requests []Request
}

// NewFake creates a fake client that answers with replies
func NewFake(replies ...Reply) *Fake {
	return &Fake{replies: replies}
}

// Push appends scripted replies
func (f *Fake) Push(replies ...Reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, replies...)
}

// GenerateJSON implements Client
func (f *Fake) GenerateJSON(ctx context.Context, req Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(f.replies) == 0 {
		return "", errors.New("fake llm: no scripted reply")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r.Text, r.Err
}

// Requests returns the requests received so far
func (f *Fake) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// Close implements Client
func (f *Fake) Close() error {
	return nil
}
