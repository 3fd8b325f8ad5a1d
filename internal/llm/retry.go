package llm

import (
	"context"
	"strings"
	"time"
)

// Rate limit retry settings
const (
	maxRetries   = 3
	retryBackoff = 10 * time.Second
)

// isRateLimitError checks if an error is a quota or rate limit rejection
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "resourceexhausted") ||
		strings.Contains(msg, "resource exhausted") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "quota")
}

type retrying struct {
	next    Client
	backoff time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// WithRetry retries rate-limited calls with linear backoff. Other errors
// are returned immediately.
func WithRetry(next Client) Client {
	return &retrying{next: next, backoff: retryBackoff, sleep: sleepContext}
}

// GenerateJSON implements Client
func (r *retrying) GenerateJSON(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		out, err := r.next.GenerateJSON(ctx, req)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isRateLimitError(err) || attempt == maxRetries {
			break
		}
		if err := r.sleep(ctx, r.backoff*time.Duration(attempt+1)); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

// Close implements Client
func (r *retrying) Close() error {
	return r.next.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
