// Package extraction hands a finished setup conversation to the extraction
// endpoint, which turns it into an interview record.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fmuoria/voice-interview-agent/internal/log"
	"github.com/fmuoria/voice-interview-agent/internal/models"
)

var (
	// ErrEmailRequired is returned when no candidate email was captured
	ErrEmailRequired = errors.New("please enter your email address before finishing the interview")
	// ErrExtractionFailed is returned when the endpoint rejects the transcript
	ErrExtractionFailed = errors.New("interview extraction failed")
)

// Payload is the request body of the extraction endpoint
type Payload struct {
	Transcript  string `json:"transcript"`
	RequesterID string `json:"requesterId"`
	Email       string `json:"email"`
}

// Response is the extraction endpoint's reply
type Response struct {
	Success     bool   `json:"success"`
	InterviewID string `json:"interviewId,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Client posts setup transcripts to the extraction endpoint
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a client for the given endpoint URL
func NewClient(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Client{endpoint: endpoint, httpClient: httpClient}
}

// Generate submits the transcript and returns the created interview id
func (c *Client) Generate(ctx context.Context, turns []models.Turn, requesterID, capturedEmail string) (string, error) {
	if strings.TrimSpace(capturedEmail) == "" {
		return "", ErrEmailRequired
	}

	body, err := json.Marshal(Payload{
		Transcript:  Serialize(turns),
		RequesterID: requesterID,
		Email:       capturedEmail,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call extraction endpoint: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn("extraction endpoint returned error", "status", resp.StatusCode, "body", string(raw))
		return "", fmt.Errorf("%w: status %d", ErrExtractionFailed, resp.StatusCode)
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: invalid response: %v", ErrExtractionFailed, err)
	}
	if !out.Success {
		return "", fmt.Errorf("%w: %s", ErrExtractionFailed, out.Error)
	}
	return out.InterviewID, nil
}

// Serialize renders turns one per line as "speaker: text"
func Serialize(turns []models.Turn) string {
	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = fmt.Sprintf("%s: %s", t.Speaker, t.Text)
	}
	return strings.Join(lines, "\n")
}
