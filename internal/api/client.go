package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/fmuoria/voice-interview-agent/internal/feedback"
	"github.com/fmuoria/voice-interview-agent/internal/models"
	"github.com/fmuoria/voice-interview-agent/internal/session"
	"github.com/fmuoria/voice-interview-agent/internal/store"
)

// Error is a non-2xx API reply
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Unwrap maps error codes back to the package sentinels
func (e *Error) Unwrap() error {
	switch e.Code {
	case CodeTooShort:
		return feedback.ErrTooShort
	case CodeEmptyTranscript:
		return feedback.ErrEmptyTranscript
	case CodeNotFound:
		return store.ErrNotFound
	case CodeInvalidSession:
		return session.ErrSessionNotFound
	}
	return nil
}

// Client is a typed client for the API. It keeps cookies, so a session
// created with SignIn applies to later calls.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL
func NewClient(baseURL string) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 3 * time.Minute, Jar: jar},
	}
}

// SignIn resolves a candidate session and stores its cookie
func (c *Client) SignIn(ctx context.Context, email, code string) (models.CandidateSession, error) {
	var out SessionResponse
	if err := c.do(ctx, http.MethodPost, "/sessions", SessionRequest{Email: email, SessionCode: code}, &out); err != nil {
		return models.CandidateSession{}, err
	}
	if out.Session == nil {
		return models.CandidateSession{}, fmt.Errorf("server returned no session")
	}
	return *out.Session, nil
}

// SignOut clears the candidate session
func (c *Client) SignOut(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/sessions", nil, nil)
}

// GetInterview fetches the questions of an interview
func (c *Client) GetInterview(ctx context.Context, id string) (InterviewView, error) {
	var out InterviewView
	err := c.do(ctx, http.MethodGet, "/interviews/"+id, nil, &out)
	return out, err
}

// ListFeedback fetches an interview's feedback records
func (c *Client) ListFeedback(ctx context.Context, interviewID string) ([]models.FeedbackRecord, error) {
	var out []models.FeedbackRecord
	err := c.do(ctx, http.MethodGet, "/interviews/"+interviewID+"/feedback", nil, &out)
	return out, err
}

// GetFeedback fetches one feedback record
func (c *Client) GetFeedback(ctx context.Context, id string) (models.FeedbackRecord, error) {
	var out models.FeedbackRecord
	err := c.do(ctx, http.MethodGet, "/feedback/"+id, nil, &out)
	return out, err
}

// Generate implements agent.FeedbackGenerator against POST /feedback
func (c *Client) Generate(ctx context.Context, req feedback.Request) (feedback.Result, error) {
	var out FeedbackResponse
	err := c.do(ctx, http.MethodPost, "/feedback", FeedbackRequest{
		InterviewID:    req.InterviewID,
		UserID:         req.OwnerUserID,
		Transcript:     req.Transcript,
		CandidateEmail: req.CandidateEmail,
		FeedbackID:     req.ExistingFeedbackID,
	}, &out)
	return out.Result, err
}

// RetryCompletions triggers one reconcile pass
func (c *Client) RetryCompletions(ctx context.Context) (feedback.ReconcileReport, error) {
	var out feedback.ReconcileReport
	err := c.do(ctx, http.MethodPost, "/admin/completions/retry", nil, &out)
	return out, err
}

// ExtractURL is the endpoint extraction.Client posts setup transcripts to
func (c *Client) ExtractURL() string {
	return c.baseURL + "/extract"
}

// HTTPClient returns the cookie-keeping HTTP client
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var payload struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Code = payload.Code
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
