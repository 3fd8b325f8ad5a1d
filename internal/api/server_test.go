package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmuoria/voice-interview-agent/internal/feedback"
	"github.com/fmuoria/voice-interview-agent/internal/interviews"
	"github.com/fmuoria/voice-interview-agent/internal/llm"
	"github.com/fmuoria/voice-interview-agent/internal/models"
	"github.com/fmuoria/voice-interview-agent/internal/session"
	"github.com/fmuoria/voice-interview-agent/internal/store"
)

const scoredReply = `{
  "totalScore": 82,
  "categoryScores": [
    {"name": "Communication Skills", "score": 85, "comment": "Clear"},
    {"name": "Technical Knowledge", "score": 80, "comment": "Solid"},
    {"name": "Problem Solving", "score": 78, "comment": "Methodical"},
    {"name": "Cultural Fit", "score": 84, "comment": "Engaged"},
    {"name": "Confidence and Clarity", "score": 83, "comment": "Steady"}
  ],
  "strengths": ["Concrete examples"],
  "areasForImprovement": ["Shorter answers"],
  "finalAssessment": "Recommended for the next round."
}`

var invitedAt = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// flakyStore fails completion marks while failing is set
type flakyStore struct {
	*store.Memory
	mu      sync.Mutex
	failing bool
}

func (f *flakyStore) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

func (f *flakyStore) ApplyCompletion(ctx context.Context, feedbackID string) error {
	f.mu.Lock()
	failing := f.failing
	f.mu.Unlock()
	if failing {
		return errors.New("completion write timed out")
	}
	return f.Memory.ApplyCompletion(ctx, feedbackID)
}

type testEnv struct {
	store  *flakyStore
	llm    *llm.Fake
	router http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.CreateInterview(context.Background(), models.InterviewRecord{
		ID:          "int-1",
		OwnerUserID: "hr-1",
		Role:        "Backend Engineer",
		Questions:   []string{"Why Go?", "Describe a hard bug.", "How do you test?"},
		CreatedAt:   invitedAt,
		Finalized:   true,
		Shape:       models.ShapeRoster,
		Candidates: []models.Candidate{
			{Email: "a@x.com", SessionCode: "AAAA1111"},
			{Email: "b@x.com", SessionCode: "BBBB2222"},
		},
	}))

	fs := &flakyStore{Memory: mem}
	client := llm.NewFake()
	srv := NewServer(Deps{
		Extractor:  interviews.NewExtractor(client, fs, nil),
		Resolver:   session.NewResolver(fs),
		Store:      fs,
		Feedback:   feedback.NewGenerator(client, fs),
		Reconciler: feedback.NewReconciler(fs, 10),
	})
	return &testEnv{store: fs, llm: client, router: srv.Router()}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func answered(n int) []models.Turn {
	var turns []models.Turn
	for i := 0; i < n; i++ {
		turns = append(turns,
			models.Turn{Speaker: models.SpeakerInterviewer, Text: fmt.Sprintf("Question %d?", i+1)},
			models.Turn{Speaker: models.SpeakerCandidate, Text: fmt.Sprintf("Answer %d.", i+1)},
		)
	}
	return turns
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHealthAndRoot(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = env.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "POST /feedback")
}

func TestCreateSession(t *testing.T) {
	tests := []struct {
		name       string
		email      string
		code       string
		wantStatus int
	}{
		{name: "Valid pair", email: "b@x.com", code: "BBBB2222", wantStatus: http.StatusOK},
		{name: "Lower-case code", email: "b@x.com", code: "bbbb2222", wantStatus: http.StatusOK},
		{name: "Code of another candidate", email: "b@x.com", code: "AAAA1111", wantStatus: http.StatusUnauthorized},
		{name: "Unknown email", email: "c@x.com", code: "AAAA1111", wantStatus: http.StatusUnauthorized},
		{name: "Empty code", email: "a@x.com", code: "", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(t, http.MethodPost, "/sessions", SessionRequest{Email: tt.email, SessionCode: tt.code})
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			cookies := rec.Result().Cookies()
			if tt.wantStatus != http.StatusOK {
				assert.Contains(t, rec.Body.String(), CodeInvalidSession)
				assert.Nil(t, findCookie(cookies, CandidateCookie))
				return
			}

			var resp SessionResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.NotNil(t, resp.Session)
			assert.Equal(t, "int-1", resp.Session.InterviewID)
			assert.Equal(t, "BBBB2222", resp.Session.SessionCode)
			assert.True(t, resp.Session.AssignedAt.Equal(invitedAt), "assignedAt = %v", resp.Session.AssignedAt)

			sc := findCookie(cookies, CandidateCookie)
			require.NotNil(t, sc)
			assert.True(t, sc.HttpOnly)
			assert.Equal(t, int(sessionMaxAge.Seconds()), sc.MaxAge)

			hr := findCookie(cookies, HRCookie)
			require.NotNil(t, hr)
			assert.Equal(t, -1, hr.MaxAge)

			cur := env.do(t, http.MethodGet, "/sessions/current", nil, sc)
			assert.Equal(t, http.StatusOK, cur.Code)
			assert.Contains(t, cur.Body.String(), "b@x.com")
		})
	}
}

func TestCurrentSessionWithoutCookie(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/sessions/current", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	bad := &http.Cookie{Name: CandidateCookie, Value: "not-base64!"}
	rec = env.do(t, http.MethodGet, "/sessions/current", nil, bad)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeleteSessionClearsCookie(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodDelete, "/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	c := findCookie(rec.Result().Cookies(), CandidateCookie)
	require.NotNil(t, c)
	assert.Equal(t, -1, c.MaxAge)
}

func TestGetInterview(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/interviews/int-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view InterviewView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "Backend Engineer", view.Role)
	assert.Len(t, view.Questions, 3)
	assert.NotContains(t, rec.Body.String(), "AAAA1111", "session codes must not leak")

	rec = env.do(t, http.MethodGet, "/interviews/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateFeedback(t *testing.T) {
	tests := []struct {
		name       string
		body       FeedbackRequest
		replies    []llm.Reply
		wantStatus int
		wantCode   string
		degraded   bool
	}{
		{
			name:       "Scored",
			body:       FeedbackRequest{InterviewID: "int-1", UserID: "u", Transcript: answered(3), CandidateEmail: "a@x.com"},
			replies:    []llm.Reply{{Text: scoredReply}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "Scoring failure stores fallback",
			body:       FeedbackRequest{InterviewID: "int-1", Transcript: answered(4), CandidateEmail: "a@x.com"},
			replies:    []llm.Reply{{Err: errors.New("model unavailable")}},
			wantStatus: http.StatusOK,
			degraded:   true,
		},
		{
			name:       "Too short",
			body:       FeedbackRequest{InterviewID: "int-1", Transcript: answered(2)},
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeTooShort,
		},
		{
			name:       "Empty transcript",
			body:       FeedbackRequest{InterviewID: "int-1"},
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeEmptyTranscript,
		},
		{
			name:       "Unknown interview",
			body:       FeedbackRequest{InterviewID: "missing", Transcript: answered(3)},
			wantStatus: http.StatusNotFound,
			wantCode:   CodeNotFound,
		},
		{
			name:       "Missing interview id",
			body:       FeedbackRequest{Transcript: answered(3)},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.llm.Push(tt.replies...)

			rec := env.do(t, http.MethodPost, "/feedback", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantCode != "" {
				assert.Contains(t, rec.Body.String(), tt.wantCode)
			}
			if tt.wantStatus != http.StatusOK {
				assert.Empty(t, env.llm.Requests(), "no scoring call expected")
				return
			}

			var resp FeedbackResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.True(t, resp.Success)
			assert.Equal(t, tt.degraded, resp.Degraded)
			assert.False(t, resp.CompletionPending)

			stored, err := env.store.GetFeedback(context.Background(), resp.FeedbackID)
			require.NoError(t, err)
			assert.Equal(t, tt.degraded, stored.SystemError)

			got, err := env.store.GetInterview(context.Background(), "int-1")
			require.NoError(t, err)
			a, _ := got.FindCandidate("a@x.com")
			b, _ := got.FindCandidate("b@x.com")
			assert.True(t, a.Completed)
			assert.False(t, b.Completed)
		})
	}
}

func TestCreateFeedbackUsesSessionEmail(t *testing.T) {
	env := newTestEnv(t)
	env.llm.Push(llm.Reply{Text: scoredReply})

	rec := env.do(t, http.MethodPost, "/sessions", SessionRequest{Email: "b@x.com", SessionCode: "BBBB2222"})
	require.Equal(t, http.StatusOK, rec.Code)
	sc := findCookie(rec.Result().Cookies(), CandidateCookie)
	require.NotNil(t, sc)

	rec = env.do(t, http.MethodPost, "/feedback", FeedbackRequest{InterviewID: "int-1", Transcript: answered(3)}, sc)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got, err := env.store.GetInterview(context.Background(), "int-1")
	require.NoError(t, err)
	b, _ := got.FindCandidate("b@x.com")
	assert.True(t, b.Completed)
	assert.Equal(t, 1, got.CompletedCount())
}

func TestFeedbackListAndReport(t *testing.T) {
	env := newTestEnv(t)
	env.llm.Push(llm.Reply{Text: scoredReply})

	rec := env.do(t, http.MethodPost, "/feedback", FeedbackRequest{InterviewID: "int-1", Transcript: answered(3), CandidateEmail: "a@x.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	var created FeedbackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = env.do(t, http.MethodGet, "/interviews/int-1/feedback", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.FeedbackRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, 82.0, list[0].TotalScore)

	rec = env.do(t, http.MethodGet, "/feedback/"+created.FeedbackID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/feedback/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/interviews/int-1/report.xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "interview-int-1.xlsx")
	// xlsx files are zip archives
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}

func TestCompletionRetry(t *testing.T) {
	env := newTestEnv(t)
	env.llm.Push(llm.Reply{Text: scoredReply})
	env.store.setFailing(true)

	rec := env.do(t, http.MethodPost, "/feedback", FeedbackRequest{InterviewID: "int-1", Transcript: answered(3), CandidateEmail: "a@x.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp FeedbackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.CompletionPending)

	pending, err := env.store.PendingCompletions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)

	env.store.setFailing(false)
	rec = env.do(t, http.MethodPost, "/admin/completions/retry", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report feedback.ReconcileReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Applied)
	assert.Equal(t, 0, report.Failed)

	got, err := env.store.GetInterview(context.Background(), "int-1")
	require.NoError(t, err)
	a, _ := got.FindCandidate("a@x.com")
	assert.True(t, a.Completed)
}

func TestExtract(t *testing.T) {
	env := newTestEnv(t)
	env.llm.Push(
		llm.Reply{Text: `{"role":"Data Engineer","level":"Senior","techstack":"Go, Kafka","type":"Technical","amount":"2"}`},
		llm.Reply{Text: `["Design a pipeline.", "Explain backpressure."]`},
	)

	rec := env.do(t, http.MethodPost, "/extract", interviews.Request{
		Transcript:  "interviewer: What role?\ncandidate: Data engineer",
		RequesterID: "hr-1",
		Email:       "c@x.com, d@x.com",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ExtractResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)

	got, err := env.store.GetInterview(context.Background(), resp.InterviewID)
	require.NoError(t, err)
	assert.Equal(t, "Data Engineer", got.Role)
	assert.Len(t, got.Candidates, 2)
	assert.Len(t, got.Questions, 2)

	// An extraction failure reports success false
	rec = env.do(t, http.MethodPost, "/extract", interviews.Request{RequesterID: "hr-1"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestClientAgainstServer(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	ctx := context.Background()
	c := NewClient(ts.URL + "/")

	_, err := c.SignIn(ctx, "a@x.com", "WRONG")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	cs, err := c.SignIn(ctx, "a@x.com", "aaaa1111")
	require.NoError(t, err)
	assert.Equal(t, "int-1", cs.InterviewID)

	view, err := c.GetInterview(ctx, cs.InterviewID)
	require.NoError(t, err)
	assert.Equal(t, "Why Go?", view.Questions[0])

	_, err = c.Generate(ctx, feedback.Request{InterviewID: "int-1", Transcript: answered(1)})
	assert.ErrorIs(t, err, feedback.ErrTooShort)

	// The session cookie supplies the candidate email
	env.llm.Push(llm.Reply{Text: scoredReply})
	res, err := c.Generate(ctx, feedback.Request{InterviewID: "int-1", Transcript: answered(3)})
	require.NoError(t, err)
	assert.NotEmpty(t, res.FeedbackID)

	fb, err := c.GetFeedback(ctx, res.FeedbackID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", fb.CandidateEmail)

	list, err := c.ListFeedback(ctx, "int-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	report, err := c.RetryCompletions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Applied)

	require.NoError(t, c.SignOut(ctx))
	assert.Equal(t, ts.URL+"/extract", c.ExtractURL())
}
