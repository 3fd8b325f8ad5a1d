// Package api exposes the interview agent over HTTP
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fmuoria/voice-interview-agent/internal/export"
	"github.com/fmuoria/voice-interview-agent/internal/feedback"
	"github.com/fmuoria/voice-interview-agent/internal/interviews"
	"github.com/fmuoria/voice-interview-agent/internal/log"
	"github.com/fmuoria/voice-interview-agent/internal/models"
	"github.com/fmuoria/voice-interview-agent/internal/session"
	"github.com/fmuoria/voice-interview-agent/internal/store"
)

// Cookie names
const (
	CandidateCookie = "candidate-session"
	HRCookie        = "hr-session"
)

// sessionMaxAge is the candidate cookie lifetime
const sessionMaxAge = 7 * 24 * time.Hour

// Error codes carried next to the message so clients can tell failures apart
const (
	CodeTooShort        = "too_short"
	CodeEmptyTranscript = "empty_transcript"
	CodeNotFound        = "not_found"
	CodeInvalidSession  = "invalid_session"
)

// Extractor creates interviews from setup transcripts
type Extractor interface {
	Extract(ctx context.Context, req interviews.Request) (models.InterviewRecord, error)
}

// Resolver maps email and session code to an invitation
type Resolver interface {
	Resolve(ctx context.Context, email, code string) (session.Match, error)
}

// Reader is the read side of the store the API serves
type Reader interface {
	GetInterview(ctx context.Context, id string) (models.InterviewRecord, error)
	GetFeedback(ctx context.Context, id string) (models.FeedbackRecord, error)
	ListFeedback(ctx context.Context, interviewID string) ([]models.FeedbackRecord, error)
}

// FeedbackGenerator scores transcripts
type FeedbackGenerator interface {
	Generate(ctx context.Context, req feedback.Request) (feedback.Result, error)
}

// Reconciler retries pending completion marks
type Reconciler interface {
	Run(ctx context.Context) (feedback.ReconcileReport, error)
}

// Deps are the components the server routes to
type Deps struct {
	Extractor  Extractor
	Resolver   Resolver
	Store      Reader
	Feedback   FeedbackGenerator
	Reconciler Reconciler
}

// Server handles HTTP requests
type Server struct {
	deps Deps
	now  func() time.Time
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	return &Server{deps: deps, now: time.Now}
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /extract", s.handleExtract)
	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions/current", s.handleCurrentSession)
	mux.HandleFunc("DELETE /sessions", s.handleDeleteSession)
	mux.HandleFunc("GET /interviews/{id}", s.handleGetInterview)
	mux.HandleFunc("GET /interviews/{id}/feedback", s.handleListFeedback)
	mux.HandleFunc("GET /interviews/{id}/report.xlsx", s.handleReport)
	mux.HandleFunc("POST /feedback", s.handleCreateFeedback)
	mux.HandleFunc("GET /feedback/{id}", s.handleGetFeedback)
	mux.HandleFunc("POST /admin/completions/retry", s.handleRetryCompletions)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	return s.loggingMiddleware(mux)
}

// handleRoot provides API information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": "Voice Interview Agent",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"POST /extract":                    "Create an interview from a setup transcript",
			"POST /sessions":                   "Sign in a candidate with email and session code",
			"GET /sessions/current":            "Current candidate session",
			"DELETE /sessions":                 "Sign out the candidate",
			"GET /interviews/{id}":             "Interview questions for a call",
			"GET /interviews/{id}/feedback":    "Feedback records of an interview",
			"GET /interviews/{id}/report.xlsx": "Excel feedback report",
			"POST /feedback":                   "Score an assessment transcript",
			"GET /feedback/{id}":               "One feedback record",
			"POST /admin/completions/retry":    "Retry pending completion marks",
			"GET /health":                      "Health check",
		},
	})
}

// handleHealth provides a health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// ExtractResponse is the reply of POST /extract
type ExtractResponse struct {
	Success     bool   `json:"success"`
	InterviewID string `json:"interviewId,omitempty"`
	Error       string `json:"error,omitempty"`
}

// handleExtract turns a setup transcript into an interview record
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req interviews.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, ExtractResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	rec, err := s.deps.Extractor.Extract(r.Context(), req)
	if err != nil {
		log.Error("extraction failed", "requester_id", req.RequesterID, "error", err)
		s.respondJSON(w, http.StatusInternalServerError, ExtractResponse{Error: err.Error()})
		return
	}
	s.respondJSON(w, http.StatusOK, ExtractResponse{Success: true, InterviewID: rec.ID})
}

// SessionRequest is the body of POST /sessions
type SessionRequest struct {
	Email       string `json:"email"`
	SessionCode string `json:"sessionCode"`
}

// SessionResponse is the reply of the session endpoints
type SessionResponse struct {
	Success bool                     `json:"success"`
	Session *models.CandidateSession `json:"session,omitempty"`
}

// handleCreateSession signs a candidate in
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	match, err := s.deps.Resolver.Resolve(r.Context(), req.Email, req.SessionCode)
	if errors.Is(err, session.ErrSessionNotFound) {
		s.respondCodedError(w, http.StatusUnauthorized, CodeInvalidSession, err.Error())
		return
	}
	if err != nil {
		log.Error("session lookup failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to sign in")
		return
	}

	cs := match.Session(s.now().UTC())
	value, err := encodeSession(cs)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "Failed to sign in")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CandidateCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   int(sessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{Name: HRCookie, Value: "", Path: "/", MaxAge: -1})

	s.respondJSON(w, http.StatusOK, SessionResponse{Success: true, Session: &cs})
}

// handleCurrentSession returns the signed-in candidate
func (s *Server) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	cs, ok := candidateSession(r)
	if !ok {
		s.respondCodedError(w, http.StatusUnauthorized, CodeInvalidSession, "not signed in")
		return
	}
	s.respondJSON(w, http.StatusOK, SessionResponse{Success: true, Session: &cs})
}

// handleDeleteSession signs the candidate out
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: CandidateCookie, Value: "", Path: "/", MaxAge: -1})
	s.respondJSON(w, http.StatusOK, SessionResponse{Success: true})
}

// InterviewView is the part of an interview a call client needs
type InterviewView struct {
	ID          string   `json:"id"`
	OwnerUserID string   `json:"ownerUserId"`
	Role        string   `json:"role"`
	Level       string   `json:"level"`
	Type        string   `json:"type"`
	TechStack   []string `json:"techStack"`
	Questions   []string `json:"questions"`
}

// handleGetInterview returns the questions of one interview
func (s *Server) handleGetInterview(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadInterview(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, InterviewView{
		ID:          rec.ID,
		OwnerUserID: rec.OwnerUserID,
		Role:        rec.Role,
		Level:       rec.Level,
		Type:        rec.Type,
		TechStack:   rec.TechStack,
		Questions:   rec.Questions,
	})
}

// handleListFeedback lists an interview's feedback records
func (s *Server) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadInterview(w, r)
	if !ok {
		return
	}
	list, err := s.deps.Store.ListFeedback(r.Context(), rec.ID)
	if err != nil {
		log.Error("failed to list feedback", "interview_id", rec.ID, "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to load feedback")
		return
	}
	if list == nil {
		list = []models.FeedbackRecord{}
	}
	s.respondJSON(w, http.StatusOK, list)
}

// handleReport streams the Excel feedback report
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadInterview(w, r)
	if !ok {
		return
	}
	list, err := s.deps.Store.ListFeedback(r.Context(), rec.ID)
	if err != nil {
		log.Error("failed to list feedback", "interview_id", rec.ID, "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to load feedback")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "interview-"+rec.ID+".xlsx"))
	if err := export.WriteFeedbackReport(w, rec, list, s.now()); err != nil {
		log.Error("failed to write report", "interview_id", rec.ID, "error", err)
	}
}

// FeedbackRequest is the body of POST /feedback
type FeedbackRequest struct {
	InterviewID    string        `json:"interviewId"`
	UserID         string        `json:"userId"`
	Transcript     []models.Turn `json:"transcript"`
	CandidateEmail string        `json:"candidateEmail,omitempty"`
	FeedbackID     string        `json:"feedbackId,omitempty"`
}

// FeedbackResponse is the reply of POST /feedback
type FeedbackResponse struct {
	Success bool `json:"success"`
	feedback.Result
}

// handleCreateFeedback scores a transcript and stores the record
func (s *Server) handleCreateFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.InterviewID == "" {
		s.respondError(w, http.StatusBadRequest, "interviewId is required")
		return
	}

	// The signed-in candidate's email applies when the body names none
	if req.CandidateEmail == "" {
		if cs, ok := candidateSession(r); ok && cs.InterviewID == req.InterviewID {
			req.CandidateEmail = cs.Email
		}
	}

	res, err := s.deps.Feedback.Generate(r.Context(), feedback.Request{
		InterviewID:        req.InterviewID,
		OwnerUserID:        req.UserID,
		Transcript:         req.Transcript,
		CandidateEmail:     req.CandidateEmail,
		ExistingFeedbackID: req.FeedbackID,
	})
	switch {
	case errors.Is(err, feedback.ErrEmptyTranscript):
		s.respondCodedError(w, http.StatusBadRequest, CodeEmptyTranscript, err.Error())
		return
	case errors.Is(err, feedback.ErrTooShort):
		s.respondCodedError(w, http.StatusBadRequest, CodeTooShort, err.Error())
		return
	case errors.Is(err, store.ErrNotFound):
		s.respondCodedError(w, http.StatusNotFound, CodeNotFound, "interview not found")
		return
	case err != nil:
		log.Error("failed to save feedback", "interview_id", req.InterviewID, "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to save feedback")
		return
	}

	s.respondJSON(w, http.StatusOK, FeedbackResponse{Success: true, Result: res})
}

// handleGetFeedback returns one feedback record
func (s *Server) handleGetFeedback(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Store.GetFeedback(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		s.respondCodedError(w, http.StatusNotFound, CodeNotFound, "feedback not found")
		return
	}
	if err != nil {
		log.Error("failed to load feedback", "feedback_id", r.PathValue("id"), "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to load feedback")
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

// handleRetryCompletions runs one reconcile pass
func (s *Server) handleRetryCompletions(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Reconciler.Run(r.Context())
	if err != nil {
		log.Error("completion retry failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) loadInterview(w http.ResponseWriter, r *http.Request) (models.InterviewRecord, bool) {
	id := r.PathValue("id")
	rec, err := s.deps.Store.GetInterview(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.respondCodedError(w, http.StatusNotFound, CodeNotFound, "interview not found")
		return models.InterviewRecord{}, false
	}
	if err != nil {
		log.Error("failed to load interview", "interview_id", id, "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to load interview")
		return models.InterviewRecord{}, false
	}
	return rec, true
}

func encodeSession(cs models.CandidateSession) (string, error) {
	data, err := json.Marshal(cs)
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func candidateSession(r *http.Request) (models.CandidateSession, bool) {
	c, err := r.Cookie(CandidateCookie)
	if err != nil || c.Value == "" {
		return models.CandidateSession{}, false
	}
	data, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return models.CandidateSession{}, false
	}
	var cs models.CandidateSession
	if err := json.Unmarshal(data, &cs); err != nil || cs.InterviewID == "" {
		return models.CandidateSession{}, false
	}
	return cs, true
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn("failed to encode JSON response", "error", err)
	}
}

// respondError sends an error response
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func (s *Server) respondCodedError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"remote", r.RemoteAddr,
		)
	})
}
