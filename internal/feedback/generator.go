// Package feedback scores a finished interview transcript and persists the
// result together with the candidate's completion mark.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fmuoria/voice-interview-agent/internal/llm"
	"github.com/fmuoria/voice-interview-agent/internal/log"
	"github.com/fmuoria/voice-interview-agent/internal/models"
	"github.com/fmuoria/voice-interview-agent/internal/transcript"
)

// MinCandidateTurns is the fewest candidate answers that can be scored
const MinCandidateTurns = 3

var (
	// ErrEmptyTranscript is returned for a transcript with no turns
	ErrEmptyTranscript = errors.New("no transcript provided")
	// ErrTooShort is returned when the candidate answered too few questions
	ErrTooShort = errors.New("interview ended too early: at least 3 answers are required")
)

// Store is the persistence the generator needs
type Store interface {
	GetInterview(ctx context.Context, id string) (models.InterviewRecord, error)
	SaveFeedback(ctx context.Context, rec models.FeedbackRecord, completion *models.Completion) error
	ApplyCompletion(ctx context.Context, feedbackID string) error
	RecordCompletionFailure(ctx context.Context, feedbackID string, cause error) error
}

// Archiver keeps a copy of a saved feedback record's transcript
type Archiver interface {
	ArchiveTranscript(ctx context.Context, rec models.FeedbackRecord) error
}

// Request is one scoring job
type Request struct {
	InterviewID        string
	OwnerUserID        string
	Transcript         []models.Turn
	CandidateEmail     string
	ExistingFeedbackID string
}

// Result describes a saved feedback record
type Result struct {
	FeedbackID string `json:"feedbackId"`
	// Degraded is set when the stored evaluation is the fallback
	Degraded bool `json:"degraded"`
	// CompletionPending is set when the completion mark is still queued
	CompletionPending bool `json:"completionPending"`
}

// Generator turns transcripts into stored feedback records
type Generator struct {
	llm      llm.Client
	store    Store
	archiver Archiver
	now      func() time.Time
	newID    func() string
}

// Option configures a Generator
type Option func(*Generator)

// WithArchiver archives every saved transcript
func WithArchiver(a Archiver) Option {
	return func(g *Generator) { g.archiver = a }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithIDs overrides feedback id generation
func WithIDs(newID func() string) Option {
	return func(g *Generator) { g.newID = newID }
}

// NewGenerator creates a feedback generator
func NewGenerator(client llm.Client, store Store, opts ...Option) *Generator {
	g := &Generator{
		llm:   client,
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate scores the transcript, saves the record and marks completion.
// Scoring failures are recovered into the fallback evaluation; storage
// failures on the record itself are returned.
func (g *Generator) Generate(ctx context.Context, req Request) (Result, error) {
	if len(req.Transcript) == 0 {
		return Result{}, ErrEmptyTranscript
	}
	if transcript.Count(req.Transcript, models.SpeakerCandidate) < MinCandidateTurns {
		return Result{}, ErrTooShort
	}

	interview, err := g.store.GetInterview(ctx, req.InterviewID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load interview %s: %w", req.InterviewID, err)
	}

	logger := log.With("interview_id", req.InterviewID, "turns", len(req.Transcript))

	eval, err := g.score(ctx, req.Transcript)
	degraded := false
	if err != nil {
		logger.Warn("scoring failed, storing fallback evaluation", "error", err)
		eval = Fallback()
		degraded = true
	}

	id := req.ExistingFeedbackID
	if id == "" {
		id = g.newID()
	}
	now := g.now()

	record := models.FeedbackRecord{
		ID:             id,
		InterviewID:    req.InterviewID,
		OwnerUserID:    req.OwnerUserID,
		CandidateEmail: req.CandidateEmail,
		Evaluation:     eval,
		SystemError:    degraded,
		CreatedAt:      now,
		Transcript:     append([]models.Turn(nil), req.Transcript...),
	}
	completion := completionFor(interview, req.CandidateEmail, id, now)

	if err := g.store.SaveFeedback(ctx, record, &completion); err != nil {
		return Result{}, fmt.Errorf("failed to save feedback: %w", err)
	}
	logger.Info("feedback saved", "feedback_id", id, "total_score", eval.TotalScore, "degraded", degraded)

	if g.archiver != nil {
		if err := g.archiver.ArchiveTranscript(ctx, record); err != nil {
			logger.Warn("failed to archive transcript", "feedback_id", id, "error", err)
		}
	}

	result := Result{FeedbackID: id, Degraded: degraded}
	if err := g.store.ApplyCompletion(ctx, id); err != nil {
		logger.Warn("completion mark deferred", "feedback_id", id, "error", err)
		if rerr := g.store.RecordCompletionFailure(ctx, id, err); rerr != nil {
			logger.Error("failed to record completion failure", "feedback_id", id, "error", rerr)
		}
		result.CompletionPending = true
	}
	return result, nil
}

func (g *Generator) score(ctx context.Context, turns []models.Turn) (models.Evaluation, error) {
	response, err := g.llm.GenerateJSON(ctx, llm.Request{
		System:      systemInstruction,
		Prompt:      buildScoringPrompt(turns),
		Schema:      evaluationSchema(),
		Temperature: 0.2,
	})
	if err != nil {
		return models.Evaluation{}, fmt.Errorf("failed to get LLM response: %w", err)
	}

	eval, err := parseEvaluation(response)
	if err != nil {
		return models.Evaluation{}, fmt.Errorf("failed to parse evaluation: %w", err)
	}
	return eval, nil
}

// completionFor picks the completion target: the candidate's own entry on
// a roster record, otherwise the record itself
func completionFor(rec models.InterviewRecord, email, feedbackID string, at time.Time) models.Completion {
	c := models.Completion{
		FeedbackID:  feedbackID,
		InterviewID: rec.ID,
		At:          at,
	}
	if email != "" && rec.Shape == models.ShapeRoster {
		c.CandidateEmail = email
	}
	return c
}
