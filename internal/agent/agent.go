// Package agent routes finished calls to the step that consumes them:
// setup calls become interviews, assessment calls become feedback.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fmuoria/voice-interview-agent/internal/call"
	"github.com/fmuoria/voice-interview-agent/internal/feedback"
	"github.com/fmuoria/voice-interview-agent/internal/log"
	"github.com/fmuoria/voice-interview-agent/internal/models"
)

// TooShortMessage is shown when an assessment ends before enough answers
const TooShortMessage = "The interview ended too early. Please answer at least 3 questions before ending the call."

// InterviewGenerator creates an interview from a setup transcript
type InterviewGenerator interface {
	Generate(ctx context.Context, turns []models.Turn, requesterID, capturedEmail string) (string, error)
}

// FeedbackGenerator scores an assessment transcript
type FeedbackGenerator interface {
	Generate(ctx context.Context, req feedback.Request) (feedback.Result, error)
}

// OutcomeKind tells the caller where to go after a call
type OutcomeKind string

const (
	// OutcomeLanding sends the user back to the landing page
	OutcomeLanding OutcomeKind = "landing"
	// OutcomeFeedback shows the stored feedback record
	OutcomeFeedback OutcomeKind = "feedback"
	// OutcomeError shows Message and keeps the user on the call page
	OutcomeError OutcomeKind = "error"
)

// Outcome is the result of handling one finished call
type Outcome struct {
	Kind              OutcomeKind
	InterviewID       string
	FeedbackID        string
	Degraded          bool
	CompletionPending bool
	Message           string
	Err               error
}

// OutcomeCallback is called once per finished call
type OutcomeCallback func(Outcome)

// CallContext identifies who the next call belongs to
type CallContext struct {
	UserID             string
	InterviewID        string
	CandidateEmail     string
	ExistingFeedbackID string
}

// InterviewAgent implements call.Finisher
type InterviewAgent struct {
	interviews InterviewGenerator
	feedback   FeedbackGenerator

	mu        sync.RWMutex
	callCtx   CallContext
	outcomeCb OutcomeCallback
	last      *Outcome
}

// NewInterviewAgent creates an agent; either generator may be nil when the
// process only runs one flow
func NewInterviewAgent(interviews InterviewGenerator, fb FeedbackGenerator) *InterviewAgent {
	return &InterviewAgent{interviews: interviews, feedback: fb}
}

// SetCallContext sets the identity used for the next finished call
func (a *InterviewAgent) SetCallContext(c CallContext) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callCtx = c
}

// SetOutcomeCallback sets the outcome callback function
func (a *InterviewAgent) SetOutcomeCallback(cb OutcomeCallback) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outcomeCb = cb
}

// LastOutcome returns the most recent outcome, if any
func (a *InterviewAgent) LastOutcome() (Outcome, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.last == nil {
		return Outcome{}, false
	}
	return *a.last, true
}

// Finish implements call.Finisher
func (a *InterviewAgent) Finish(ctx context.Context, result call.Result) {
	a.mu.RLock()
	cc := a.callCtx
	a.mu.RUnlock()

	var out Outcome
	switch result.Type {
	case models.SessionSetup:
		out = a.finishSetup(ctx, cc, result)
	case models.SessionAssessment:
		out = a.finishAssessment(ctx, cc, result)
	default:
		out = Outcome{Kind: OutcomeError, Err: fmt.Errorf("unknown session type %q", result.Type)}
	}

	a.mu.Lock()
	a.last = &out
	cb := a.outcomeCb
	a.mu.Unlock()

	if cb != nil {
		cb(out)
	}
}

// finishSetup always lands, even when extraction fails
func (a *InterviewAgent) finishSetup(ctx context.Context, cc CallContext, result call.Result) Outcome {
	out := Outcome{Kind: OutcomeLanding}
	if a.interviews == nil {
		out.Err = errors.New("interview generation is not configured")
		return out
	}

	id, err := a.interviews.Generate(ctx, result.Turns, cc.UserID, result.CapturedEmail)
	if err != nil {
		log.Warn("interview generation failed", "user_id", cc.UserID, "turns", len(result.Turns), "error", err)
		out.Err = err
		out.Message = err.Error()
		return out
	}
	log.Info("interview generated from setup call", "interview_id", id, "user_id", cc.UserID)
	out.InterviewID = id
	return out
}

func (a *InterviewAgent) finishAssessment(ctx context.Context, cc CallContext, result call.Result) Outcome {
	if a.feedback == nil {
		return Outcome{Kind: OutcomeError, Err: errors.New("feedback generation is not configured")}
	}

	res, err := a.feedback.Generate(ctx, feedback.Request{
		InterviewID:        cc.InterviewID,
		OwnerUserID:        cc.UserID,
		Transcript:         result.Turns,
		CandidateEmail:     cc.CandidateEmail,
		ExistingFeedbackID: cc.ExistingFeedbackID,
	})
	switch {
	case errors.Is(err, feedback.ErrTooShort):
		return Outcome{Kind: OutcomeError, InterviewID: cc.InterviewID, Message: TooShortMessage, Err: err}
	case err != nil:
		log.Error("feedback generation failed", "interview_id", cc.InterviewID, "error", err)
		return Outcome{Kind: OutcomeError, InterviewID: cc.InterviewID, Message: "Failed to save feedback. Please try again.", Err: err}
	}

	return Outcome{
		Kind:              OutcomeFeedback,
		InterviewID:       cc.InterviewID,
		FeedbackID:        res.FeedbackID,
		Degraded:          res.Degraded,
		CompletionPending: res.CompletionPending,
	}
}
