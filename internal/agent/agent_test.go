package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/fmuoria/voice-interview-agent/internal/call"
	"github.com/fmuoria/voice-interview-agent/internal/feedback"
	"github.com/fmuoria/voice-interview-agent/internal/models"
)

type fakeInterviews struct {
	id     string
	err    error
	calls  int
	email  string
	userID string
}

func (f *fakeInterviews) Generate(ctx context.Context, turns []models.Turn, requesterID, capturedEmail string) (string, error) {
	f.calls++
	f.email = capturedEmail
	f.userID = requesterID
	return f.id, f.err
}

type fakeFeedback struct {
	res feedback.Result
	err error
	req feedback.Request
}

func (f *fakeFeedback) Generate(ctx context.Context, req feedback.Request) (feedback.Result, error) {
	f.req = req
	return f.res, f.err
}

// TestFinishSetup tests that setup calls always land, whatever extraction does
func TestFinishSetup(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "Extraction succeeds"},
		{name: "Email missing", err: errors.New("please enter your email address"), wantErr: true},
		{name: "Endpoint failure", err: errors.New("interview extraction failed"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeInterviews{id: "int-1", err: tt.err}
			a := NewInterviewAgent(gen, nil)
			a.SetCallContext(CallContext{UserID: "hr-1"})

			var got []Outcome
			a.SetOutcomeCallback(func(o Outcome) { got = append(got, o) })

			a.Finish(context.Background(), call.Result{Type: models.SessionSetup, CapturedEmail: "a@x.com"})

			if len(got) != 1 {
				t.Fatalf("Expected one outcome, got %d", len(got))
			}
			if got[0].Kind != OutcomeLanding {
				t.Errorf("Setup calls should always land, got %s", got[0].Kind)
			}
			if (got[0].Err != nil) != tt.wantErr {
				t.Errorf("Outcome error = %v, wantErr %v", got[0].Err, tt.wantErr)
			}
			if gen.email != "a@x.com" || gen.userID != "hr-1" {
				t.Errorf("Generator got email %q user %q", gen.email, gen.userID)
			}
		})
	}
}

// TestFinishAssessment tests the assessment outcomes
func TestFinishAssessment(t *testing.T) {
	tests := []struct {
		name        string
		res         feedback.Result
		err         error
		wantKind    OutcomeKind
		wantMessage string
	}{
		{name: "Feedback saved", res: feedback.Result{FeedbackID: "fb-1"}, wantKind: OutcomeFeedback},
		{name: "Degraded feedback", res: feedback.Result{FeedbackID: "fb-2", Degraded: true}, wantKind: OutcomeFeedback},
		{name: "Too short", err: feedback.ErrTooShort, wantKind: OutcomeError, wantMessage: TooShortMessage},
		{name: "Store failure", err: errors.New("db down"), wantKind: OutcomeError, wantMessage: "Failed to save feedback. Please try again."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := &fakeFeedback{res: tt.res, err: tt.err}
			a := NewInterviewAgent(nil, fb)
			a.SetCallContext(CallContext{UserID: "cand", InterviewID: "int-1", CandidateEmail: "a@x.com", ExistingFeedbackID: "old"})

			a.Finish(context.Background(), call.Result{Type: models.SessionAssessment, Turns: []models.Turn{{Speaker: models.SpeakerCandidate, Text: "hi"}}})

			out, ok := a.LastOutcome()
			if !ok {
				t.Fatal("Expected an outcome")
			}
			if out.Kind != tt.wantKind || out.Message != tt.wantMessage {
				t.Errorf("Outcome = %+v, want kind %s message %q", out, tt.wantKind, tt.wantMessage)
			}
			if out.Kind == OutcomeFeedback && (out.FeedbackID != tt.res.FeedbackID || out.Degraded != tt.res.Degraded) {
				t.Errorf("Outcome lost result fields: %+v", out)
			}
			if fb.req.InterviewID != "int-1" || fb.req.CandidateEmail != "a@x.com" || fb.req.ExistingFeedbackID != "old" || len(fb.req.Transcript) != 1 {
				t.Errorf("Unexpected feedback request: %+v", fb.req)
			}
		})
	}
}

func TestFinishUnconfigured(t *testing.T) {
	a := NewInterviewAgent(nil, nil)
	if _, ok := a.LastOutcome(); ok {
		t.Error("No outcome expected before a call finishes")
	}

	a.Finish(context.Background(), call.Result{Type: models.SessionSetup})
	if out, _ := a.LastOutcome(); out.Kind != OutcomeLanding || out.Err == nil {
		t.Errorf("Unexpected setup outcome: %+v", out)
	}

	a.Finish(context.Background(), call.Result{Type: models.SessionAssessment})
	if out, _ := a.LastOutcome(); out.Kind != OutcomeError {
		t.Errorf("Unexpected assessment outcome: %+v", out)
	}

	a.Finish(context.Background(), call.Result{Type: "other"})
	if out, _ := a.LastOutcome(); out.Kind != OutcomeError || out.Err == nil {
		t.Errorf("Unknown type should error: %+v", out)
	}
}
