// Package store persists interview records, feedback records and the
// completion outbox.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fmuoria/voice-interview-agent/internal/models"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when a roster lists the same email twice
var ErrDuplicateEmail = errors.New("duplicate candidate email in roster")

// InterviewStore reads and writes interview records
type InterviewStore interface {
	// ListFinalizedInterviews returns finalized records in store order
	ListFinalizedInterviews(ctx context.Context) ([]models.InterviewRecord, error)
	GetInterview(ctx context.Context, id string) (models.InterviewRecord, error)
	CreateInterview(ctx context.Context, rec models.InterviewRecord) error
	// MarkCandidateCompleted flips one roster entry. It reports false when
	// no entry has the email.
	MarkCandidateCompleted(ctx context.Context, interviewID, email string, at time.Time) (bool, error)
	MarkInterviewCompleted(ctx context.Context, interviewID string, at time.Time) error
}

// FeedbackStore reads and writes feedback records and pending completions
type FeedbackStore interface {
	// SaveFeedback upserts the record and, when completion is non-nil,
	// records it as pending in the same transaction.
	SaveFeedback(ctx context.Context, rec models.FeedbackRecord, completion *models.Completion) error
	// ApplyCompletion performs the pending completion for feedbackID and
	// clears it. Applying an already cleared completion is a no-op.
	ApplyCompletion(ctx context.Context, feedbackID string) error
	// RecordCompletionFailure bumps the attempt count of a pending completion
	RecordCompletionFailure(ctx context.Context, feedbackID string, cause error) error
	PendingCompletions(ctx context.Context, limit int) ([]models.Completion, error)
	GetFeedback(ctx context.Context, id string) (models.FeedbackRecord, error)
	ListFeedback(ctx context.Context, interviewID string) ([]models.FeedbackRecord, error)
}

// Store is the full persistence surface
type Store interface {
	InterviewStore
	FeedbackStore
	Close() error
}

// validateRoster rejects a record whose roster repeats an email. Emails
// compare exactly, the same way completion marks match them.
func validateRoster(rec models.InterviewRecord) error {
	seen := make(map[string]bool, len(rec.Candidates))
	for _, c := range rec.Candidates {
		if seen[c.Email] {
			return fmt.Errorf("%w: interview %s, email %q", ErrDuplicateEmail, rec.ID, c.Email)
		}
		seen[c.Email] = true
	}
	return nil
}
