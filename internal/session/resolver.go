// Package session maps a candidate's email and session code to the
// interview they were invited to.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fmuoria/voice-interview-agent/internal/log"
	"github.com/fmuoria/voice-interview-agent/internal/models"
)

// ErrSessionNotFound is returned for any email and code pair that matches
// no roster entry. The message never says which half was wrong.
var ErrSessionNotFound = errors.New("Invalid email or session code")

// Lister returns finalized interview records in store order
type Lister interface {
	ListFinalizedInterviews(ctx context.Context) ([]models.InterviewRecord, error)
}

// Match is a resolved candidate invitation
type Match struct {
	InterviewID string
	Candidate   models.Candidate
	// InvitedAt is when the interview was finalized and its codes issued
	InvitedAt time.Time
}

// Session converts the match into the credential a candidate signs in with.
// AssignedAt is the invite time; fallback is used only for records that
// carry no creation time.
func (m Match) Session(fallback time.Time) models.CandidateSession {
	at := m.InvitedAt
	if at.IsZero() {
		at = fallback
	}
	return models.CandidateSession{
		Email:       m.Candidate.Email,
		SessionCode: m.Candidate.SessionCode,
		InterviewID: m.InterviewID,
		AssignedAt:  at,
	}
}

// Resolver finds interview invitations
type Resolver struct {
	store Lister
}

// NewResolver creates a resolver over store
func NewResolver(store Lister) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the first roster entry whose email equals email exactly
// and whose code equals the upper-cased code
func (r *Resolver) Resolve(ctx context.Context, email, code string) (Match, error) {
	if email == "" || strings.TrimSpace(code) == "" {
		return Match{}, ErrSessionNotFound
	}
	code = strings.ToUpper(code)

	records, err := r.store.ListFinalizedInterviews(ctx)
	if err != nil {
		return Match{}, fmt.Errorf("failed to list interviews: %w", err)
	}

	for _, rec := range records {
		for _, c := range rec.Candidates {
			if c.Email == email && c.SessionCode == code {
				log.Debug("resolved candidate session", "interview_id", rec.ID, "shape", rec.Shape)
				return Match{InterviewID: rec.ID, Candidate: c, InvitedAt: rec.CreatedAt}, nil
			}
		}
	}
	return Match{}, ErrSessionNotFound
}
