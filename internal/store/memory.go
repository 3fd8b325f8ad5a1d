package store

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/fmuoria/voice-interview-agent/internal/models"
)

// Memory is an in-process Store. All mutations happen under one lock, so
// a completion mark only ever rewrites the matching roster entry.
type Memory struct {
	mu         sync.RWMutex
	order      []string
	interviews map[string]models.InterviewRecord
	feedback   map[string]models.FeedbackRecord
	fbOrder    []string
	outbox     map[string]models.Completion
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		interviews: make(map[string]models.InterviewRecord),
		feedback:   make(map[string]models.FeedbackRecord),
		outbox:     make(map[string]models.Completion),
	}
}

// ImportDocuments loads a JSON array of stored interview documents
func (m *Memory) ImportDocuments(data []byte) error {
	records, err := models.DecodeInterviews(data)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := m.CreateInterview(context.Background(), rec); err != nil {
			return err
		}
	}
	return nil
}

// ImportFile loads interview documents from a JSON file
func (m *Memory) ImportFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	return m.ImportDocuments(data)
}

// ListFinalizedInterviews implements InterviewStore
func (m *Memory) ListFinalizedInterviews(ctx context.Context) ([]models.InterviewRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.InterviewRecord, 0, len(m.order))
	for _, id := range m.order {
		rec := m.interviews[id]
		if rec.Finalized {
			out = append(out, cloneInterview(rec))
		}
	}
	return out, nil
}

// GetInterview implements InterviewStore
func (m *Memory) GetInterview(ctx context.Context, id string) (models.InterviewRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.interviews[id]
	if !ok {
		return models.InterviewRecord{}, ErrNotFound
	}
	return cloneInterview(rec), nil
}

// CreateInterview implements InterviewStore
func (m *Memory) CreateInterview(ctx context.Context, rec models.InterviewRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("interview id is required")
	}
	if err := validateRoster(rec); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.interviews[rec.ID]; exists {
		return fmt.Errorf("interview %s already exists", rec.ID)
	}
	m.interviews[rec.ID] = cloneInterview(rec)
	m.order = append(m.order, rec.ID)
	return nil
}

// MarkCandidateCompleted implements InterviewStore
func (m *Memory) MarkCandidateCompleted(ctx context.Context, interviewID, email string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markCandidateLocked(interviewID, email, at)
}

func (m *Memory) markCandidateLocked(interviewID, email string, at time.Time) (bool, error) {
	rec, ok := m.interviews[interviewID]
	if !ok {
		return false, ErrNotFound
	}
	for i := range rec.Candidates {
		if rec.Candidates[i].Email == email {
			ts := at
			rec.Candidates[i].Completed = true
			rec.Candidates[i].CompletedAt = &ts
			m.interviews[interviewID] = rec
			return true, nil
		}
	}
	return false, nil
}

// MarkInterviewCompleted implements InterviewStore
func (m *Memory) MarkInterviewCompleted(ctx context.Context, interviewID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markInterviewLocked(interviewID, at)
}

func (m *Memory) markInterviewLocked(interviewID string, at time.Time) error {
	rec, ok := m.interviews[interviewID]
	if !ok {
		return ErrNotFound
	}
	ts := at
	rec.Completed = true
	rec.CompletedAt = &ts
	// The legacy record's single entry mirrors the record-level flag
	if rec.Shape == models.ShapeLegacySingle && len(rec.Candidates) == 1 {
		rec.Candidates[0].Completed = true
		rec.Candidates[0].CompletedAt = &ts
	}
	m.interviews[interviewID] = rec
	return nil
}

// SaveFeedback implements FeedbackStore
func (m *Memory) SaveFeedback(ctx context.Context, rec models.FeedbackRecord, completion *models.Completion) error {
	if rec.ID == "" {
		return fmt.Errorf("feedback id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.feedback[rec.ID]; !exists {
		m.fbOrder = append(m.fbOrder, rec.ID)
	}
	m.feedback[rec.ID] = cloneFeedback(rec)
	if completion != nil {
		c := *completion
		c.FeedbackID = rec.ID
		m.outbox[rec.ID] = c
	}
	return nil
}

// ApplyCompletion implements FeedbackStore
func (m *Memory) ApplyCompletion(ctx context.Context, feedbackID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.outbox[feedbackID]
	if !ok {
		return nil
	}

	var err error
	if c.CandidateEmail == "" {
		err = m.markInterviewLocked(c.InterviewID, c.At)
	} else {
		_, err = m.markCandidateLocked(c.InterviewID, c.CandidateEmail, c.At)
	}
	if err != nil {
		return fmt.Errorf("failed to apply completion: %w", err)
	}
	delete(m.outbox, feedbackID)
	return nil
}

// RecordCompletionFailure implements FeedbackStore
func (m *Memory) RecordCompletionFailure(ctx context.Context, feedbackID string, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.outbox[feedbackID]
	if !ok {
		return ErrNotFound
	}
	c.Attempts++
	if cause != nil {
		c.LastError = cause.Error()
	}
	m.outbox[feedbackID] = c
	return nil
}

// PendingCompletions implements FeedbackStore
func (m *Memory) PendingCompletions(ctx context.Context, limit int) ([]models.Completion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Completion, 0, len(m.outbox))
	for _, c := range m.outbox {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].At.Equal(out[j].At) {
			return out[i].FeedbackID < out[j].FeedbackID
		}
		return out[i].At.Before(out[j].At)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetFeedback implements FeedbackStore
func (m *Memory) GetFeedback(ctx context.Context, id string) (models.FeedbackRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.feedback[id]
	if !ok {
		return models.FeedbackRecord{}, ErrNotFound
	}
	return cloneFeedback(rec), nil
}

// ListFeedback implements FeedbackStore
func (m *Memory) ListFeedback(ctx context.Context, interviewID string) ([]models.FeedbackRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.FeedbackRecord
	for _, id := range m.fbOrder {
		rec := m.feedback[id]
		if rec.InterviewID == interviewID {
			out = append(out, cloneFeedback(rec))
		}
	}
	return out, nil
}

// Close implements Store
func (m *Memory) Close() error {
	return nil
}

func cloneInterview(rec models.InterviewRecord) models.InterviewRecord {
	out := rec
	out.TechStack = append([]string(nil), rec.TechStack...)
	out.Questions = append([]string(nil), rec.Questions...)
	if rec.Candidates != nil {
		out.Candidates = make([]models.Candidate, len(rec.Candidates))
		copy(out.Candidates, rec.Candidates)
	}
	return out
}

func cloneFeedback(rec models.FeedbackRecord) models.FeedbackRecord {
	out := rec
	out.CategoryScores = append([]models.CategoryScore(nil), rec.CategoryScores...)
	out.Strengths = append([]string(nil), rec.Strengths...)
	out.AreasForImprovement = append([]string(nil), rec.AreasForImprovement...)
	out.Transcript = append([]models.Turn(nil), rec.Transcript...)
	return out
}
