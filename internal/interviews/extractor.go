// Package interviews turns a setup conversation into a finalized interview
// record with generated questions and one session code per candidate.
package interviews

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fmuoria/voice-interview-agent/internal/llm"
	"github.com/fmuoria/voice-interview-agent/internal/log"
	"github.com/fmuoria/voice-interview-agent/internal/models"
	"github.com/fmuoria/voice-interview-agent/internal/notify"
)

// DefaultQuestionCount is used when the conversation names no usable count
const DefaultQuestionCount = 5

// maxQuestionCount caps how many questions one interview may ask
const maxQuestionCount = 20

// ErrNoValidEmails is returned when no candidate email survives parsing
var ErrNoValidEmails = errors.New("no valid email addresses provided")

// Creator persists new interview records
type Creator interface {
	CreateInterview(ctx context.Context, rec models.InterviewRecord) error
}

// Params are the interview parameters extracted from a setup conversation
type Params struct {
	Role      string `json:"role"`
	Level     string `json:"level"`
	TechStack string `json:"techstack"`
	Type      string `json:"type"`
	Amount    string `json:"amount"`
	Email     string `json:"email,omitempty"`
}

// Request is one extraction job
type Request struct {
	Transcript  string `json:"transcript"`
	RequesterID string `json:"requesterId"`
	Email       string `json:"email"`
}

// Extractor creates interviews from setup transcripts
type Extractor struct {
	llm      llm.Client
	store    Creator
	notifier notify.Notifier
	now      func() time.Time
	newID    func() string
	codes    func(taken map[string]bool) string
}

// NewExtractor creates an extractor. A nil notifier logs codes instead of sending them.
func NewExtractor(client llm.Client, store Creator, notifier notify.Notifier) *Extractor {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	e := &Extractor{
		llm:      client,
		store:    store,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	e.codes = func(taken map[string]bool) string { return UniqueCode(taken, e.now()) }
	return e
}

// Extract runs the full pipeline and returns the stored record
func (e *Extractor) Extract(ctx context.Context, req Request) (models.InterviewRecord, error) {
	if strings.TrimSpace(req.Transcript) == "" {
		return models.InterviewRecord{}, fmt.Errorf("transcript is required")
	}

	params, err := e.extractParams(ctx, req.Transcript, req.Email)
	if err != nil {
		return models.InterviewRecord{}, err
	}
	if req.Email != "" {
		params.Email = req.Email
	}

	emails := ParseEmails(params.Email)
	if len(emails) == 0 {
		return models.InterviewRecord{}, ErrNoValidEmails
	}

	count := parseAmount(params.Amount)
	questions, err := e.generateQuestions(ctx, params, count)
	if err != nil {
		return models.InterviewRecord{}, err
	}

	taken := make(map[string]bool, len(emails))
	candidates := make([]models.Candidate, 0, len(emails))
	for _, email := range emails {
		code := e.codes(taken)
		taken[code] = true
		candidates = append(candidates, models.Candidate{Email: email, SessionCode: code})
	}

	rec := models.InterviewRecord{
		ID:            e.newID(),
		OwnerUserID:   req.RequesterID,
		Role:          strings.TrimSpace(params.Role),
		Level:         strings.TrimSpace(params.Level),
		TechStack:     splitList(params.TechStack),
		Type:          strings.TrimSpace(params.Type),
		QuestionCount: len(questions),
		Questions:     questions,
		Finalized:     true,
		Shape:         models.ShapeRoster,
		Candidates:    candidates,
		CreatedAt:     e.now(),
	}
	if err := e.store.CreateInterview(ctx, rec); err != nil {
		return models.InterviewRecord{}, fmt.Errorf("failed to save interview: %w", err)
	}
	log.Info("interview created", "interview_id", rec.ID, "role", rec.Role, "candidates", len(candidates), "questions", len(questions))

	e.notifyAll(ctx, rec)
	return rec, nil
}

// notifyAll delivers every candidate's code; failures are logged only
func (e *Extractor) notifyAll(ctx context.Context, rec models.InterviewRecord) {
	sent := 0
	for _, c := range rec.Candidates {
		err := e.notifier.Notify(ctx, notify.Invite{
			Email:       c.Email,
			SessionCode: c.SessionCode,
			Role:        rec.Role,
			InterviewID: rec.ID,
		})
		if err != nil {
			log.Warn("failed to send session code", "email", c.Email, "interview_id", rec.ID, "error", err)
			continue
		}
		sent++
	}
	log.Info("session codes sent", "interview_id", rec.ID, "sent", sent, "total", len(rec.Candidates))
}

func (e *Extractor) extractParams(ctx context.Context, transcript, email string) (Params, error) {
	schema := paramsSchema(email == "")
	response, err := e.llm.GenerateJSON(ctx, llm.Request{
		Prompt:      buildExtractionPrompt(transcript, email == ""),
		Schema:      schema,
		Temperature: 0.1,
	})
	if err != nil {
		return Params{}, fmt.Errorf("failed to extract interview parameters: %w", err)
	}

	var p Params
	if err := json.Unmarshal([]byte(jsonObject(response)), &p); err != nil {
		return Params{}, fmt.Errorf("failed to parse interview parameters: %w", err)
	}
	return p, nil
}

func (e *Extractor) generateQuestions(ctx context.Context, p Params, count int) ([]string, error) {
	response, err := e.llm.GenerateJSON(ctx, llm.Request{
		Prompt:      buildQuestionsPrompt(p, count),
		Schema:      &llm.Schema{Type: llm.TypeArray, Items: &llm.Schema{Type: llm.TypeString}},
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate questions: %w", err)
	}

	var questions []string
	if err := json.Unmarshal([]byte(jsonArray(response)), &questions); err != nil {
		return nil, fmt.Errorf("failed to parse questions: %w", err)
	}

	out := questions[:0]
	for _, q := range questions {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("model returned no questions")
	}
	return out, nil
}

// ParseEmails splits on commas, lower-cases, keeps entries containing "@"
// and drops duplicates while preserving order
func ParseEmails(raw string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		email := strings.ToLower(strings.TrimSpace(part))
		if !strings.Contains(email, "@") || seen[email] {
			continue
		}
		seen[email] = true
		out = append(out, email)
	}
	return out
}

func parseAmount(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		// Models sometimes answer "5 questions"
		fields := strings.Fields(s)
		if len(fields) > 0 {
			n, err = strconv.Atoi(fields[0])
		}
	}
	if err != nil || n <= 0 {
		return DefaultQuestionCount
	}
	if n > maxQuestionCount {
		return maxQuestionCount
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func jsonObject(s string) string {
	start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if start == -1 || end < start {
		return s
	}
	return s[start : end+1]
}

func jsonArray(s string) string {
	start, end := strings.Index(s, "["), strings.LastIndex(s, "]")
	if start == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
