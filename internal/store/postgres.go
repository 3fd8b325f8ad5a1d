package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/fmuoria/voice-interview-agent/internal/models"
)

const interviewCacheSize = 1024

// Postgres is a Store backed by PostgreSQL through the pgx driver.
// Roster entries live in their own rows so completion marks touch only
// the matching entry.
type Postgres struct {
	db    *sql.DB
	cache *lru.Cache[string, models.InterviewRecord]
}

// NewPostgres connects to dsn and applies migrations
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewPostgresDB(db)
}

// NewPostgresDB wraps an open, migrated database
func NewPostgresDB(db *sql.DB) (*Postgres, error) {
	cache, err := lru.New[string, models.InterviewRecord](interviewCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create interview cache: %w", err)
	}
	return &Postgres{db: db, cache: cache}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

const interviewColumns = `id, owner_user_id, role, level, techstack, type, question_count, questions,
finalized, shape, completed, completed_at, created_at`

func scanInterview(row rowScanner) (models.InterviewRecord, error) {
	var (
		rec         models.InterviewRecord
		techstack   []byte
		questions   []byte
		shape       string
		completedAt sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.OwnerUserID, &rec.Role, &rec.Level, &techstack, &rec.Type,
		&rec.QuestionCount, &questions, &rec.Finalized, &shape, &rec.Completed, &completedAt, &rec.CreatedAt)
	if err != nil {
		return models.InterviewRecord{}, err
	}
	if err := json.Unmarshal(techstack, &rec.TechStack); err != nil {
		return models.InterviewRecord{}, fmt.Errorf("failed to decode techstack: %w", err)
	}
	if err := json.Unmarshal(questions, &rec.Questions); err != nil {
		return models.InterviewRecord{}, fmt.Errorf("failed to decode questions: %w", err)
	}
	rec.Shape = models.RecordShape(shape)
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	return rec, nil
}

// loadCandidates fills the rosters of recs with one query
func (p *Postgres) loadCandidates(ctx context.Context, recs []models.InterviewRecord) error {
	if len(recs) == 0 {
		return nil
	}
	ids := make([]string, len(recs))
	index := make(map[string]int, len(recs))
	for i := range recs {
		ids[i] = recs[i].ID
		index[recs[i].ID] = i
		recs[i].Candidates = []models.Candidate{}
	}

	rows, err := p.db.QueryContext(ctx, `
SELECT interview_id, email, session_code, completed, completed_at
FROM interview_candidates WHERE interview_id = ANY($1) ORDER BY interview_id, position`, ids)
	if err != nil {
		return fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			interviewID string
			c           models.Candidate
			at          sql.NullTime
		)
		if err := rows.Scan(&interviewID, &c.Email, &c.SessionCode, &c.Completed, &at); err != nil {
			return fmt.Errorf("failed to scan candidate: %w", err)
		}
		if at.Valid {
			t := at.Time
			c.CompletedAt = &t
		}
		i, ok := index[interviewID]
		if !ok {
			continue
		}
		recs[i].Candidates = append(recs[i].Candidates, c)
	}
	return rows.Err()
}

// ListFinalizedInterviews implements InterviewStore
func (p *Postgres) ListFinalizedInterviews(ctx context.Context) ([]models.InterviewRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+interviewColumns+`
FROM interviews WHERE finalized = TRUE ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list interviews: %w", err)
	}

	var out []models.InterviewRecord
	for rows.Next() {
		rec, err := scanInterview(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan interview: %w", err)
		}
		out = append(out, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := p.loadCandidates(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetInterview implements InterviewStore
func (p *Postgres) GetInterview(ctx context.Context, id string) (models.InterviewRecord, error) {
	if rec, ok := p.cache.Get(id); ok {
		return cloneInterview(rec), nil
	}

	row := p.db.QueryRowContext(ctx, `SELECT `+interviewColumns+` FROM interviews WHERE id = $1`, id)
	rec, err := scanInterview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.InterviewRecord{}, ErrNotFound
	}
	if err != nil {
		return models.InterviewRecord{}, fmt.Errorf("failed to get interview: %w", err)
	}
	recs := []models.InterviewRecord{rec}
	if err := p.loadCandidates(ctx, recs); err != nil {
		return models.InterviewRecord{}, err
	}
	rec = recs[0]

	p.cache.Add(id, cloneInterview(rec))
	return rec, nil
}

// CreateInterview implements InterviewStore
func (p *Postgres) CreateInterview(ctx context.Context, rec models.InterviewRecord) error {
	if err := validateRoster(rec); err != nil {
		return err
	}
	techstack, err := json.Marshal(nonNil(rec.TechStack))
	if err != nil {
		return fmt.Errorf("failed to encode techstack: %w", err)
	}
	questions, err := json.Marshal(nonNil(rec.Questions))
	if err != nil {
		return fmt.Errorf("failed to encode questions: %w", err)
	}
	if rec.Shape == "" {
		rec.Shape = models.ShapeRoster
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO interviews (id, owner_user_id, role, level, techstack, type, question_count, questions,
  finalized, shape, completed, completed_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		rec.ID, rec.OwnerUserID, rec.Role, rec.Level, string(techstack), rec.Type, rec.QuestionCount, string(questions),
		rec.Finalized, string(rec.Shape), rec.Completed, rec.CompletedAt, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert interview: %w", err)
	}

	for i, c := range rec.Candidates {
		_, err = tx.ExecContext(ctx, `
INSERT INTO interview_candidates (interview_id, position, email, session_code, completed, completed_at)
VALUES ($1,$2,$3,$4,$5,$6)`,
			rec.ID, i, c.Email, c.SessionCode, c.Completed, c.CompletedAt)
		if err != nil {
			return fmt.Errorf("failed to insert candidate: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit interview: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func markCandidate(ctx context.Context, db execer, interviewID, email string, at time.Time) (bool, error) {
	res, err := db.ExecContext(ctx, `
UPDATE interview_candidates SET completed = TRUE, completed_at = $3
WHERE interview_id = $1 AND email = $2`, interviewID, email, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark candidate completed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	var exists bool
	if err := db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM interviews WHERE id = $1)`, interviewID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check interview: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

func markInterview(ctx context.Context, db execer, interviewID string, at time.Time) error {
	res, err := db.ExecContext(ctx, `
UPDATE interviews SET completed = TRUE, completed_at = $2 WHERE id = $1`, interviewID, at)
	if err != nil {
		return fmt.Errorf("failed to mark interview completed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	_, err = db.ExecContext(ctx, `
UPDATE interview_candidates SET completed = TRUE, completed_at = $2
WHERE interview_id = $1 AND EXISTS (
  SELECT 1 FROM interviews WHERE id = $1 AND shape = 'legacy_single'
)`, interviewID, at)
	if err != nil {
		return fmt.Errorf("failed to mirror legacy completion: %w", err)
	}
	return nil
}

// MarkCandidateCompleted implements InterviewStore
func (p *Postgres) MarkCandidateCompleted(ctx context.Context, interviewID, email string, at time.Time) (bool, error) {
	defer p.cache.Remove(interviewID)
	return markCandidate(ctx, p.db, interviewID, email, at)
}

// MarkInterviewCompleted implements InterviewStore
func (p *Postgres) MarkInterviewCompleted(ctx context.Context, interviewID string, at time.Time) error {
	defer p.cache.Remove(interviewID)
	return markInterview(ctx, p.db, interviewID, at)
}

// SaveFeedback implements FeedbackStore
func (p *Postgres) SaveFeedback(ctx context.Context, rec models.FeedbackRecord, completion *models.Completion) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode feedback: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO feedback (id, interview_id, owner_user_id, candidate_email, system_error, total_score, body, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id)
DO UPDATE SET interview_id=EXCLUDED.interview_id,
  owner_user_id=EXCLUDED.owner_user_id,
  candidate_email=EXCLUDED.candidate_email,
  system_error=EXCLUDED.system_error,
  total_score=EXCLUDED.total_score,
  body=EXCLUDED.body,
  created_at=EXCLUDED.created_at`,
		rec.ID, rec.InterviewID, rec.OwnerUserID, rec.CandidateEmail, rec.SystemError, rec.TotalScore, string(body), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}

	if completion != nil {
		_, err = tx.ExecContext(ctx, `
INSERT INTO completion_outbox (feedback_id, interview_id, candidate_email, completed_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (feedback_id)
DO UPDATE SET interview_id=EXCLUDED.interview_id,
  candidate_email=EXCLUDED.candidate_email,
  completed_at=EXCLUDED.completed_at`,
			rec.ID, completion.InterviewID, completion.CandidateEmail, completion.At)
		if err != nil {
			return fmt.Errorf("failed to record pending completion: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit feedback: %w", err)
	}
	return nil
}

// ApplyCompletion implements FeedbackStore
func (p *Postgres) ApplyCompletion(ctx context.Context, feedbackID string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var c models.Completion
	err = tx.QueryRowContext(ctx, `
SELECT feedback_id, interview_id, candidate_email, completed_at
FROM completion_outbox WHERE feedback_id = $1 FOR UPDATE`, feedbackID).
		Scan(&c.FeedbackID, &c.InterviewID, &c.CandidateEmail, &c.At)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read pending completion: %w", err)
	}

	if c.CandidateEmail == "" {
		err = markInterview(ctx, tx, c.InterviewID, c.At)
	} else {
		_, err = markCandidate(ctx, tx, c.InterviewID, c.CandidateEmail, c.At)
	}
	if err != nil {
		return fmt.Errorf("failed to apply completion: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM completion_outbox WHERE feedback_id = $1`, feedbackID); err != nil {
		return fmt.Errorf("failed to clear pending completion: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit completion: %w", err)
	}
	p.cache.Remove(c.InterviewID)
	return nil
}

// RecordCompletionFailure implements FeedbackStore
func (p *Postgres) RecordCompletionFailure(ctx context.Context, feedbackID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res, err := p.db.ExecContext(ctx, `
UPDATE completion_outbox SET attempts = attempts + 1, last_error = $2 WHERE feedback_id = $1`, feedbackID, msg)
	if err != nil {
		return fmt.Errorf("failed to record completion failure: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// PendingCompletions implements FeedbackStore
func (p *Postgres) PendingCompletions(ctx context.Context, limit int) ([]models.Completion, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
SELECT feedback_id, interview_id, candidate_email, completed_at, attempts, last_error
FROM completion_outbox ORDER BY completed_at, feedback_id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending completions: %w", err)
	}
	defer rows.Close()

	var out []models.Completion
	for rows.Next() {
		var c models.Completion
		if err := rows.Scan(&c.FeedbackID, &c.InterviewID, &c.CandidateEmail, &c.At, &c.Attempts, &c.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan pending completion: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanFeedback(row rowScanner) (models.FeedbackRecord, error) {
	var body []byte
	if err := row.Scan(&body); err != nil {
		return models.FeedbackRecord{}, err
	}
	var rec models.FeedbackRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return models.FeedbackRecord{}, fmt.Errorf("failed to decode feedback: %w", err)
	}
	return rec, nil
}

// GetFeedback implements FeedbackStore
func (p *Postgres) GetFeedback(ctx context.Context, id string) (models.FeedbackRecord, error) {
	rec, err := scanFeedback(p.db.QueryRowContext(ctx, `SELECT body FROM feedback WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.FeedbackRecord{}, ErrNotFound
	}
	if err != nil {
		return models.FeedbackRecord{}, fmt.Errorf("failed to get feedback: %w", err)
	}
	return rec, nil
}

// ListFeedback implements FeedbackStore
func (p *Postgres) ListFeedback(ctx context.Context, interviewID string) ([]models.FeedbackRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT body FROM feedback WHERE interview_id = $1 ORDER BY seq`, interviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	var out []models.FeedbackRecord
	for rows.Next() {
		rec, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close implements Store
func (p *Postgres) Close() error {
	return p.db.Close()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
