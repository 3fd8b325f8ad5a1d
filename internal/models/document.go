package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// InterviewDocument is the stored interview layout. Older documents carry a
// single top-level Email/SessionCode pair and no Candidates array; newer
// ones carry Candidates and mirror the first entry into the legacy fields.
type InterviewDocument struct {
	ID          string      `json:"id"`
	UserID      string      `json:"userId"`
	Role        string      `json:"role"`
	Level       string      `json:"level"`
	TechStack   []string    `json:"techstack"`
	Type        string      `json:"type"`
	Amount      int         `json:"amount,omitempty"`
	Questions   []string    `json:"questions"`
	Finalized   bool        `json:"finalized"`
	Candidates  []Candidate `json:"candidates,omitempty"`
	Email       string      `json:"email,omitempty"`
	SessionCode string      `json:"sessionCode,omitempty"`
	Completed   bool        `json:"completed,omitempty"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Shape reports which layout the document uses
func (d InterviewDocument) Shape() RecordShape {
	if d.Candidates != nil {
		return ShapeRoster
	}
	return ShapeLegacySingle
}

// Normalize converts the document into the single internal representation
func (d InterviewDocument) Normalize() InterviewRecord {
	rec := InterviewRecord{
		ID:            d.ID,
		OwnerUserID:   d.UserID,
		Role:          d.Role,
		Level:         d.Level,
		TechStack:     d.TechStack,
		Type:          d.Type,
		QuestionCount: d.Amount,
		Questions:     d.Questions,
		Finalized:     d.Finalized,
		Shape:         d.Shape(),
		Completed:     d.Completed,
		CompletedAt:   d.CompletedAt,
		CreatedAt:     d.CreatedAt,
	}
	if rec.QuestionCount == 0 {
		rec.QuestionCount = len(d.Questions)
	}

	switch rec.Shape {
	case ShapeRoster:
		rec.Candidates = make([]Candidate, len(d.Candidates))
		copy(rec.Candidates, d.Candidates)
	case ShapeLegacySingle:
		if d.Email != "" || d.SessionCode != "" {
			rec.Candidates = []Candidate{{
				Email:       d.Email,
				SessionCode: d.SessionCode,
				Completed:   d.Completed,
				CompletedAt: d.CompletedAt,
			}}
		}
	}
	return rec
}

// DocumentFrom converts a normalized record back to the stored layout
func DocumentFrom(rec InterviewRecord) InterviewDocument {
	doc := InterviewDocument{
		ID:          rec.ID,
		UserID:      rec.OwnerUserID,
		Role:        rec.Role,
		Level:       rec.Level,
		TechStack:   rec.TechStack,
		Type:        rec.Type,
		Amount:      rec.QuestionCount,
		Questions:   rec.Questions,
		Finalized:   rec.Finalized,
		Completed:   rec.Completed,
		CompletedAt: rec.CompletedAt,
		CreatedAt:   rec.CreatedAt,
	}
	if rec.Shape == ShapeRoster {
		doc.Candidates = make([]Candidate, len(rec.Candidates))
		copy(doc.Candidates, rec.Candidates)
	}
	if len(rec.Candidates) > 0 {
		doc.Email = rec.Candidates[0].Email
		doc.SessionCode = rec.Candidates[0].SessionCode
	}
	return doc
}

// DecodeInterviews parses a JSON array of stored documents into normalized records
func DecodeInterviews(data []byte) ([]InterviewRecord, error) {
	var docs []InterviewDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse interview documents: %w", err)
	}

	records := make([]InterviewRecord, 0, len(docs))
	for i, doc := range docs {
		if strings.TrimSpace(doc.ID) == "" {
			return nil, fmt.Errorf("interview document %d has no id", i)
		}
		records = append(records, doc.Normalize())
	}
	return records, nil
}
