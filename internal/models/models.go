package models

import (
	"strings"
	"time"
)

// Speaker identifies who produced a turn
type Speaker string

const (
	SpeakerInterviewer Speaker = "interviewer"
	SpeakerCandidate   Speaker = "candidate"
)

// Label returns the upper-cased transcript label for the speaker
func (s Speaker) Label() string {
	return strings.ToUpper(string(s))
}

// Turn is one finalized utterance in a voice session
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// SessionType selects which flow a voice session drives
type SessionType string

const (
	SessionSetup      SessionType = "setup"
	SessionAssessment SessionType = "assessment"
)

// RecordShape tags which stored layout an interview record came from
type RecordShape string

const (
	// ShapeRoster records carry a candidates[] array
	ShapeRoster RecordShape = "roster"
	// ShapeLegacySingle records carry one top-level email/sessionCode pair
	ShapeLegacySingle RecordShape = "legacy_single"
)

// Candidate is one invited participant of an interview
type Candidate struct {
	Email       string     `json:"email"`
	SessionCode string     `json:"sessionCode"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// InterviewRecord is the normalized in-memory form of a stored interview.
// Legacy single-candidate records are represented as a one-entry roster
// with Shape set to ShapeLegacySingle.
type InterviewRecord struct {
	ID            string      `json:"id"`
	OwnerUserID   string      `json:"ownerUserId"`
	Role          string      `json:"role"`
	Level         string      `json:"level"`
	TechStack     []string    `json:"techStack"`
	Type          string      `json:"type"`
	QuestionCount int         `json:"questionCount"`
	Questions     []string    `json:"questions"`
	Finalized     bool        `json:"finalized"`
	Shape         RecordShape `json:"shape"`
	Candidates    []Candidate `json:"candidates"`
	Completed     bool        `json:"completed"`
	CompletedAt   *time.Time  `json:"completedAt,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// FindCandidate returns the roster entry with exactly the given email
func (r InterviewRecord) FindCandidate(email string) (Candidate, bool) {
	for _, c := range r.Candidates {
		if c.Email == email {
			return c, true
		}
	}
	return Candidate{}, false
}

// CompletedCount returns how many roster entries have completed
func (r InterviewRecord) CompletedCount() int {
	n := 0
	for _, c := range r.Candidates {
		if c.Completed {
			n++
		}
	}
	return n
}

// CandidateSession is the scoped credential a candidate signs in with
type CandidateSession struct {
	Email       string    `json:"email"`
	SessionCode string    `json:"sessionCode"`
	InterviewID string    `json:"interviewId"`
	AssignedAt  time.Time `json:"assignedAt"`
}

// Category names in the fixed order the rubric scores them
const (
	CategoryCommunication = "Communication Skills"
	CategoryTechnical     = "Technical Knowledge"
	CategoryProblem       = "Problem Solving"
	CategoryCulturalFit   = "Cultural Fit"
	CategoryConfidence    = "Confidence and Clarity"
)

// CategoryNames lists the rubric categories in order
var CategoryNames = [5]string{
	CategoryCommunication,
	CategoryTechnical,
	CategoryProblem,
	CategoryCulturalFit,
	CategoryConfidence,
}

// CategoryScore is the score and comment for one rubric category
type CategoryScore struct {
	Name    string  `json:"name"`
	Score   float64 `json:"score"`
	Comment string  `json:"comment"`
}

// Evaluation is the structured result of scoring one interview
type Evaluation struct {
	TotalScore          float64         `json:"totalScore"`
	CategoryScores      []CategoryScore `json:"categoryScores"`
	Strengths           []string        `json:"strengths"`
	AreasForImprovement []string        `json:"areasForImprovement"`
	FinalAssessment     string          `json:"finalAssessment"`
}

// FeedbackRecord is a persisted evaluation of one candidate's interview
type FeedbackRecord struct {
	ID             string `json:"id"`
	InterviewID    string `json:"interviewId"`
	OwnerUserID    string `json:"ownerUserId"`
	CandidateEmail string `json:"candidateEmail,omitempty"`
	Evaluation
	// SystemError marks a fallback evaluation produced because scoring failed
	SystemError bool      `json:"systemError"`
	CreatedAt   time.Time `json:"createdAt"`
	Transcript  []Turn    `json:"transcript"`
}

// Completion is a pending completion mark for an interview record.
// An empty CandidateEmail targets the record's own completed flag.
type Completion struct {
	FeedbackID     string    `json:"feedbackId"`
	InterviewID    string    `json:"interviewId"`
	CandidateEmail string    `json:"candidateEmail,omitempty"`
	At             time.Time `json:"at"`
	Attempts       int       `json:"attempts"`
	LastError      string    `json:"lastError,omitempty"`
}
