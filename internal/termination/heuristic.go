// Package termination decides from transcript state whether an interviewer
// turn should end the call.
package termination

import (
	"strings"

	"github.com/fmuoria/voice-interview-agent/internal/models"
)

// DefaultMinTurns is the transcript length below which a call never auto-ends
const DefaultMinTurns = 5

// DefaultPhrases are the sign-off phrases that end a call
var DefaultPhrases = []string{"goodbye", "good luck", "thank you for your time"}

// Heuristic reports whether the turn just appended should end the call.
// turns includes justAdded as its last element.
type Heuristic interface {
	ShouldEnd(turns []models.Turn, justAdded models.Turn) bool
}

// Keyword ends the call when the interviewer says a sign-off phrase late
// enough in the conversation.
type Keyword struct {
	Phrases  []string
	MinTurns int
}

// NewKeyword creates the default keyword heuristic
func NewKeyword() *Keyword {
	return &Keyword{
		Phrases:  DefaultPhrases,
		MinTurns: DefaultMinTurns,
	}
}

// ShouldEnd implements Heuristic
func (k *Keyword) ShouldEnd(turns []models.Turn, justAdded models.Turn) bool {
	if justAdded.Speaker != models.SpeakerInterviewer {
		return false
	}
	if len(turns) < k.MinTurns {
		return false
	}

	text := strings.ToLower(justAdded.Text)
	for _, phrase := range k.Phrases {
		if phrase != "" && strings.Contains(text, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

// Func adapts a plain function to Heuristic
type Func func(turns []models.Turn, justAdded models.Turn) bool

// ShouldEnd implements Heuristic
func (f Func) ShouldEnd(turns []models.Turn, justAdded models.Turn) bool {
	return f(turns, justAdded)
}
