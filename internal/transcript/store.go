// Package transcript holds the ordered turns of one voice call.
package transcript

import (
	"strings"

	"github.com/fmuoria/voice-interview-agent/internal/models"
)

// Store is an append-only, order-preserving sequence of turns.
// It is owned by exactly one call and is not safe for concurrent appends.
type Store struct {
	turns []models.Turn
}

// NewStore creates an empty transcript
func NewStore() *Store {
	return &Store{}
}

// Append adds a turn at the end of the transcript
func (s *Store) Append(turn models.Turn) {
	s.turns = append(s.turns, turn)
}

// Len returns the number of turns
func (s *Store) Len() int {
	return len(s.turns)
}

// Turns returns a copy of all turns in arrival order
func (s *Store) Turns() []models.Turn {
	out := make([]models.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Last returns the most recent turn
func (s *Store) Last() (models.Turn, bool) {
	if len(s.turns) == 0 {
		return models.Turn{}, false
	}
	return s.turns[len(s.turns)-1], true
}

// Count returns how many turns the speaker authored
func (s *Store) Count(speaker models.Speaker) int {
	return Count(s.turns, speaker)
}

// Count returns how many of the turns the speaker authored
func Count(turns []models.Turn, speaker models.Speaker) int {
	n := 0
	for _, t := range turns {
		if t.Speaker == speaker {
			n++
		}
	}
	return n
}

// Format serializes turns into "SPEAKER: text" lines separated by a blank line
func Format(turns []models.Turn) string {
	var sb strings.Builder
	for i, t := range turns {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(t.Speaker.Label())
		sb.WriteString(": ")
		sb.WriteString(t.Text)
	}
	return sb.String()
}

// SpeakerForRole maps a voice provider role to a transcript speaker.
// Only assistant and user roles produce transcript turns.
func SpeakerForRole(role string) (models.Speaker, bool) {
	switch role {
	case "assistant":
		return models.SpeakerInterviewer, true
	case "user":
		return models.SpeakerCandidate, true
	default:
		return "", false
	}
}
