// Package notify delivers session codes to invited candidates
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/fmuoria/voice-interview-agent/internal/log"
)

// Invite is one session code delivery
type Invite struct {
	Email       string
	SessionCode string
	Role        string
	InterviewID string
	AppURL      string
}

// Notifier sends an invite to a candidate
type Notifier interface {
	Notify(ctx context.Context, inv Invite) error
}

// Subject returns the email subject line for an invite
func Subject(inv Invite) string {
	return fmt.Sprintf("Your Interview Session Code - %s", inv.Role)
}

// Body returns the plain-text email body for an invite
func Body(inv Invite) string {
	var sb strings.Builder
	sb.WriteString("Hi there!\n\n")
	sb.WriteString("Your interview session has been created.\n\n")
	sb.WriteString(fmt.Sprintf("Session Code: %s\n", inv.SessionCode))
	sb.WriteString(fmt.Sprintf("Role: %s\n", inv.Role))
	if inv.InterviewID != "" {
		sb.WriteString(fmt.Sprintf("Interview ID: %s\n", inv.InterviewID))
	}
	sb.WriteString("\nKeep this code safe: you'll need it together with this email address to start your interview.\n")
	if inv.AppURL != "" {
		sb.WriteString(fmt.Sprintf("\nStart your interview: %s\n", inv.AppURL))
	}
	sb.WriteString("\nGood luck!\n")
	return sb.String()
}

// LogNotifier logs invites instead of sending them
type LogNotifier struct{}

// Notify implements Notifier
func (LogNotifier) Notify(ctx context.Context, inv Invite) error {
	log.Info("session code issued", "email", inv.Email, "interview_id", inv.InterviewID, "session_code", inv.SessionCode)
	return nil
}
