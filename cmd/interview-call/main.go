// Command interview-call runs one voice call from the console. It connects
// the call controller to a websocket voice bridge and talks to the agent
// server for sessions, questions and feedback.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fmuoria/voice-interview-agent/internal/agent"
	"github.com/fmuoria/voice-interview-agent/internal/api"
	"github.com/fmuoria/voice-interview-agent/internal/call"
	"github.com/fmuoria/voice-interview-agent/internal/config"
	"github.com/fmuoria/voice-interview-agent/internal/extraction"
	"github.com/fmuoria/voice-interview-agent/internal/log"
	"github.com/fmuoria/voice-interview-agent/internal/models"
	"github.com/fmuoria/voice-interview-agent/internal/voice"
)

// outcomeWait bounds how long to wait for the handoff after a forced stop
const outcomeWait = 3 * time.Minute

type options struct {
	apiURL    string
	bridgeURL string
	setup     bool
	userID    string
	userName  string
	email     string
	code      string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)

	var opts options
	flag.StringVar(&opts.apiURL, "api", cfg.AppURL, "agent server base URL")
	flag.StringVar(&opts.bridgeURL, "bridge", os.Getenv("VOICE_BRIDGE_URL"), "websocket URL of the voice bridge")
	flag.BoolVar(&opts.setup, "setup", false, "run an HR setup call instead of a candidate assessment")
	flag.StringVar(&opts.userID, "user", "", "id of the signed-in HR user (setup), or owner for interviews without one")
	flag.StringVar(&opts.userName, "name", "", "name the setup assistant greets")
	flag.StringVar(&opts.email, "email", "", "candidate email (assessment)")
	flag.StringVar(&opts.code, "code", "", "candidate session code (assessment)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdin, os.Stdout); err != nil {
		log.Error("call failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, in io.Reader, out io.Writer) error {
	if opts.bridgeURL == "" {
		return errors.New("a voice bridge URL is required (-bridge or VOICE_BRIDGE_URL)")
	}

	client := api.NewClient(opts.apiURL)
	ia := agent.NewInterviewAgent(
		extraction.NewClient(client.ExtractURL(), client.HTTPClient()),
		client,
	)

	callOpts := call.Options{Type: models.SessionAssessment, UserName: opts.userName}
	cc := agent.CallContext{UserID: opts.userID}

	if opts.setup {
		callOpts.Type = models.SessionSetup
	} else {
		cs, err := client.SignIn(ctx, opts.email, opts.code)
		if err != nil {
			return fmt.Errorf("failed to sign in: %w", err)
		}
		view, err := client.GetInterview(ctx, cs.InterviewID)
		if err != nil {
			return fmt.Errorf("failed to load interview: %w", err)
		}
		callOpts.Questions = view.Questions
		cc = assessmentContext(opts.userID, cs, view)
		fmt.Fprintf(out, "Signed in for %s (%d questions)\n", view.Role, len(view.Questions))
	}
	ia.SetCallContext(cc)

	outcomes := make(chan agent.Outcome, 1)
	ia.SetOutcomeCallback(func(o agent.Outcome) {
		select {
		case outcomes <- o:
		default:
		}
	})

	var header http.Header
	if token := os.Getenv("VOICE_BRIDGE_TOKEN"); token != "" {
		header = http.Header{"Authorization": []string{"Bearer " + token}}
	}
	session := voice.NewWSSession(opts.bridgeURL, header)

	ctrl := call.NewController(session, ia, call.WithHooks(call.Hooks{
		OnStateChange: func(s call.State) { fmt.Fprintf(out, "[%s]\n", s) },
		OnTurn:        func(t models.Turn) { fmt.Fprintf(out, "%s: %s\n", t.Speaker.Label(), t.Text) },
		OnEmailPrompt: func(visible bool) {
			if visible {
				fmt.Fprintln(out, "Type the candidate email addresses and press enter.")
			}
		},
		OnProviderError: func(err error) { fmt.Fprintf(out, "voice provider error: %v\n", err) },
	}))

	if err := ctrl.Start(ctx, callOpts); err != nil {
		return err
	}
	fmt.Fprintln(out, "Call started. Type \"end\" to hang up.")

	go readCommands(in, out, ctrl)

	var o agent.Outcome
	select {
	case o = <-outcomes:
	case <-ctx.Done():
		ctrl.Disconnect()
		select {
		case o = <-outcomes:
		case <-time.After(outcomeWait):
			return errors.New("timed out waiting for the call to finish")
		}
	}

	return report(ctx, out, client, o)
}

// assessmentContext scores a candidate call under the interview owner so
// the HR user who created it can read the feedback. userID is used only
// when the record has no owner.
func assessmentContext(userID string, cs models.CandidateSession, view api.InterviewView) agent.CallContext {
	owner := view.OwnerUserID
	if owner == "" {
		owner = userID
	}
	return agent.CallContext{
		UserID:         owner,
		InterviewID:    cs.InterviewID,
		CandidateEmail: cs.Email,
	}
}

func readCommands(in io.Reader, out io.Writer, ctrl *call.Controller) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case strings.EqualFold(line, "end"):
			ctrl.Disconnect()
			return
		case strings.Contains(line, "@"):
			if err := ctrl.SubmitEmail(line); err != nil {
				fmt.Fprintf(out, "could not send email: %v\n", err)
			}
		default:
			fmt.Fprintln(out, "Commands: end, or an email address")
		}
	}
}

func report(ctx context.Context, out io.Writer, client *api.Client, o agent.Outcome) error {
	switch o.Kind {
	case agent.OutcomeLanding:
		if o.Err != nil {
			fmt.Fprintf(out, "Interview was not created: %s\n", o.Message)
			return nil
		}
		fmt.Fprintf(out, "Interview %s created. Session codes are on their way.\n", o.InterviewID)
	case agent.OutcomeFeedback:
		fb, err := client.GetFeedback(ctx, o.FeedbackID)
		if err != nil {
			fmt.Fprintf(out, "Feedback %s saved.\n", o.FeedbackID)
			return nil
		}
		fmt.Fprintf(out, "Feedback %s saved. Total score: %.0f/100\n", fb.ID, fb.TotalScore)
		if o.Degraded {
			fmt.Fprintln(out, "Scoring was unavailable; a placeholder evaluation was stored.")
		}
		if o.CompletionPending {
			fmt.Fprintln(out, "The interview will be marked completed shortly.")
		}
	case agent.OutcomeError:
		if o.Message != "" {
			fmt.Fprintln(out, o.Message)
		}
		return o.Err
	}
	return nil
}
