// Package call drives one voice call from start to handoff: it tracks the
// call state, builds the transcript from provider events, and decides when
// the call should end.
package call

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fmuoria/voice-interview-agent/internal/log"
	"github.com/fmuoria/voice-interview-agent/internal/models"
	"github.com/fmuoria/voice-interview-agent/internal/termination"
	"github.com/fmuoria/voice-interview-agent/internal/transcript"
	"github.com/fmuoria/voice-interview-agent/internal/voice"
)

// DefaultGracePeriod is how long a heuristic stop waits so the closing
// sentence can finish playing
const DefaultGracePeriod = 3 * time.Second

// ErrInvalidEmail is returned by SubmitEmail for an address without "@"
var ErrInvalidEmail = errors.New("email address must contain @")

// ErrCallInProgress is returned by Start while a call is connecting or active
var ErrCallInProgress = errors.New("call already in progress")

// State is the lifecycle state of a call
type State int

const (
	Idle State = iota
	Connecting
	Active
	Finished
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options selects the flow a call runs
type Options struct {
	Type      models.SessionType
	Questions []string
	UserName  string
}

// Result is handed to the Finisher when a call finishes
type Result struct {
	Type          models.SessionType
	Turns         []models.Turn
	CapturedEmail string
}

// Finisher consumes the transcript of a finished call
type Finisher interface {
	Finish(ctx context.Context, result Result)
}

// FinisherFunc adapts a function to Finisher
type FinisherFunc func(ctx context.Context, result Result)

// Finish implements Finisher
func (f FinisherFunc) Finish(ctx context.Context, result Result) {
	f(ctx, result)
}

// Hooks are optional UI callbacks. They are invoked outside the
// controller lock and may call back into the controller.
type Hooks struct {
	OnStateChange   func(State)
	OnTurn          func(models.Turn)
	OnEmailPrompt   func(visible bool)
	OnSpeaking      func(speaking bool)
	OnProviderError func(error)
}

type stopper interface {
	Stop() bool
}

// Controller owns one voice session and the state of its current call
type Controller struct {
	session   voice.Session
	heuristic termination.Heuristic
	finisher  Finisher
	hooks     Hooks
	grace     time.Duration
	afterFunc func(time.Duration, func()) stopper

	mu            sync.Mutex
	state         State
	opts          Options
	ctx           context.Context
	generation    uint64
	transcript    *transcript.Store
	capturedEmail string
	promptVisible bool
	stopTimer     stopper
	handedOff     bool
	listeners     map[voice.EventKind]voice.ListenerID
}

// Option configures a Controller
type Option func(*Controller)

// WithHeuristic replaces the default termination heuristic
func WithHeuristic(h termination.Heuristic) Option {
	return func(c *Controller) { c.heuristic = h }
}

// WithHooks sets the UI callbacks
func WithHooks(h Hooks) Option {
	return func(c *Controller) { c.hooks = h }
}

// WithGracePeriod overrides the delay before a heuristic stop
func WithGracePeriod(d time.Duration) Option {
	return func(c *Controller) { c.grace = d }
}

// NewController creates a controller for session that hands finished calls
// to finisher
func NewController(session voice.Session, finisher Finisher, opts ...Option) *Controller {
	c := &Controller{
		session:   session,
		heuristic: termination.NewKeyword(),
		finisher:  finisher,
		grace:     DefaultGracePeriod,
		afterFunc: func(d time.Duration, f func()) stopper { return time.AfterFunc(d, f) },
		state:     Idle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current call state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transcript returns a copy of the current call's turns
func (c *Controller) Transcript() []models.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transcript == nil {
		return nil
	}
	return c.transcript.Turns()
}

// CapturedEmail returns the email submitted during a setup call
func (c *Controller) CapturedEmail() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturedEmail
}

// EmailPromptVisible reports whether the manual email prompt is showing
func (c *Controller) EmailPromptVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.promptVisible
}

// Start begins a new call instance with an empty transcript
func (c *Controller) Start(ctx context.Context, opts Options) error {
	c.mu.Lock()
	if c.state == Connecting || c.state == Active {
		c.mu.Unlock()
		return ErrCallInProgress
	}

	c.generation++
	c.opts = opts
	c.ctx = context.WithoutCancel(ctx)
	c.transcript = transcript.NewStore()
	c.capturedEmail = ""
	c.promptVisible = false
	c.stopTimer = nil
	c.handedOff = false
	c.state = Connecting
	c.subscribe(c.generation)
	c.mu.Unlock()

	c.notifyState(Connecting)

	cfg := voice.AssessmentConfig(opts.Questions)
	if opts.Type == models.SessionSetup {
		cfg = voice.SetupConfig(opts.UserName)
	}

	log.Info("starting call", "type", opts.Type, "questions", len(opts.Questions))
	if err := c.session.Start(ctx, cfg); err != nil {
		c.mu.Lock()
		c.unsubscribe()
		if c.state == Connecting {
			c.state = Idle
		}
		c.mu.Unlock()
		c.notifyState(Idle)
		return fmt.Errorf("failed to start voice session: %w", err)
	}
	return nil
}

// Disconnect ends the call immediately, pre-empting any pending delayed stop
func (c *Controller) Disconnect() {
	c.mu.Lock()
	if c.state != Active && c.state != Connecting {
		c.mu.Unlock()
		return
	}
	if c.stopTimer != nil {
		c.stopTimer.Stop()
		c.stopTimer = nil
	}
	c.mu.Unlock()

	c.stopSession()
	c.finish()
}

// SubmitEmail records a manually typed email and injects it into the call
func (c *Controller) SubmitEmail(email string) error {
	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") {
		return ErrInvalidEmail
	}

	c.mu.Lock()
	c.capturedEmail = email
	wasVisible := c.promptVisible
	c.promptVisible = false
	c.mu.Unlock()

	if wasVisible && c.hooks.OnEmailPrompt != nil {
		c.hooks.OnEmailPrompt(false)
	}

	if err := c.session.Send(voice.AddMessage("user", email)); err != nil {
		return fmt.Errorf("failed to send email to call: %w", err)
	}
	return nil
}

// subscribe registers event handlers for the call instance gen. Caller holds c.mu.
func (c *Controller) subscribe(gen uint64) {
	c.unsubscribe()
	c.listeners = map[voice.EventKind]voice.ListenerID{
		voice.EventCallStart:   c.session.On(voice.EventCallStart, func(voice.Event) { c.handleCallStart(gen) }),
		voice.EventCallEnd:     c.session.On(voice.EventCallEnd, func(voice.Event) { c.handleCallEnd(gen) }),
		voice.EventMessage:     c.session.On(voice.EventMessage, func(ev voice.Event) { c.handleMessage(gen, ev) }),
		voice.EventSpeechStart: c.session.On(voice.EventSpeechStart, func(voice.Event) { c.handleSpeech(gen, true) }),
		voice.EventSpeechEnd:   c.session.On(voice.EventSpeechEnd, func(voice.Event) { c.handleSpeech(gen, false) }),
		voice.EventError:       c.session.On(voice.EventError, func(ev voice.Event) { c.handleError(gen, ev) }),
	}
}

// unsubscribe removes the current handlers. Caller holds c.mu.
func (c *Controller) unsubscribe() {
	for kind, id := range c.listeners {
		c.session.Off(kind, id)
	}
	c.listeners = nil
}

func (c *Controller) handleCallStart(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.state != Connecting {
		c.mu.Unlock()
		return
	}
	c.state = Active
	c.mu.Unlock()

	log.Info("call connected")
	c.notifyState(Active)
}

func (c *Controller) handleCallEnd(gen uint64) {
	c.mu.Lock()
	current := gen == c.generation
	c.mu.Unlock()
	if !current {
		return
	}
	c.finish()
}

func (c *Controller) handleSpeech(gen uint64, speaking bool) {
	c.mu.Lock()
	current := gen == c.generation && c.state == Active
	c.mu.Unlock()
	if current && c.hooks.OnSpeaking != nil {
		c.hooks.OnSpeaking(speaking)
	}
}

func (c *Controller) handleError(gen uint64, ev voice.Event) {
	c.mu.Lock()
	current := gen == c.generation
	c.mu.Unlock()
	if !current {
		return
	}

	err := ev.Err
	if err == nil {
		err = errors.New("unknown voice provider error")
	}
	log.Warn("voice provider error", "error", err)
	if c.hooks.OnProviderError != nil {
		c.hooks.OnProviderError(err)
	}
}

func (c *Controller) handleMessage(gen uint64, ev voice.Event) {
	if ev.Message == nil || !ev.Message.IsFinalTranscript() {
		return
	}
	speaker, ok := transcript.SpeakerForRole(ev.Message.Role)
	if !ok {
		return
	}
	turn := models.Turn{Speaker: speaker, Text: ev.Message.Transcript}

	c.mu.Lock()
	if gen != c.generation || (c.state != Active && c.state != Connecting) {
		c.mu.Unlock()
		return
	}
	c.transcript.Append(turn)

	showPrompt := false
	if speaker == models.SpeakerInterviewer && c.opts.Type == models.SessionSetup &&
		c.capturedEmail == "" && !c.promptVisible && mentionsEmail(turn.Text) {
		c.promptVisible = true
		showPrompt = true
	}

	scheduled := false
	if c.stopTimer == nil && c.heuristic.ShouldEnd(c.transcript.Turns(), turn) {
		c.stopTimer = c.afterFunc(c.grace, func() { c.delayedStop(gen) })
		scheduled = true
	}
	c.mu.Unlock()

	if c.hooks.OnTurn != nil {
		c.hooks.OnTurn(turn)
	}
	if showPrompt && c.hooks.OnEmailPrompt != nil {
		c.hooks.OnEmailPrompt(true)
	}
	if scheduled {
		log.Info("closing phrase detected, stopping call", "grace", c.grace)
	}
}

func (c *Controller) delayedStop(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.stopTimer == nil {
		c.mu.Unlock()
		return
	}
	c.stopTimer = nil
	live := c.state == Active || c.state == Connecting
	c.mu.Unlock()

	if live {
		c.stopSession()
	}
}

func (c *Controller) stopSession() {
	if err := c.session.Stop(); err != nil {
		log.Warn("failed to stop voice session", "error", err)
	}
}

// finish moves the current instance to Finished and hands off its
// transcript exactly once
func (c *Controller) finish() {
	c.mu.Lock()
	if c.state != Active && c.state != Connecting {
		c.mu.Unlock()
		return
	}
	c.state = Finished
	if c.stopTimer != nil {
		c.stopTimer.Stop()
		c.stopTimer = nil
	}
	c.unsubscribe()

	handoff := !c.handedOff
	c.handedOff = true
	result := Result{
		Type:          c.opts.Type,
		Turns:         c.transcript.Turns(),
		CapturedEmail: c.capturedEmail,
	}
	ctx := c.ctx
	c.mu.Unlock()

	log.Info("call finished", "turns", len(result.Turns))
	c.notifyState(Finished)

	if handoff && c.finisher != nil {
		c.finisher.Finish(ctx, result)
	}
}

func (c *Controller) notifyState(s State) {
	if c.hooks.OnStateChange != nil {
		c.hooks.OnStateChange(s)
	}
}

func mentionsEmail(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "email") || strings.Contains(lower, "e-mail")
}
