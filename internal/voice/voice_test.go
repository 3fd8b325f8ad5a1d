package voice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestEmitterOrderAndOff(t *testing.T) {
	var e Emitter
	var got []string

	e.On(EventMessage, func(Event) { got = append(got, "first") })
	id := e.On(EventMessage, func(Event) { got = append(got, "second") })
	e.On(EventMessage, func(Event) { got = append(got, "third") })
	e.On(EventCallEnd, func(Event) { got = append(got, "end") })

	e.Emit(Event{Kind: EventMessage})
	if strings.Join(got, ",") != "first,second,third" {
		t.Errorf("Unexpected dispatch order: %v", got)
	}

	got = nil
	e.Off(EventMessage, id)
	e.Emit(Event{Kind: EventMessage})
	if strings.Join(got, ",") != "first,third" {
		t.Errorf("Handler not removed: %v", got)
	}
	if e.Count(EventMessage) != 2 {
		t.Errorf("Expected 2 message handlers, got %d", e.Count(EventMessage))
	}

	// Removing an unknown id is a no-op
	e.Off(EventSpeechStart, 99)
}

func TestMessageIsFinalTranscript(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{name: "Final", msg: Message{Type: "transcript", TranscriptType: "final"}, want: true},
		{name: "Partial", msg: Message{Type: "transcript", TranscriptType: "partial"}, want: false},
		{name: "Other type", msg: Message{Type: "function-call", TranscriptType: "final"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.IsFinalTranscript(); got != tt.want {
				t.Errorf("IsFinalTranscript() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAssessmentConfigListsQuestionsInOrder(t *testing.T) {
	questions := []string{"What is a goroutine?", "Explain channels.", "How do you test HTTP handlers?"}
	cfg := AssessmentConfig(questions)

	last := -1
	for _, q := range questions {
		idx := strings.Index(cfg.SystemPrompt, "- "+q)
		if idx == -1 {
			t.Fatalf("Question %q missing from prompt", q)
		}
		if idx < last {
			t.Errorf("Question %q out of order", q)
		}
		last = idx
	}
	if !strings.Contains(cfg.SystemPrompt, "Goodbye") {
		t.Error("Expected fixed sign-off in the prompt")
	}
	if cfg.FirstMessage == "" {
		t.Error("Expected a first message")
	}
}

func TestSetupConfigScript(t *testing.T) {
	cfg := SetupConfig("Dana")

	for _, q := range SetupQuestions {
		if !strings.Contains(cfg.SystemPrompt, q) {
			t.Errorf("Setup prompt missing question %q", q)
		}
	}
	if !strings.Contains(cfg.SystemPrompt, "end the call immediately") {
		t.Error("Expected end-call instruction")
	}
	if !strings.Contains(cfg.FirstMessage, "Dana") {
		t.Errorf("Expected user name in first message: %q", cfg.FirstMessage)
	}
	if !strings.Contains(SetupConfig("").FirstMessage, "Hey there") {
		t.Error("Expected generic greeting for empty user name")
	}
}

func newBridge(t *testing.T, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		script(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSSessionDeliversEventsInOrder(t *testing.T) {
	received := make(chan wsFrame, 4)
	srv := newBridge(t, func(conn *websocket.Conn) {
		var start wsFrame
		if err := conn.ReadJSON(&start); err != nil {
			t.Errorf("Failed to read start frame: %v", err)
			return
		}
		received <- start

		conn.WriteJSON(map[string]any{"type": "call-start"})
		conn.WriteJSON(map[string]any{
			"type": "message",
			"message": map[string]string{
				"type":           "transcript",
				"transcriptType": "final",
				"role":           "assistant",
				"transcript":     "Hello there",
			},
		})
		conn.WriteJSON(map[string]any{"type": "error", "error": "jitter"})

		var add wsFrame
		if err := conn.ReadJSON(&add); err == nil {
			received <- add
		}
		conn.WriteJSON(map[string]any{"type": "call-end"})
	})

	s := NewWSSession(wsURL(srv), nil)
	events := make(chan Event, 8)
	for _, kind := range []EventKind{EventCallStart, EventMessage, EventError, EventCallEnd} {
		s.On(kind, func(ev Event) { events <- ev })
	}

	if err := s.Start(context.Background(), AssessmentConfig([]string{"Q1"})); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	start := <-received
	if start.Type != "start" || start.Assistant == nil || start.Assistant.Name != "Interviewer" {
		t.Errorf("Unexpected start frame: %+v", start)
	}

	want := []EventKind{EventCallStart, EventMessage, EventError}
	for _, kind := range want {
		select {
		case ev := <-events:
			if ev.Kind != kind {
				t.Fatalf("Expected %s, got %s", kind, ev.Kind)
			}
			if kind == EventMessage && (ev.Message == nil || ev.Message.Transcript != "Hello there") {
				t.Errorf("Unexpected message payload: %+v", ev.Message)
			}
			if kind == EventError && (ev.Err == nil || ev.Err.Error() != "jitter") {
				t.Errorf("Unexpected error payload: %v", ev.Err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for %s", kind)
		}
	}

	if err := s.Send(AddMessage("user", "a@b.com")); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}
	add := <-received
	if add.Type != "add-message" || !strings.Contains(string(add.Message), "a@b.com") {
		t.Errorf("Unexpected add-message frame: %+v", add)
	}

	select {
	case ev := <-events:
		if ev.Kind != EventCallEnd {
			t.Errorf("Expected call-end, got %s", ev.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for call-end")
	}
}

func TestWSSessionSendBeforeStart(t *testing.T) {
	s := NewWSSession("ws://127.0.0.1:1", nil)
	if err := s.Send(AddMessage("user", "x")); err != ErrNotStarted {
		t.Errorf("Expected ErrNotStarted, got %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop() on idle session should be a no-op, got %v", err)
	}
}

func TestWSSessionStartFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no bridge here", http.StatusForbidden)
	}))
	defer srv.Close()

	s := NewWSSession(wsURL(srv), nil)
	err := s.Start(context.Background(), SetupConfig("x"))
	if err == nil {
		t.Fatal("Expected dial error")
	}
	if !strings.Contains(err.Error(), "403") {
		t.Errorf("Expected status in error, got %v", err)
	}
}
