package interviews

import (
	"context"
	"errors"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/fmuoria/voice-interview-agent/internal/llm"
	"github.com/fmuoria/voice-interview-agent/internal/models"
	"github.com/fmuoria/voice-interview-agent/internal/notify"
	"github.com/fmuoria/voice-interview-agent/internal/store"
)

type recordingNotifier struct {
	invites []notify.Invite
	failFor string
}

func (n *recordingNotifier) Notify(ctx context.Context, inv notify.Invite) error {
	n.invites = append(n.invites, inv)
	if inv.Email == n.failFor {
		return errors.New("smtp down")
	}
	return nil
}

const paramsReply = `{"role":"Backend Engineer","level":"Senior","techstack":"Go, Postgres , ","type":"Technical","amount":"3","email":"A@x.com, b@x.com, a@x.com, nobody"}`

func newTestExtractor(client llm.Client, s Creator, n notify.Notifier) *Extractor {
	e := NewExtractor(client, s, n)
	e.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	e.newID = func() string { return "int-new" }
	return e
}

func TestExtract(t *testing.T) {
	mem := store.NewMemory()
	n := &recordingNotifier{failFor: "a@x.com"}
	client := llm.NewFake(
		llm.Reply{Text: paramsReply},
		llm.Reply{Text: `["Tell me about Go.", " ", "Explain indexes.", "Describe a hard bug."]`},
	)
	e := newTestExtractor(client, mem, n)

	rec, err := e.Extract(context.Background(), Request{Transcript: "assistant: hi\nuser: hello", RequesterID: "hr-1"})
	if err != nil {
		t.Fatalf("Extract() failed: %v", err)
	}

	if rec.ID != "int-new" || rec.OwnerUserID != "hr-1" || !rec.Finalized || rec.Shape != models.ShapeRoster {
		t.Errorf("Unexpected record header: %+v", rec)
	}
	if !reflect.DeepEqual(rec.TechStack, []string{"Go", "Postgres"}) {
		t.Errorf("TechStack = %q", rec.TechStack)
	}
	if rec.QuestionCount != 3 || len(rec.Questions) != 3 {
		t.Errorf("Expected 3 questions, got %d: %q", rec.QuestionCount, rec.Questions)
	}
	if len(rec.Candidates) != 2 || rec.Candidates[0].Email != "a@x.com" || rec.Candidates[1].Email != "b@x.com" {
		t.Fatalf("Unexpected candidates: %+v", rec.Candidates)
	}
	if rec.Candidates[0].SessionCode == rec.Candidates[1].SessionCode {
		t.Errorf("Session codes must be unique within the roster")
	}

	stored, err := mem.GetInterview(context.Background(), "int-new")
	if err != nil {
		t.Fatalf("Interview not stored: %v", err)
	}
	if len(stored.Candidates) != 2 {
		t.Errorf("Stored record lost candidates")
	}

	if len(n.invites) != 2 {
		t.Errorf("Every candidate should be notified even when one fails, got %d", len(n.invites))
	}

	reqs := client.Requests()
	if _, ok := reqs[0].Schema.Properties["email"]; !ok {
		t.Errorf("Schema should ask for emails when none were captured")
	}
	if !strings.Contains(reqs[1].Prompt, "Generate 3 interview questions") {
		t.Errorf("Questions prompt should carry the count: %s", reqs[1].Prompt)
	}
}

func TestExtractCapturedEmailWins(t *testing.T) {
	client := llm.NewFake(
		llm.Reply{Text: `{"role":"QA","level":"Junior","techstack":"","type":"Mixed","amount":"two"}`},
		llm.Reply{Text: `["Q1"]`},
	)
	e := newTestExtractor(client, store.NewMemory(), &recordingNotifier{})

	rec, err := e.Extract(context.Background(), Request{Transcript: "x", RequesterID: "hr", Email: "Typed@X.com"})
	if err != nil {
		t.Fatalf("Extract() failed: %v", err)
	}
	if len(rec.Candidates) != 1 || rec.Candidates[0].Email != "typed@x.com" {
		t.Errorf("Unexpected candidates: %+v", rec.Candidates)
	}
	reqs := client.Requests()
	if _, ok := reqs[0].Schema.Properties["email"]; ok {
		t.Errorf("Schema should not ask for emails when one was captured")
	}
	if !strings.Contains(reqs[1].Prompt, "Generate 5 interview questions") {
		t.Errorf("Unparseable amount should fall back to the default count")
	}
}

func TestExtractNoValidEmails(t *testing.T) {
	mem := store.NewMemory()
	client := llm.NewFake(llm.Reply{Text: `{"role":"QA","email":"none given"}`})
	e := newTestExtractor(client, mem, nil)

	if _, err := e.Extract(context.Background(), Request{Transcript: "x"}); !errors.Is(err, ErrNoValidEmails) {
		t.Fatalf("Expected ErrNoValidEmails, got %v", err)
	}
	list, _ := mem.ListFinalizedInterviews(context.Background())
	if len(list) != 0 {
		t.Errorf("Nothing should be stored")
	}
}

func TestExtractModelFailure(t *testing.T) {
	tests := []struct {
		name    string
		replies []llm.Reply
	}{
		{name: "Params error", replies: []llm.Reply{{Err: errors.New("down")}}},
		{name: "Questions not JSON", replies: []llm.Reply{{Text: paramsReply}, {Text: "Here are some questions"}}},
		{name: "Questions empty", replies: []llm.Reply{{Text: paramsReply}, {Text: `[]`}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExtractor(llm.NewFake(tt.replies...), store.NewMemory(), nil)
			if _, err := e.Extract(context.Background(), Request{Transcript: "x"}); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestParseEmails(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "Single", raw: "a@x.com", want: []string{"a@x.com"}},
		{name: "Trim and lower", raw: "  A@X.com ,B@y.org", want: []string{"a@x.com", "b@y.org"}},
		{name: "Dedupe", raw: "a@x.com, A@x.com", want: []string{"a@x.com"}},
		{name: "Drop invalid", raw: "nobody, , a@x.com", want: []string{"a@x.com"}},
		{name: "Empty", raw: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseEmails(tt.raw); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseEmails(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"5", 5},
		{" 10 ", 10},
		{"7 questions", 7},
		{"ten", DefaultQuestionCount},
		{"0", DefaultQuestionCount},
		{"500", maxQuestionCount},
	}
	for _, tt := range tests {
		if got := parseAmount(tt.in); got != tt.want {
			t.Errorf("parseAmount(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNewCode(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	code := NewCode(at)
	if !regexp.MustCompile(`^[0-9A-Z]{9,}$`).MatchString(code) {
		t.Errorf("Unexpected code format %q", code)
	}
	if !strings.HasSuffix(code, strings.ToUpper(strconv.FormatInt(at.UnixMilli(), 36))) {
		t.Errorf("Code %q should end with the base36 timestamp", code)
	}

	taken := map[string]bool{}
	for i := 0; i < 50; i++ {
		c := UniqueCode(taken, at)
		if taken[c] {
			t.Fatalf("UniqueCode returned a taken code %q", c)
		}
		taken[c] = true
	}
}
