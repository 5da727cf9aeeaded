package chat

import (
	"errors"
	"testing"
	"time"

	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/domain"
)

func TestSessionStartsInFreeTextMode(t *testing.T) {
	t.Parallel()

	s := newSession("u1")
	if s.Mode() != domain.InputFreeText {
		t.Fatalf("new session must accept free text, got %s", s.Mode())
	}
}

func TestSessionModeFollowsAssistantReply(t *testing.T) {
	t.Parallel()

	s := newSession("u1")
	s.AppendAssistant(&domain.Reply{
		Message: "Which provider?",
		Options: []domain.ChoiceOption{{Text: "AWS", Value: "aws"}, {Text: "GCP", Value: "gcp"}},
	}, time.Now(), s.Generation())

	if s.Mode() != domain.InputChoice {
		t.Fatal("a reply with options must put the session into choice mode")
	}
	if !s.MatchesOption("aws") || !s.MatchesOption("AWS") {
		t.Fatal("option matching must be case-insensitive on the value")
	}
	if s.MatchesOption("azure") {
		t.Fatal("non-offered value must not match")
	}

	s.AppendAssistant(&domain.Reply{Message: "Which region?", AllowFreeText: true}, time.Now(), s.Generation())
	if s.Mode() != domain.InputFreeText {
		t.Fatal("a reply without options must return the session to free text")
	}
	if s.MatchesOption("aws") {
		t.Fatal("stale options must not match after a free-text reply")
	}
}

func TestSessionHistoryIsAppendOnly(t *testing.T) {
	t.Parallel()

	s := newSession("u1")
	base := time.Now()
	s.AppendUser("create a vm", base)
	s.AppendAssistant(&domain.Reply{Message: "Which provider?"}, base.Add(time.Second), s.Generation())
	s.AppendSystem("note", base.Add(2*time.Second))

	msgs := s.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Role != domain.RoleUser || msgs[1].Role != domain.RoleAssistant || msgs[2].Role != domain.RoleSystem {
		t.Fatalf("messages out of order: %v", msgs)
	}

	// Mutating the returned slice must not affect the session.
	msgs[0].Text = "tampered"
	if s.Messages()[0].Text != "create a vm" {
		t.Fatal("Messages must return a copy")
	}
}

func TestSessionClear(t *testing.T) {
	t.Parallel()

	s := newSession("u1")
	s.AppendUser("create a vm", time.Now())
	s.AppendAssistant(&domain.Reply{
		Message: "Which provider?",
		Options: []domain.ChoiceOption{{Text: "AWS", Value: "aws"}},
	}, time.Now(), s.Generation())

	s.Clear()

	if len(s.Messages()) != 0 {
		t.Fatal("clear must empty the history")
	}
	if s.Mode() != domain.InputFreeText {
		t.Fatal("clear must reset the input mode to free text")
	}
	if s.MatchesOption("aws") {
		t.Fatal("clear must drop offered options")
	}

	// The session object survives a clear and keeps working.
	s.AppendUser("start over", time.Now())
	if len(s.Messages()) != 1 {
		t.Fatal("session must remain usable after clear")
	}
}

func TestSessionClearInvalidatesObservedGeneration(t *testing.T) {
	t.Parallel()

	s := newSession("u1")
	gen := s.Generation()
	s.Clear()

	appended := s.AppendAssistant(&domain.Reply{
		Message: "Which provider?",
		Options: []domain.ChoiceOption{{Text: "AWS", Value: "aws"}},
	}, time.Now(), gen)
	if appended {
		t.Fatal("a reply planned before the clear must be discarded")
	}
	if len(s.Messages()) != 0 {
		t.Fatal("discarded reply must not land in the history")
	}
	if s.Mode() != domain.InputFreeText {
		t.Fatal("discarded reply must not change the input mode")
	}

	// The current generation still appends normally.
	if !s.AppendAssistant(&domain.Reply{Message: "ok", AllowFreeText: true}, time.Now(), s.Generation()) {
		t.Fatal("the post-clear generation must accept replies")
	}
}

func TestSessionTurnLock(t *testing.T) {
	t.Parallel()

	s := newSession("u1")
	if err := s.BeginTurn(); err != nil {
		t.Fatalf("first BeginTurn must succeed, got %v", err)
	}
	if err := s.BeginTurn(); !errors.Is(err, ErrStillProcessing) {
		t.Fatalf("concurrent BeginTurn must fail with ErrStillProcessing, got %v", err)
	}
	s.EndTurn()
	if err := s.BeginTurn(); err != nil {
		t.Fatalf("BeginTurn after EndTurn must succeed, got %v", err)
	}
}

func TestSessionRecordRestoreRoundTrip(t *testing.T) {
	t.Parallel()

	s := newSession("u1")
	s.AppendUser("create a vm", time.Unix(1700000000, 0))
	s.AppendAssistant(&domain.Reply{
		Message: "Which provider?",
		Options: []domain.ChoiceOption{{Text: "AWS", Value: "aws"}},
	}, time.Unix(1700000001, 0), s.Generation())

	rec, err := s.record()
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}

	restored := newSession("u1")
	if err := restored.restore(rec); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if len(restored.Messages()) != 2 {
		t.Fatalf("expected 2 restored messages, got %d", len(restored.Messages()))
	}
	if restored.Mode() != domain.InputChoice {
		t.Fatal("restored session must keep choice mode")
	}
	if !restored.MatchesOption("aws") {
		t.Fatal("restored session must recover the last offered options")
	}
}
