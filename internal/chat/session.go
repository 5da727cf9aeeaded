package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/domain"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/store"
)

// ErrStillProcessing indicates a second message arrived for a user while a
// previous turn was in flight (possibly from another tab).
var ErrStillProcessing = errors.New("previous message still processing")

// Session holds one user's conversation state: the append-only message
// history and the input mode the next turn must satisfy. Sessions are
// user-scoped, never connection-scoped, and are cleared in place rather
// than deleted.
type Session struct {
	mu         sync.Mutex
	userID     string
	messages   []domain.Message
	mode       domain.InputMode
	options    []domain.ChoiceOption
	inFlight   bool
	generation uint64
	createdAt  time.Time
}

func newSession(userID string) *Session {
	return &Session{
		userID:    userID,
		mode:      domain.InputFreeText,
		createdAt: time.Now(),
	}
}

// BeginTurn acquires the per-user turn lock. It fails with
// ErrStillProcessing instead of blocking so a second tab gets an immediate
// "still processing" signal.
func (s *Session) BeginTurn() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return ErrStillProcessing
	}
	s.inFlight = true
	return nil
}

// EndTurn releases the turn lock.
func (s *Session) EndTurn() {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}

// Mode returns the input mode the next inbound message must satisfy.
func (s *Session) Mode() domain.InputMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// MatchesOption reports whether value matches one of the last offered
// options. Matching is case-insensitive on the option value.
func (s *Session) MatchesOption(value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := strings.ToLower(strings.TrimSpace(value))
	for _, opt := range s.options {
		if strings.ToLower(opt.Value) == v {
			return true
		}
	}
	return false
}

// AppendUser records an inbound user message.
func (s *Session) AppendUser(text string, ts time.Time) {
	s.append(domain.Message{Role: domain.RoleUser, Text: text, Timestamp: ts})
}

// AppendSystem records a system-role message (errors, still-processing).
func (s *Session) AppendSystem(text string, ts time.Time) {
	s.append(domain.Message{Role: domain.RoleSystem, Text: text, Timestamp: ts})
}

// AppendAssistant records an assistant reply and moves the session to the
// input mode the reply dictates: options offered means choice mode. The
// caller passes the generation it observed when the turn began; a false
// return means Clear ran in between and the stale reply was discarded.
func (s *Session) AppendAssistant(reply *domain.Reply, ts time.Time, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return false
	}
	s.messages = append(s.messages, domain.Message{
		Role:      domain.RoleAssistant,
		Text:      reply.Message,
		Timestamp: ts,
		Options:   reply.Options,
	})
	s.mode = reply.NextMode()
	s.options = reply.Options
	return true
}

func (s *Session) append(msg domain.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
}

// Clear empties the message history and resets the input mode to free text.
// The session itself survives; connections are unaffected. Bumping the
// generation invalidates any turn that was in flight when the clear arrived.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.options = nil
	s.mode = domain.InputFreeText
	s.generation++
}

// Generation returns the clear counter a turn snapshots before planning.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Messages returns a copy of the conversation history.
func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// record snapshots the session into its persisted form.
func (s *Session) record() (*domain.ChatSessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(s.messages)
	if err != nil {
		return nil, fmt.Errorf("marshal session messages: %w", err)
	}
	return &domain.ChatSessionRecord{
		UserID:       s.userID,
		InputMode:    s.mode,
		MessagesJSON: string(data),
		CreatedAt:    s.createdAt,
	}, nil
}

// restore loads persisted state into a fresh session.
func (s *Session) restore(rec *domain.ChatSessionRecord) error {
	var messages []domain.Message
	if rec.MessagesJSON != "" {
		if err := json.Unmarshal([]byte(rec.MessagesJSON), &messages); err != nil {
			return fmt.Errorf("unmarshal session messages: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = messages
	s.mode = rec.InputMode
	if s.mode == "" {
		s.mode = domain.InputFreeText
	}
	s.createdAt = rec.CreatedAt
	// Recover the last offered options so choice mode survives a restart.
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleAssistant {
			s.options = messages[i].Options
			break
		}
	}
	return nil
}

// Hub owns the live sessions, one per user, created lazily on first inbound
// message and hydrated from the store when persisted state exists.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*Session
	repo     store.Repository
}

// NewHub creates a session hub backed by the given repository.
func NewHub(repo store.Repository) *Hub {
	return &Hub{
		sessions: make(map[string]*Session),
		repo:     repo,
	}
}

// Get returns the user's session, creating (and restoring) it if needed.
func (h *Hub) Get(ctx context.Context, userID string) *Session {
	h.mu.Lock()
	if sess, ok := h.sessions[userID]; ok {
		h.mu.Unlock()
		return sess
	}
	sess := newSession(userID)
	h.sessions[userID] = sess
	h.mu.Unlock()

	rec, err := h.repo.GetChatSession(ctx, userID)
	if err != nil {
		slog.Warn("Failed to load persisted session, starting fresh", "error", err, "user_id", userID)
		return sess
	}
	if rec != nil {
		if err := sess.restore(rec); err != nil {
			slog.Warn("Failed to restore persisted session, starting fresh", "error", err, "user_id", userID)
		}
	}
	return sess
}

// Save persists the session's current state.
func (h *Hub) Save(ctx context.Context, sess *Session) error {
	rec, err := sess.record()
	if err != nil {
		return err
	}
	return h.repo.UpsertChatSession(ctx, rec)
}
