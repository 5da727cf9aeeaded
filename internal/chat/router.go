package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/config"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/domain"
)

// Planner is the assistant-logic collaborator. Given the user's input it
// produces the next prompt; Reset discards any in-progress flow context so
// the assistant never resumes mid-conversation after a clear.
type Planner interface {
	Plan(ctx context.Context, userID, text string) (*domain.Reply, error)
	Reset(ctx context.Context, userID string) error
}

// Dismisser cancels a pending auto-dismiss timer for one delivered
// notification. Implemented by the notification dispatcher.
type Dismisser interface {
	Dismiss(connID, notificationID string)
}

// Transcript records chat turns for offline analysis. Implementations must
// not block the turn.
type Transcript interface {
	Record(userID string, msg domain.Message)
}

// Router decodes inbound protocol frames, dispatches them to the owning
// user's session, and fans assistant replies out to all of the user's live
// connections.
type Router struct {
	registry   *Registry
	hub        *Hub
	planner    Planner
	dismisser  Dismisser
	transcript Transcript
	policy     string
}

// NewRouter creates a message router. dismisser and transcript may be nil.
func NewRouter(registry *Registry, hub *Hub, planner Planner, dismisser Dismisser, transcript Transcript, policy string) *Router {
	return &Router{
		registry:   registry,
		hub:        hub,
		planner:    planner,
		dismisser:  dismisser,
		transcript: transcript,
		policy:     policy,
	}
}

// HandleInbound processes one raw frame from a connection. Protocol
// violations are surfaced to the sending connection only; the session and
// the user's other connections are never affected by them.
func (rt *Router) HandleInbound(ctx context.Context, connID, userID string, raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		rt.sendError(ctx, connID, "protocol_violation", "invalid message format")
		return
	}

	switch frame.Type {
	case frameChatMessage:
		rt.handleChatMessage(ctx, connID, userID, frame)
	case frameClearConversation:
		rt.handleClear(ctx, userID, frame)
	case framePing:
		if err := rt.registry.Send(ctx, connID, pongFrame{Type: "pong", Timestamp: frame.Timestamp}); err != nil {
			slog.Debug("Failed to send pong", "error", err, "conn_id", connID)
		}
	case frameNotificationDismiss:
		if rt.dismisser != nil {
			rt.dismisser.Dismiss(connID, frame.NotificationID)
		}
	default:
		slog.Warn("Unknown frame kind", "kind", frame.Type, "user_id", userID, "conn_id", connID)
		rt.sendError(ctx, connID, "protocol_violation", "unknown message type: "+frame.Type)
	}
}

func (rt *Router) handleChatMessage(ctx context.Context, connID, userID string, frame inboundFrame) {
	sess := rt.hub.Get(ctx, userID)

	if err := sess.BeginTurn(); err != nil {
		// A second tab raced an in-flight turn; reject to the sender only.
		rt.sendError(ctx, connID, "still_processing", "previous message is still being processed")
		return
	}
	defer sess.EndTurn()

	// Snapshot the clear counter. A clear_conversation from another tab while
	// this turn is planning invalidates the reply; it must not be appended to
	// the freshly cleared session.
	gen := sess.Generation()

	text := frame.Message
	if sess.Mode() == domain.InputChoice && !sess.MatchesOption(text) {
		if rt.policy == config.ChoiceStrict {
			rt.sendError(ctx, connID, "choice_required", "please select one of the offered options")
			return
		}
		// Permissive policy: the input is forwarded to the assistant as free
		// text, matching how the client treats a button click and typed text
		// identically.
	}

	now := time.Now()
	sess.AppendUser(text, now)
	rt.record(userID, domain.Message{Role: domain.RoleUser, Text: text, Timestamp: now})

	reply, err := rt.planner.Plan(ctx, userID, text)
	if err != nil {
		slog.Error("Planner unavailable", "error", err, "user_id", userID)
		if sess.Generation() != gen {
			return
		}
		sysText := "The assistant is temporarily unavailable. Please try again in a moment."
		sess.AppendSystem(sysText, time.Now())
		rt.persist(ctx, sess, userID)
		rt.registry.Broadcast(ctx, userID, newChatResponse(&domain.Reply{
			Message:       sysText,
			AllowFreeText: true,
		}, frame.Timestamp))
		return
	}

	replyAt := time.Now()
	if !sess.AppendAssistant(reply, replyAt, gen) {
		slog.Info("Conversation cleared mid-turn, reply discarded", "user_id", userID)
		return
	}
	rt.record(userID, domain.Message{
		Role:      domain.RoleAssistant,
		Text:      reply.Message,
		Timestamp: replyAt,
		Options:   reply.Options,
	})
	rt.persist(ctx, sess, userID)

	rt.registry.Broadcast(ctx, userID, newChatResponse(reply, frame.Timestamp))
}

func (rt *Router) handleClear(ctx context.Context, userID string, frame inboundFrame) {
	sess := rt.hub.Get(ctx, userID)
	sess.Clear()
	if err := rt.planner.Reset(ctx, userID); err != nil {
		slog.Warn("Planner reset failed", "error", err, "user_id", userID)
	}
	rt.persist(ctx, sess, userID)

	rt.registry.Broadcast(ctx, userID, newChatResponse(&domain.Reply{
		Message:       "Conversation cleared. Ready for a new request.",
		AllowFreeText: true,
	}, frame.Timestamp))
}

func (rt *Router) persist(ctx context.Context, sess *Session, userID string) {
	if err := rt.hub.Save(ctx, sess); err != nil {
		slog.Warn("Failed to persist session", "error", err, "user_id", userID)
	}
}

func (rt *Router) record(userID string, msg domain.Message) {
	if rt.transcript != nil {
		rt.transcript.Record(userID, msg)
	}
}

func (rt *Router) sendError(ctx context.Context, connID, code, message string) {
	if err := rt.registry.Send(ctx, connID, newErrorFrame(code, message)); err != nil {
		slog.Debug("Failed to send error frame", "error", err, "conn_id", connID)
	}
}
