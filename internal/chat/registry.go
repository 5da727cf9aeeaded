package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Registered pairs a connection with its registry id for fan-out.
type Registered struct {
	ID   string
	Conn Conn
}

type connEntry struct {
	id     string
	userID string
	conn   Conn
}

// Registry tracks live connections keyed by user identity. A user may hold
// several connections at once (tabs, devices); the session layer stays
// user-scoped so all of them observe the same conversation.
type Registry struct {
	mu           sync.RWMutex
	byUser       map[string]map[string]*connEntry
	byID         map[string]*connEntry
	onRegister   []func(userID string)
	onUnregister []func(connID string)
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]map[string]*connEntry),
		byID:   make(map[string]*connEntry),
	}
}

// OnRegister adds a hook invoked (in its own goroutine) after each successful
// registration. The notification dispatcher uses this to flush queued
// notifications for a user that just came online. Add hooks before serving.
func (r *Registry) OnRegister(fn func(userID string)) {
	r.onRegister = append(r.onRegister, fn)
}

// OnUnregister adds a hook invoked after a connection is removed, with the
// departed connection id. Add hooks before serving.
func (r *Registry) OnUnregister(fn func(connID string)) {
	r.onUnregister = append(r.onUnregister, fn)
}

// Register adds a connection under the user's bucket and returns its id.
func (r *Registry) Register(userID string, conn Conn) string {
	entry := &connEntry{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
	}

	r.mu.Lock()
	if _, exists := r.byUser[userID]; !exists {
		r.byUser[userID] = make(map[string]*connEntry)
	}
	r.byUser[userID][entry.id] = entry
	r.byID[entry.id] = entry
	r.mu.Unlock()

	slog.Info("Connection registered", "user_id", userID, "conn_id", entry.id)

	for _, fn := range r.onRegister {
		go fn(userID)
	}
	return entry.id
}

// Unregister removes a connection. It is idempotent; unregistering an absent
// id is a no-op.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	entry, ok := r.byID[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byID, connID)
	if bucket, ok := r.byUser[entry.userID]; ok {
		delete(bucket, connID)
		if len(bucket) == 0 {
			delete(r.byUser, entry.userID)
		}
	}
	r.mu.Unlock()

	slog.Info("Connection unregistered", "user_id", entry.userID, "conn_id", connID)
	for _, fn := range r.onUnregister {
		fn(connID)
	}
}

// ConnectionsOf returns a point-in-time snapshot of the user's live
// connections. Iterating the snapshot is safe while other goroutines
// register and unregister.
func (r *Registry) ConnectionsOf(userID string) []Registered {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket := r.byUser[userID]
	if len(bucket) == 0 {
		return nil
	}
	out := make([]Registered, 0, len(bucket))
	for _, entry := range bucket {
		out = append(out, Registered{ID: entry.id, Conn: entry.conn})
	}
	return out
}

// Connected reports whether the user has at least one live connection.
func (r *Registry) Connected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// ConnectedUsers returns the number of distinct users currently connected.
func (r *Registry) ConnectedUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// Broadcast fans one frame out to every live connection of the user and
// returns the connection ids that received it. A write failure unregisters
// and closes that connection only; delivery to the user's other connections
// continues.
func (r *Registry) Broadcast(ctx context.Context, userID string, frame any) []string {
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error("Failed to marshal outbound frame", "error", err, "user_id", userID)
		return nil
	}

	var delivered []string
	for _, reg := range r.ConnectionsOf(userID) {
		if err := reg.Conn.WriteFrame(ctx, data); err != nil {
			slog.Warn("Connection write failed, dropping connection",
				"error", err, "user_id", userID, "conn_id", reg.ID)
			r.Unregister(reg.ID)
			_ = reg.Conn.Close(websocket.StatusGoingAway, "write failed")
			continue
		}
		delivered = append(delivered, reg.ID)
	}
	return delivered
}

// Send writes a frame to a single connection, used for targeted replies like
// pong and protocol errors. Unknown ids are a no-op.
func (r *Registry) Send(ctx context.Context, connID string, frame any) error {
	r.mu.RLock()
	entry, ok := r.byID[connID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return entry.conn.WriteFrame(ctx, data)
}
