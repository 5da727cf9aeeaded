package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/coder/websocket"
)

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	failed bool
	closed bool
}

func (c *fakeConn) WriteFrame(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed {
		return errors.New("write failed")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.frames = append(c.frames, cp)
	return nil
}

func (c *fakeConn) Close(websocket.StatusCode, string) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *fakeConn) lastFrame() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return nil
	}
	return c.frames[len(c.frames)-1]
}

func TestRegistryRegisterUnregister(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	conn := &fakeConn{}

	id := r.Register("alice@corp.test", conn)
	if id == "" {
		t.Fatal("expected non-empty connection id")
	}
	if !r.Connected("alice@corp.test") {
		t.Fatal("expected user to be connected")
	}

	r.Unregister(id)
	if r.Connected("alice@corp.test") {
		t.Fatal("expected user to be disconnected")
	}

	// A second unregister of the same id must be a no-op.
	r.Unregister(id)
}

func TestRegistryMultipleConnectionsPerUser(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	c1 := &fakeConn{}
	c2 := &fakeConn{}

	id1 := r.Register("bob@corp.test", c1)
	r.Register("bob@corp.test", c2)

	if got := len(r.ConnectionsOf("bob@corp.test")); got != 2 {
		t.Fatalf("expected 2 connections, got %d", got)
	}

	r.Unregister(id1)
	if !r.Connected("bob@corp.test") {
		t.Fatal("closing one tab must not disconnect the user")
	}
	if got := len(r.ConnectionsOf("bob@corp.test")); got != 1 {
		t.Fatalf("expected 1 connection after unregister, got %d", got)
	}
}

func TestRegistryBroadcastFanOut(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	c1 := &fakeConn{}
	c2 := &fakeConn{}
	other := &fakeConn{}

	r.Register("carol@corp.test", c1)
	r.Register("carol@corp.test", c2)
	r.Register("dave@corp.test", other)

	delivered := r.Broadcast(context.Background(), "carol@corp.test", map[string]string{"type": "test"})
	if len(delivered) != 2 {
		t.Fatalf("expected delivery to 2 connections, got %d", len(delivered))
	}
	if c1.frameCount() != 1 || c2.frameCount() != 1 {
		t.Fatalf("expected both tabs to receive the frame, got %d and %d", c1.frameCount(), c2.frameCount())
	}
	if other.frameCount() != 0 {
		t.Fatal("broadcast must not leak to other users")
	}

	var frame map[string]string
	if err := json.Unmarshal(c1.lastFrame(), &frame); err != nil {
		t.Fatalf("failed to decode broadcast frame: %v", err)
	}
	if frame["type"] != "test" {
		t.Fatalf("unexpected frame payload: %v", frame)
	}
}

func TestRegistryBroadcastDropsFailedConnectionOnly(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	healthy := &fakeConn{}
	broken := &fakeConn{failed: true}

	r.Register("erin@corp.test", healthy)
	brokenID := r.Register("erin@corp.test", broken)

	delivered := r.Broadcast(context.Background(), "erin@corp.test", map[string]string{"type": "test"})
	if len(delivered) != 1 {
		t.Fatalf("expected delivery to the healthy connection only, got %d", len(delivered))
	}
	if healthy.frameCount() != 1 {
		t.Fatal("healthy connection must still receive the frame")
	}
	if !broken.closed {
		t.Fatal("failed connection must be closed")
	}
	for _, reg := range r.ConnectionsOf("erin@corp.test") {
		if reg.ID == brokenID {
			t.Fatal("failed connection must be unregistered")
		}
	}
}

func TestRegistryOnUnregisterHook(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	var gone []string
	r.OnUnregister(func(connID string) { gone = append(gone, connID) })

	id := r.Register("frank@corp.test", &fakeConn{})
	r.Unregister(id)
	r.Unregister(id)

	if len(gone) != 1 || gone[0] != id {
		t.Fatalf("expected one hook invocation for %s, got %v", id, gone)
	}
}

func TestRegistrySendToUnknownConnection(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.Send(context.Background(), "no-such-id", map[string]string{"type": "pong"}); err != nil {
		t.Fatalf("send to unknown id must be a no-op, got %v", err)
	}
}

func TestRegistryConcurrentRegisterBroadcast(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := r.Register("grace@corp.test", &fakeConn{})
			r.Broadcast(context.Background(), "grace@corp.test", map[string]string{"type": "test"})
			r.Unregister(id)
		}()
	}
	wg.Wait()

	if r.Connected("grace@corp.test") {
		t.Fatal("expected all connections to be unregistered")
	}
}
