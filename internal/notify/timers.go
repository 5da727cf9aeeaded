package notify

import (
	"sync"
	"time"
)

// TimerSet tracks pending auto-dismiss timers keyed by connection and
// notification. Scheduling over an existing key replaces the old timer;
// cancelling an unknown key is a no-op.
type TimerSet struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewTimerSet creates an empty timer set.
func NewTimerSet() *TimerSet {
	return &TimerSet{timers: make(map[string]*time.Timer)}
}

func timerKey(connID, notificationID string) string {
	return connID + "/" + notificationID
}

// Schedule arranges fn to run after d unless cancelled first. A timer
// already pending for the same key is stopped and replaced.
func (ts *TimerSet) Schedule(connID, notificationID string, d time.Duration, fn func()) {
	key := timerKey(connID, notificationID)

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.closed {
		return
	}
	if old, ok := ts.timers[key]; ok {
		old.Stop()
	}
	ts.timers[key] = time.AfterFunc(d, func() {
		ts.mu.Lock()
		delete(ts.timers, key)
		ts.mu.Unlock()
		fn()
	})
}

// Cancel stops the timer for the given key if one is pending. Cancelling
// twice, or a key that never existed, is safe.
func (ts *TimerSet) Cancel(connID, notificationID string) bool {
	key := timerKey(connID, notificationID)

	ts.mu.Lock()
	defer ts.mu.Unlock()
	t, ok := ts.timers[key]
	if !ok {
		return false
	}
	t.Stop()
	delete(ts.timers, key)
	return true
}

// CancelConn stops every timer associated with a connection.
func (ts *TimerSet) CancelConn(connID string) {
	prefix := connID + "/"

	ts.mu.Lock()
	defer ts.mu.Unlock()
	for key, t := range ts.timers {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			t.Stop()
			delete(ts.timers, key)
		}
	}
}

// Len reports the number of pending timers.
func (ts *TimerSet) Len() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.timers)
}

// Close stops every pending timer and rejects further scheduling.
func (ts *TimerSet) Close() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.closed = true
	for key, t := range ts.timers {
		t.Stop()
		delete(ts.timers, key)
	}
}
