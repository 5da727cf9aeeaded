// Package transcript writes per-user conversation logs as NDJSON files.
// Writing is asynchronous so a slow disk never stalls a chat turn.
package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/domain"
)

// Config controls transcript logging.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

type entry struct {
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger records chat messages to dir/<userID>.ndjson. Record never blocks;
// when the queue is full the entry is dropped and counted.
type Logger struct {
	queue   chan entry
	dir     string
	done    chan struct{}
	once    sync.Once
	dropped int64
	mu      sync.Mutex
}

// New creates a transcript logger. When disabled it returns a logger whose
// Record is a no-op.
func New(cfg Config) (*Logger, error) {
	if !cfg.Enabled {
		return &Logger{}, nil
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	l := &Logger{
		queue: make(chan entry, size),
		dir:   cfg.Dir,
		done:  make(chan struct{}),
	}
	go l.run()
	return l, nil
}

// Record queues one message for writing.
func (l *Logger) Record(userID string, msg domain.Message) {
	if l.queue == nil {
		return
	}
	e := entry{
		UserID:    userID,
		Role:      string(msg.Role),
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
	}
	select {
	case l.queue <- e:
	default:
		l.mu.Lock()
		l.dropped++
		n := l.dropped
		l.mu.Unlock()
		if n%100 == 1 {
			slog.Warn("Transcript queue full, dropping entries", "dropped_total", n)
		}
	}
}

func (l *Logger) run() {
	defer close(l.done)
	for e := range l.queue {
		l.write(e)
	}
}

func (l *Logger) write(e entry) {
	line, err := json.Marshal(e)
	if err != nil {
		slog.Error("Failed to marshal transcript entry", "error", err)
		return
	}
	path := filepath.Join(l.dir, e.UserID+".ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Error("Failed to open transcript file", "error", err, "path", path)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		slog.Error("Failed to write transcript entry", "error", err, "path", path)
	}
}

// Close flushes queued entries and stops the worker.
func (l *Logger) Close() error {
	if l.queue == nil {
		return nil
	}
	l.once.Do(func() {
		close(l.queue)
	})
	select {
	case <-l.done:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("transcript flush timed out")
	}
	return nil
}
