// Package audit records security events: authentication and authorization
// failures, rate-limit rejections, and blocks. Events always go to the
// structured log and an in-memory ring served by /security; a Postgres sink
// keeps a durable trail when configured.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one security-relevant occurrence.
type Event struct {
	ID         string    `json:"id"`
	Code       string    `json:"code"`
	AdminID    string    `json:"adminId,omitempty"`
	RemoteAddr string    `json:"remoteAddr,omitempty"`
	Operation  string    `json:"operation,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

// Sink is durable storage for events.
type Sink interface {
	Save(ctx context.Context, ev Event) error
	Close()
}

// Log fans events out to slog, the ring buffer, and the optional sink.
type Log struct {
	mu     sync.Mutex
	ring   []Event
	next   int
	filled bool
	logger *slog.Logger
	sink   Sink
}

const ringSize = 256

// NewLog creates an audit log. sink may be nil.
func NewLog(logger *slog.Logger, sink Sink) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		ring:   make([]Event, ringSize),
		logger: logger,
		sink:   sink,
	}
}

// Record stores one event. Sink failures are logged, never propagated; the
// hub does not fail requests because the audit trail is down.
func (l *Log) Record(ctx context.Context, ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	l.logger.LogAttrs(ctx, slog.LevelWarn, "security event",
		slog.String("code", ev.Code),
		slog.String("adminId", ev.AdminID),
		slog.String("remoteAddr", ev.RemoteAddr),
		slog.String("operation", ev.Operation),
		slog.String("reason", ev.Reason),
	)

	l.mu.Lock()
	l.ring[l.next] = ev
	l.next = (l.next + 1) % ringSize
	if l.next == 0 {
		l.filled = true
	}
	sink := l.sink
	l.mu.Unlock()

	if sink != nil {
		if err := sink.Save(ctx, ev); err != nil {
			l.logger.Error("audit sink save failed", "error", err)
		}
	}
}

// Recent returns up to n most recent events, newest first.
func (l *Log) Recent(n int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	size := l.next
	if l.filled {
		size = ringSize
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]Event, 0, n)
	for i := 1; i <= n; i++ {
		idx := (l.next - i + ringSize) % ringSize
		out = append(out, l.ring[idx])
	}
	return out
}

// Close releases the sink, if any.
func (l *Log) Close() {
	l.mu.Lock()
	sink := l.sink
	l.sink = nil
	l.mu.Unlock()
	if sink != nil {
		sink.Close()
	}
}
