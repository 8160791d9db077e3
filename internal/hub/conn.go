package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Socket roles, for metrics and /health. A socket starts anonymous and is
// promoted on admin-auth or join-session.
const (
	roleAnonymous = "anonymous"
	roleAdmin     = "admin"
	roleClient    = "client"
)

// socket is one supervised websocket connection. All writes go through the
// outbound queue and a single writer goroutine; the read loop never writes.
type socket struct {
	id       string
	remoteIP string
	conn     *websocket.Conn

	outbound chan []byte
	done     chan struct{}
	once     sync.Once

	mu   sync.Mutex
	role string
	// sessions tracks which sessions this socket joined as a client.
	sessions map[string]bool
}

func (s *socket) close() {
	s.once.Do(func() {
		close(s.done)
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

func (s *socket) setRole(role string) {
	s.mu.Lock()
	s.role = role
	s.mu.Unlock()
}

func (s *socket) getRole() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

func (s *socket) joinedSession(id string) {
	s.mu.Lock()
	s.sessions[id] = true
	s.mu.Unlock()
}

func (s *socket) leftSession(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// enqueue places payload on the outbound queue. Droppable frames (broadcast
// fan-out) are shed once the queue passes the soft threshold; everything
// else rides up to the hard capacity. A full queue on a non-droppable frame
// means the peer stopped reading, so the socket is closed.
func (s *socket) enqueue(payload []byte, droppable bool, soft int) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	if droppable && len(s.outbound) >= soft {
		return false
	}
	select {
	case s.outbound <- payload:
		return true
	default:
		if !droppable {
			s.close()
		}
		return false
	}
}

// writeLoop is the only goroutine writing to the connection. It also owns
// the heartbeat ping.
func (s *socket) writeLoop(pingInterval, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.close()

	for {
		select {
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case payload := <-s.outbound:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
