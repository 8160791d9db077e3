// Package tokenstore holds per-socket identity-provider tokens. Nothing in
// here is persisted: a hub restart forces admins to re-authenticate, while
// their refresh tokens stay valid against the provider.
package tokenstore

import (
	"context"
	"sync"
	"time"
)

// AuthSession is the transient auth state of one admin socket.
type AuthSession struct {
	SocketID     string
	AdminID      string
	AccessToken  string
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the access token lifetime has passed.
func (a AuthSession) Expired() bool {
	return time.Now().After(a.ExpiresAt)
}

type Store struct {
	mu       sync.RWMutex
	bySocket map[string]AuthSession
	onExpire func(AuthSession)
}

func NewStore() *Store {
	return &Store{bySocket: make(map[string]AuthSession)}
}

// SetExpireHook registers the callback fired for each entry the expiry scan
// evicts, so the router can emit session-expired to the owning socket.
func (s *Store) SetExpireHook(hook func(AuthSession)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExpire = hook
}

// Put records or replaces the auth session of a socket.
func (s *Store) Put(a AuthSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySocket[a.SocketID] = a
}

// Get returns the auth session for socketID, if any.
func (s *Store) Get(socketID string) (AuthSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.bySocket[socketID]
	return a, ok
}

// Remove drops a socket's auth session, e.g. on close or logout.
func (s *Store) Remove(socketID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bySocket, socketID)
}

// SocketsOf returns the socket ids currently authenticated as adminID.
func (s *Store) SocketsOf(adminID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sockets []string
	for id, a := range s.bySocket {
		if a.AdminID == adminID {
			sockets = append(sockets, id)
		}
	}
	return sockets
}

// Len returns the number of authenticated sockets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bySocket)
}

// StartExpiryScan evicts expired entries every interval until ctx ends.
func (s *Store) StartExpiryScan(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.evictExpired()
			}
		}
	}()
}

func (s *Store) evictExpired() {
	var expired []AuthSession

	s.mu.Lock()
	for id, a := range s.bySocket {
		if a.Expired() {
			expired = append(expired, a)
			delete(s.bySocket, id)
		}
	}
	hook := s.onExpire
	s.mu.Unlock()

	if hook != nil {
		for _, a := range expired {
			hook(a)
		}
	}
}
