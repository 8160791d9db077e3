// Package adminident maintains the persistent per-operator records: which
// sessions an admin owns and which sockets are currently attached.
package adminident

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/thunder45/service-translate-sub001/internal/errs"
	"github.com/thunder45/service-translate-sub001/internal/persist"
)

// Identity is the persistent record of one human operator, keyed by the
// identity provider's stable subject id.
type Identity struct {
	AdminID         string    `json:"adminId"`
	DisplayName     string    `json:"displayName"`
	CreatedAt       time.Time `json:"createdAt"`
	LastSeen        time.Time `json:"lastSeen"`
	OwnedSessionIDs []string  `json:"ownedSessionIds"`

	// ActiveSocketIDs is transient and never persisted.
	ActiveSocketIDs []string `json:"-"`
}

type record struct {
	identity Identity
	sockets  map[string]bool
}

// Manager owns all admin identity records. Mutations are write-through to
// one JSON file per admin using atomic replace.
type Manager struct {
	mu        sync.RWMutex
	dir       string
	retention time.Duration
	records   map[string]*record
	// sessionOwner is the reverse index sessionID → adminID.
	sessionOwner map[string]string
	socketAdmin  map[string]string
}

// NewManager creates a manager persisting under dir. retention is how long
// an idle record with no owned sessions is kept after lastSeen.
func NewManager(dir string, retention time.Duration) *Manager {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &Manager{
		dir:          dir,
		retention:    retention,
		records:      make(map[string]*record),
		sessionOwner: make(map[string]string),
		socketAdmin:  make(map[string]string),
	}
}

// Load rehydrates persisted identities. Corrupt records are dropped.
func (m *Manager) Load() error {
	paths, err := persist.ListJSON(m.dir)
	if err != nil {
		return errs.Wrap(errs.SystemPersistence, "scan admin identities dir", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, path := range paths {
		var id Identity
		if err := persist.ReadJSON(path, &id); err != nil || id.AdminID == "" {
			log.Printf("adminident: dropping unreadable record %s", filepath.Base(path))
			_ = persist.Remove(path)
			continue
		}
		m.records[id.AdminID] = &record{identity: id, sockets: make(map[string]bool)}
		for _, sid := range id.OwnedSessionIDs {
			m.sessionOwner[sid] = id.AdminID
		}
	}
	return nil
}

// Attach upserts the record for adminID and binds socketID to it. It
// returns the owned session ids and whether this is a reconnection: the
// admin had no attached sockets but still owns sessions.
func (m *Manager) Attach(adminID, socketID, displayName string) (owned []string, reconnection bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	rec, ok := m.records[adminID]
	if !ok {
		rec = &record{
			identity: Identity{AdminID: adminID, CreatedAt: now},
			sockets:  make(map[string]bool),
		}
		m.records[adminID] = rec
	}
	reconnection = len(rec.sockets) == 0 && len(rec.identity.OwnedSessionIDs) > 0

	if displayName != "" {
		rec.identity.DisplayName = displayName
	}
	rec.identity.LastSeen = now
	rec.sockets[socketID] = true
	m.socketAdmin[socketID] = adminID

	if err := m.storeLocked(rec); err != nil {
		return nil, false, err
	}
	return append([]string(nil), rec.identity.OwnedSessionIDs...), reconnection, nil
}

// Detach unbinds a socket. Owned sessions are not affected.
func (m *Manager) Detach(socketID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	adminID, ok := m.socketAdmin[socketID]
	if !ok {
		return
	}
	delete(m.socketAdmin, socketID)
	if rec, ok := m.records[adminID]; ok {
		delete(rec.sockets, socketID)
		rec.identity.LastSeen = time.Now().UTC()
		_ = m.storeLocked(rec)
	}
}

// AddOwnedSession records session ownership.
func (m *Manager) AddOwnedSession(adminID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[adminID]
	if !ok {
		return errs.New(errs.AdminNotFound, "admin "+adminID+" not found")
	}
	for _, sid := range rec.identity.OwnedSessionIDs {
		if sid == sessionID {
			return nil
		}
	}
	rec.identity.OwnedSessionIDs = append(rec.identity.OwnedSessionIDs, sessionID)
	m.sessionOwner[sessionID] = adminID
	return m.storeLocked(rec)
}

// RemoveOwnedSession clears ownership after a session ends.
func (m *Manager) RemoveOwnedSession(adminID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[adminID]
	if !ok {
		return
	}
	kept := rec.identity.OwnedSessionIDs[:0]
	for _, sid := range rec.identity.OwnedSessionIDs {
		if sid != sessionID {
			kept = append(kept, sid)
		}
	}
	rec.identity.OwnedSessionIDs = kept
	delete(m.sessionOwner, sessionID)
	_ = m.storeLocked(rec)
}

// Owns reports whether adminID is the owner of sessionID.
func (m *Manager) Owns(adminID, sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionOwner[sessionID] == adminID
}

// OwnedSessions returns the session ids owned by adminID.
func (m *Manager) OwnedSessions(adminID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[adminID]
	if !ok {
		return nil
	}
	return append([]string(nil), rec.identity.OwnedSessionIDs...)
}

// IsAttached reports whether any socket of adminID is connected.
func (m *Manager) IsAttached(adminID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[adminID]
	return ok && len(rec.sockets) > 0
}

// AttachedSockets returns the socket ids of adminID.
func (m *Manager) AttachedSockets(adminID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[adminID]
	if !ok {
		return nil
	}
	sockets := make([]string, 0, len(rec.sockets))
	for id := range rec.sockets {
		sockets = append(sockets, id)
	}
	return sockets
}

// Get returns a snapshot of the identity record.
func (m *Manager) Get(adminID string) (Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[adminID]
	if !ok {
		return Identity{}, false
	}
	id := rec.identity
	id.OwnedSessionIDs = append([]string(nil), rec.identity.OwnedSessionIDs...)
	for sock := range rec.sockets {
		id.ActiveSocketIDs = append(id.ActiveSocketIDs, sock)
	}
	return id, true
}

// StartRetentionSweep purges idle records with no owned sessions.
func (m *Manager) StartRetentionSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

func (m *Manager) sweep() {
	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	for adminID, rec := range m.records {
		if len(rec.sockets) > 0 || len(rec.identity.OwnedSessionIDs) > 0 {
			continue
		}
		if now.Sub(rec.identity.LastSeen) < m.retention {
			continue
		}
		delete(m.records, adminID)
		_ = persist.Remove(m.path(adminID))
	}
}

func (m *Manager) storeLocked(rec *record) error {
	if err := persist.WriteJSON(m.path(rec.identity.AdminID), rec.identity); err != nil {
		return errs.Wrap(errs.SystemPersistence, "persist admin "+rec.identity.AdminID, err)
	}
	return nil
}

func (m *Manager) path(adminID string) string {
	return filepath.Join(m.dir, adminID+".json")
}
