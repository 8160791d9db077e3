package session

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/thunder45/service-translate-sub001/internal/errs"
	"github.com/thunder45/service-translate-sub001/internal/persist"
)

// Options tunes session lifecycle policy.
type Options struct {
	// MaxClientsPerSession caps join-session; 0 means unlimited.
	MaxClientsPerSession int
	// EndedRetention keeps ended sessions in memory and on disk before purge.
	EndedRetention time.Duration
	// InactivityTimeout auto-ends sessions with no activity; 0 disables.
	InactivityTimeout time.Duration
	// AdminDisconnectGrace is how long a session stays active after its
	// last admin socket detaches before transitioning to paused.
	AdminDisconnectGrace time.Duration
}

// Manager is the authoritative source of truth for sessions. All mutations
// are serialized under one mutex; long work (disk writes happen inline but
// are small atomic replaces) never blocks on the network.
type Manager struct {
	mu       sync.RWMutex
	dir      string
	opts     Options
	sessions map[string]*Session
	// endedAt / ownerDetachedAt drive the janitor sweeps.
	endedAt         map[string]time.Time
	ownerDetachedAt map[string]time.Time

	// adminAttached reports whether any socket of adminID is still attached;
	// wired to the admin identity manager.
	adminAttached func(adminID string) bool
	// onStatusChange fires after janitor-driven transitions so the hub can
	// broadcast session-status-update / session-ended.
	onStatusChange func(s *Session, prev Status)
}

func NewManager(dir string, opts Options) *Manager {
	if opts.EndedRetention <= 0 {
		opts.EndedRetention = 30 * time.Minute
	}
	if opts.AdminDisconnectGrace <= 0 {
		opts.AdminDisconnectGrace = 15 * time.Second
	}
	return &Manager{
		dir:             dir,
		opts:            opts,
		sessions:        make(map[string]*Session),
		endedAt:         make(map[string]time.Time),
		ownerDetachedAt: make(map[string]time.Time),
	}
}

func (m *Manager) SetAdminAttachedFn(fn func(adminID string) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adminAttached = fn
}

func (m *Manager) SetStatusHook(fn func(s *Session, prev Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStatusChange = fn
}

// Load rehydrates persisted sessions from disk. Corrupt files and expired
// terminal sessions are dropped. Socket bindings from the previous process
// are stale, so surviving sessions come back paused with no clients.
func (m *Manager) Load() error {
	paths, err := persist.ListJSON(m.dir)
	if err != nil {
		return errs.Wrap(errs.SystemPersistence, "scan sessions dir", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, path := range paths {
		var s Session
		if err := persist.ReadJSON(path, &s); err != nil || s.ID == "" || s.AdminID == "" {
			log.Printf("sessions: dropping unreadable record %s", filepath.Base(path))
			_ = persist.Remove(path)
			continue
		}
		if s.Status.Terminal() {
			_ = persist.Remove(path)
			continue
		}
		s.CurrentAdminSocketID = ""
		s.Clients = make(map[string]*ClientMembership)
		if s.Status == StatusActive || s.Status == StatusStarted {
			s.Status = StatusPaused
		}
		m.sessions[s.ID] = &s
		m.ownerDetachedAt[s.ID] = now
	}
	return nil
}

// Create registers a new session owned by adminID.
func (m *Manager) Create(id string, cfg Config, adminID, adminSocketID, displayName string) (*Session, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.EnabledLanguages) == 0 {
		cfg.EnabledLanguages = append([]string(nil), cfg.TargetLanguages...)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[id]; ok {
		if !existing.Status.Terminal() {
			return nil, errs.New(errs.SessionAlreadyExists, "session "+id+" already exists").WithDetail("sessionId", id)
		}
		// Terminal sessions waiting out retention free their name immediately.
		m.purgeLocked(id)
	}

	now := time.Now().UTC()
	s := &Session{
		ID:                   id,
		AdminID:              adminID,
		CurrentAdminSocketID: adminSocketID,
		CreatedBy:            displayName,
		Config:               cfg,
		Clients:              make(map[string]*ClientMembership),
		CreatedAt:            now,
		LastActivity:         now,
		Status:               StatusStarted,
	}
	if err := m.storeLocked(s); err != nil {
		return nil, err
	}
	m.sessions[id] = s
	return cloneSession(s), nil
}

// Get returns a snapshot of the session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errs.New(errs.SessionNotFound, "session "+id+" not found").WithDetail("sessionId", id)
	}
	return cloneSession(s), nil
}

// End transitions the session to ended. Only the owner may end it. The
// returned snapshot still carries the memberships so the caller can notify
// and detach every client.
func (m *Manager) End(id, requesterAdminID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errs.New(errs.SessionNotFound, "session "+id+" not found").WithDetail("sessionId", id)
	}
	if s.AdminID != requesterAdminID {
		return nil, errs.New(errs.AuthzSessionNotOwned, "session "+id+" is owned by another admin").WithDetail("sessionId", id)
	}
	if s.Status.Terminal() {
		return nil, errs.New(errs.AuthzInvalidSessionState, "session "+id+" already ended").WithDetail("sessionId", id)
	}

	s.Status = StatusEnding
	snapshot := cloneSession(s)

	s.Status = StatusEnded
	s.LastActivity = time.Now().UTC()
	s.Clients = make(map[string]*ClientMembership)
	s.CurrentAdminSocketID = ""
	m.endedAt[id] = time.Now().UTC()
	delete(m.ownerDetachedAt, id)
	if err := m.storeLocked(s); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// UpdateConfig applies a partial config change. Owner only.
func (m *Manager) UpdateConfig(id string, patch ConfigPatch, requesterAdminID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errs.New(errs.SessionNotFound, "session "+id+" not found").WithDetail("sessionId", id)
	}
	if s.AdminID != requesterAdminID {
		return nil, errs.New(errs.AuthzSessionNotOwned, "session "+id+" is owned by another admin").WithDetail("sessionId", id)
	}
	if s.Status.Terminal() {
		return nil, errs.New(errs.AuthzInvalidSessionState, "session "+id+" is "+string(s.Status)).WithDetail("sessionId", id)
	}

	next := s.Config.Apply(patch)
	if err := next.Validate(); err != nil {
		return nil, err
	}
	s.Config = next
	s.LastActivity = time.Now().UTC()
	if s.Status == StatusStarted {
		s.Status = StatusActive
	}
	if err := m.storeLocked(s); err != nil {
		return nil, err
	}
	return cloneSession(s), nil
}

// JoinClient attaches an anonymous listener.
func (m *Manager) JoinClient(id, socketID, preferredLanguage string, caps AudioCapabilities) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errs.New(errs.SessionNotFound, "session "+id+" not found").WithDetail("sessionId", id)
	}
	if s.Status.Terminal() || s.Status == StatusEnding {
		return nil, errs.New(errs.AuthzInvalidSessionState, "session "+id+" is "+string(s.Status)).WithDetail("sessionId", id)
	}
	if s.CurrentAdminSocketID == socketID {
		return nil, errs.New(errs.ValidationInvalidInput, "admin socket cannot join as client")
	}
	if !s.Config.EnabledLanguage(preferredLanguage) {
		return nil, errs.New(errs.ValidationLanguage, "language "+preferredLanguage+" is not enabled").WithDetail("sessionId", id)
	}
	if m.opts.MaxClientsPerSession > 0 && len(s.Clients) >= m.opts.MaxClientsPerSession {
		return nil, errs.New(errs.SessionClientLimitExceeded, "session "+id+" is full").
			WithDetail("sessionId", id).WithRetryAfter(30 * time.Second)
	}

	now := time.Now().UTC()
	s.Clients[socketID] = &ClientMembership{
		SocketID:          socketID,
		PreferredLanguage: preferredLanguage,
		JoinedAt:          now,
		LastSeen:          now,
		Capabilities:      caps,
	}
	s.LastActivity = now
	if err := m.storeLocked(s); err != nil {
		delete(s.Clients, socketID)
		return nil, err
	}
	return cloneSession(s), nil
}

// LeaveClient detaches a listener. Idempotent.
func (m *Manager) LeaveClient(id, socketID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	if _, attached := s.Clients[socketID]; !attached {
		return
	}
	delete(s.Clients, socketID)
	s.LastActivity = time.Now().UTC()
	_ = m.storeLocked(s)
}

// SetClientLanguage switches a listener to another enabled language.
func (m *Manager) SetClientLanguage(id, socketID, newLanguage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return errs.New(errs.SessionNotFound, "session "+id+" not found").WithDetail("sessionId", id)
	}
	member, attached := s.Clients[socketID]
	if !attached {
		return errs.New(errs.ValidationInvalidInput, "socket is not a member of session "+id)
	}
	if !s.Config.EnabledLanguage(newLanguage) {
		return errs.New(errs.ValidationLanguage, "language "+newLanguage+" is not enabled").WithDetail("sessionId", id)
	}
	member.PreferredLanguage = newLanguage
	member.LastSeen = time.Now().UTC()
	return m.storeLocked(s)
}

// TouchClient refreshes a membership's lastSeen, e.g. on pong.
func (m *Manager) TouchClient(id, socketID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		if member, attached := s.Clients[socketID]; attached {
			member.LastSeen = time.Now().UTC()
		}
	}
}

// UpdateAdminSocket rebinds the driving socket on admin reconnect and
// resumes a paused session.
func (m *Manager) UpdateAdminSocket(id, requesterAdminID, newSocketID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errs.New(errs.SessionNotFound, "session "+id+" not found").WithDetail("sessionId", id)
	}
	if s.AdminID != requesterAdminID {
		return nil, errs.New(errs.AuthzSessionNotOwned, "session "+id+" is owned by another admin").WithDetail("sessionId", id)
	}
	if s.Status.Terminal() {
		return nil, errs.New(errs.AuthzInvalidSessionState, "session "+id+" is "+string(s.Status)).WithDetail("sessionId", id)
	}
	s.CurrentAdminSocketID = newSocketID
	delete(m.ownerDetachedAt, id)
	if s.Status == StatusPaused {
		s.Status = StatusActive
	}
	s.LastActivity = time.Now().UTC()
	if err := m.storeLocked(s); err != nil {
		return nil, err
	}
	return cloneSession(s), nil
}

// RecordActivity marks a translation on the session and promotes
// started sessions to active.
func (m *Manager) RecordActivity(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status.Terminal() {
		return
	}
	s.LastActivity = time.Now().UTC()
	if s.Status == StatusStarted {
		s.Status = StatusActive
		_ = m.storeLocked(s)
	}
}

// AdminSocketDetached clears the driving socket wherever socketID was bound
// and starts the pause grace clock. Returns the affected session ids.
func (m *Manager) AdminSocketDetached(socketID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var affected []string
	now := time.Now().UTC()
	for id, s := range m.sessions {
		if s.CurrentAdminSocketID != socketID {
			continue
		}
		s.CurrentAdminSocketID = ""
		if !s.Status.Terminal() {
			m.ownerDetachedAt[id] = now
		}
		affected = append(affected, id)
	}
	return affected
}

// ClientSocketDetached removes socketID from any session it joined.
// Returns the session ids it was detached from.
func (m *Manager) ClientSocketDetached(socketID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var affected []string
	for id, s := range m.sessions {
		if _, attached := s.Clients[socketID]; attached {
			delete(s.Clients, socketID)
			affected = append(affected, id)
		}
	}
	return affected
}

// SessionsOwnedBy returns the ids of non-terminal sessions owned by adminID.
func (m *Manager) SessionsOwnedBy(adminID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, s := range m.sessions {
		if s.AdminID == adminID && !s.Status.Terminal() {
			ids = append(ids, id)
		}
	}
	return ids
}

// List returns session summaries. filter is "owned" or "all"; owner-only
// fields are attached only for sessions the requester owns.
func (m *Manager) List(requesterAdminID, filter string) []Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	summaries := make([]Summary, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.Status.Terminal() {
			continue
		}
		isOwner := s.AdminID == requesterAdminID
		if filter == "owned" && !isOwner {
			continue
		}
		sum := Summary{
			SessionID:      s.ID,
			Status:         s.Status,
			SourceLanguage: s.Config.SourceLanguage,
			TargetLangs:    append([]string(nil), s.Config.TargetLanguages...),
			ClientCount:    len(s.Clients),
			CreatedBy:      s.CreatedBy,
			CreatedAt:      s.CreatedAt,
			IsOwner:        isOwner,
		}
		if isOwner {
			perLang := make(map[string]int)
			for _, c := range s.Clients {
				perLang[c.PreferredLanguage]++
			}
			sum.ClientsPerLang = perLang
		}
		summaries = append(summaries, sum)
	}
	return summaries
}

// ActiveCount counts non-terminal sessions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if !s.Status.Terminal() {
			count++
		}
	}
	return count
}

// MarkError puts a session in the error state after an unrecoverable
// persistence or invariant failure. The rest of the hub keeps running.
func (m *Manager) MarkError(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok && !s.Status.Terminal() {
		s.Status = StatusError
		m.endedAt[id] = time.Now().UTC()
	}
}

// StartJanitor runs the periodic sweeps: pause-after-grace, inactivity
// auto-end, and purge of retained terminal sessions.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
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
	type transition struct {
		snapshot *Session
		prev     Status
	}
	var transitions []transition

	m.mu.Lock()
	for id, s := range m.sessions {
		switch {
		case s.Status.Terminal():
			if endedAt, ok := m.endedAt[id]; ok && now.Sub(endedAt) > m.opts.EndedRetention {
				m.purgeLocked(id)
			}
		case s.Status == StatusActive || s.Status == StatusStarted:
			if m.opts.InactivityTimeout > 0 && now.Sub(s.LastActivity) > m.opts.InactivityTimeout {
				prev := s.Status
				s.Status = StatusEnded
				s.Clients = make(map[string]*ClientMembership)
				s.CurrentAdminSocketID = ""
				m.endedAt[id] = now
				delete(m.ownerDetachedAt, id)
				_ = m.storeLocked(s)
				transitions = append(transitions, transition{cloneSession(s), prev})
				continue
			}
			detachedAt, detached := m.ownerDetachedAt[id]
			if !detached || s.CurrentAdminSocketID != "" {
				continue
			}
			if m.adminAttached != nil && m.adminAttached(s.AdminID) {
				continue
			}
			if now.Sub(detachedAt) >= m.opts.AdminDisconnectGrace {
				prev := s.Status
				s.Status = StatusPaused
				_ = m.storeLocked(s)
				transitions = append(transitions, transition{cloneSession(s), prev})
			}
		case s.Status == StatusPaused:
			if m.opts.InactivityTimeout > 0 && now.Sub(s.LastActivity) > m.opts.InactivityTimeout {
				prev := s.Status
				s.Status = StatusEnded
				s.Clients = make(map[string]*ClientMembership)
				m.endedAt[id] = now
				delete(m.ownerDetachedAt, id)
				_ = m.storeLocked(s)
				transitions = append(transitions, transition{cloneSession(s), prev})
			}
		}
	}
	hook := m.onStatusChange
	m.mu.Unlock()

	if hook != nil {
		for _, tr := range transitions {
			hook(tr.snapshot, tr.prev)
		}
	}
}

func (m *Manager) purgeLocked(id string) {
	delete(m.sessions, id)
	delete(m.endedAt, id)
	delete(m.ownerDetachedAt, id)
	_ = persist.Remove(m.path(id))
}

func (m *Manager) storeLocked(s *Session) error {
	if err := persist.WriteJSON(m.path(s.ID), s); err != nil {
		return errs.Wrap(errs.SystemPersistence, "persist session "+s.ID, err)
	}
	return nil
}

func (m *Manager) path(id string) string {
	return filepath.Join(m.dir, id+".json")
}

func cloneSession(s *Session) *Session {
	c := *s
	c.Clients = make(map[string]*ClientMembership, len(s.Clients))
	for k, v := range s.Clients {
		member := *v
		c.Clients[k] = &member
	}
	c.Config.TargetLanguages = append([]string(nil), s.Config.TargetLanguages...)
	c.Config.EnabledLanguages = append([]string(nil), s.Config.EnabledLanguages...)
	return &c
}
