// Package hub supervises websocket connections and routes their messages to
// the session, identity, and broadcast components.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/thunder45/service-translate-sub001/internal/adminident"
	"github.com/thunder45/service-translate-sub001/internal/audit"
	"github.com/thunder45/service-translate-sub001/internal/broadcast"
	"github.com/thunder45/service-translate-sub001/internal/config"
	"github.com/thunder45/service-translate-sub001/internal/errs"
	"github.com/thunder45/service-translate-sub001/internal/identity"
	"github.com/thunder45/service-translate-sub001/internal/observability"
	"github.com/thunder45/service-translate-sub001/internal/protocol"
	"github.com/thunder45/service-translate-sub001/internal/security"
	"github.com/thunder45/service-translate-sub001/internal/session"
	"github.com/thunder45/service-translate-sub001/internal/tokenstore"
)

// Hub owns the socket registry and the message router. It implements
// broadcast.Sender so the broadcaster can enqueue fan-out frames directly.
type Hub struct {
	cfg      config.Config
	sessions *session.Manager
	admins   *adminident.Manager
	tokens   *tokenstore.Store
	provider identity.Provider
	guard    *security.Guard
	auditLog *audit.Log
	metrics  *observability.Metrics

	// caster is set after construction because the broadcaster needs the
	// hub as its sender.
	caster *broadcast.Broadcaster

	broadcasts chan broadcastJob

	mu      sync.RWMutex
	sockets map[string]*socket
}

// adminPermissions enumerates the operations an authenticated admin may
// invoke, reported in admin-auth-response.
var adminPermissions = []string{
	"start-session",
	"end-session",
	"update-session-config",
	"list-sessions",
	"broadcast-translation",
	"token-refresh",
}

func New(cfg config.Config, sessions *session.Manager, admins *adminident.Manager, tokens *tokenstore.Store, provider identity.Provider, guard *security.Guard, auditLog *audit.Log, metrics *observability.Metrics) *Hub {
	h := &Hub{
		cfg:      cfg,
		sessions: sessions,
		admins:   admins,
		tokens:   tokens,
		provider: provider,
		guard:    guard,
		auditLog: auditLog,
		metrics:  metrics,
		sockets:  make(map[string]*socket),

		broadcasts: make(chan broadcastJob, 256),
	}

	sessions.SetAdminAttachedFn(admins.IsAttached)
	sessions.SetStatusHook(h.onSessionStatusChange)
	tokens.SetExpireHook(h.onTokenExpired)
	go h.runBroadcasts()
	return h
}

// SetBroadcaster wires the broadcaster in after construction.
func (h *Hub) SetBroadcaster(b *broadcast.Broadcaster) {
	h.caster = b
}

// Send implements broadcast.Sender. Fan-out frames are droppable: a slow
// listener loses the frame, never the connection.
func (h *Hub) Send(socketID string, payload []byte) bool {
	h.mu.RLock()
	sk, ok := h.sockets[socketID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	if sk.enqueue(payload, true, h.cfg.OutboundQueueSoft) {
		h.countOutbound(string(protocol.TypeTranslation))
		return true
	}
	return false
}

// CountsByRole reports open sockets per role, for /health.
func (h *Hub) CountsByRole() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := map[string]int{roleAnonymous: 0, roleAdmin: 0, roleClient: 0}
	for _, sk := range h.sockets {
		out[sk.getRole()]++
	}
	return out
}

// ServeConn runs the full lifecycle of one upgraded connection: register,
// read until error or shutdown, then detach everything the socket touched.
// The caller has already passed the guard's connection checks.
func (h *Hub) ServeConn(ctx context.Context, conn *websocket.Conn, remoteIP string) {
	sk := &socket{
		id:       uuid.NewString(),
		remoteIP: remoteIP,
		conn:     conn,
		outbound: make(chan []byte, h.cfg.OutboundQueueHard),
		done:     make(chan struct{}),
		role:     roleAnonymous,
		sessions: make(map[string]bool),
	}

	h.mu.Lock()
	h.sockets[sk.id] = sk
	h.mu.Unlock()
	h.metrics.Connections.WithLabelValues(roleAnonymous).Inc()

	go sk.writeLoop(h.cfg.PingInterval, 10*time.Second)

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
		h.touchMemberships(sk)
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
		h.handleFrame(ctx, sk, data)
	}

	h.detach(sk)
}

// detach tears down everything the socket held: registry entry, auth
// session, identity binding, and session memberships.
func (h *Hub) detach(sk *socket) {
	sk.close()

	h.mu.Lock()
	_, registered := h.sockets[sk.id]
	delete(h.sockets, sk.id)
	h.mu.Unlock()
	if !registered {
		return
	}

	role := sk.getRole()
	h.metrics.Connections.WithLabelValues(role).Dec()
	h.guard.ConnectionClosed(sk.remoteIP)

	// The token may already be gone after an expiry; the identity binding
	// and the session's driving-socket slot are cleared regardless. All of
	// these are no-ops for sockets they never saw.
	h.tokens.Remove(sk.id)
	h.admins.Detach(sk.id)
	// Owned sessions keep running; the janitor pauses them after the
	// grace period if no other socket of this admin remains.
	h.sessions.AdminSocketDetached(sk.id)
	h.sessions.ClientSocketDetached(sk.id)
}

func (h *Hub) touchMemberships(sk *socket) {
	sk.mu.Lock()
	ids := make([]string, 0, len(sk.sessions))
	for id := range sk.sessions {
		ids = append(ids, id)
	}
	sk.mu.Unlock()
	for _, id := range ids {
		h.sessions.TouchClient(id, sk.id)
	}
}

// handleFrame parses, authenticates, rate-limits, and dispatches one
// inbound message.
func (h *Hub) handleFrame(ctx context.Context, sk *socket, raw []byte) {
	msg, err := protocol.Parse(raw)
	if err != nil {
		h.sendError(sk, errs.New(errs.ValidationInvalidInput, err.Error()))
		return
	}

	op := protocol.Operation(msg)
	h.metrics.WSMessages.WithLabelValues("inbound", op).Inc()

	auth, authed := h.tokens.Get(sk.id)
	tokenExpired := authed && auth.Expired()
	if tokenExpired {
		h.expireAuth(sk)
		authed = false
	}
	if protocol.AdminMessage(msg) && !authed {
		if tokenExpired {
			h.audit(ctx, errs.AuthTokenExpired, auth.AdminID, sk.remoteIP, op, "access token expired")
			h.sendError(sk, errs.New(errs.AuthTokenExpired, "access token expired; re-authenticate"))
			return
		}
		h.audit(ctx, errs.AuthSessionNotFound, "", sk.remoteIP, op, "admin operation without authentication")
		h.sendError(sk, errs.New(errs.AuthSessionNotFound, "operation "+op+" requires authentication"))
		return
	}

	actor := sk.id
	if authed {
		actor = auth.AdminID
	}
	if err := h.guard.AllowOperation(actor, op); err != nil {
		h.audit(ctx, errs.SystemRateLimited, auth.AdminID, sk.remoteIP, op, "operation rate exceeded")
		h.sendError(sk, err)
		return
	}

	switch m := msg.(type) {
	case protocol.AdminAuth:
		h.handleAdminAuth(ctx, sk, m)
	case protocol.TokenRefresh:
		h.handleTokenRefresh(ctx, sk, auth, m)
	case protocol.StartSession:
		h.handleStartSession(sk, auth, m)
	case protocol.EndSession:
		h.handleEndSession(sk, auth, m)
	case protocol.UpdateSessionConfig:
		h.handleUpdateConfig(sk, auth, m)
	case protocol.ListSessions:
		h.handleListSessions(sk, auth, m)
	case protocol.BroadcastTranslation:
		h.handleBroadcast(ctx, sk, auth, m)
	case protocol.JoinSession:
		h.handleJoin(sk, m)
	case protocol.LeaveSession:
		h.handleLeave(sk, m)
	case protocol.ChangeLanguage:
		h.handleChangeLanguage(sk, m)
	}
}

func (h *Hub) handleAdminAuth(ctx context.Context, sk *socket, msg protocol.AdminAuth) {
	var bundle identity.TokenBundle
	var user identity.UserInfo
	var err error

	switch msg.Method {
	case protocol.AuthMethodCredentials:
		bundle, err = h.provider.AuthenticateWithPassword(ctx, msg.Username, msg.Password)
		if err == nil {
			user, err = h.provider.ValidateToken(ctx, bundle.AccessToken)
		}
	case protocol.AuthMethodToken:
		bundle = identity.TokenBundle{AccessToken: msg.AccessToken}
		user, err = h.provider.ValidateToken(ctx, msg.AccessToken)
	}
	if err != nil {
		appErr := errs.From(err)
		h.guard.RecordAuthFailure(sk.remoteIP)
		h.metrics.AuthFailures.WithLabelValues(string(appErr.Code)).Inc()
		h.audit(ctx, appErr.Code, msg.Username, sk.remoteIP, "authenticate", appErr.Message)
		h.sendJSON(sk, protocol.AdminAuthResponse{Type: protocol.TypeAdminAuthResponse, Success: false})
		h.sendError(sk, appErr)
		return
	}

	expiresIn := bundle.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	h.tokens.Put(tokenstore.AuthSession{
		SocketID:     sk.id,
		AdminID:      user.AdminID,
		AccessToken:  bundle.AccessToken,
		IDToken:      bundle.IDToken,
		RefreshToken: bundle.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(expiresIn) * time.Second),
	})
	if sk.getRole() == roleAnonymous {
		h.metrics.Connections.WithLabelValues(roleAnonymous).Dec()
		h.metrics.Connections.WithLabelValues(roleAdmin).Inc()
	}
	sk.setRole(roleAdmin)

	displayName := user.DisplayName
	if displayName == "" {
		displayName = user.Username
	}
	owned, reconnection, err := h.admins.Attach(user.AdminID, sk.id, displayName)
	if err != nil {
		h.sendError(sk, err)
		return
	}

	// Rebind owned sessions to the new driving socket; paused ones resume.
	for _, sid := range owned {
		if _, err := h.sessions.UpdateAdminSocket(sid, user.AdminID, sk.id); err == nil {
			h.notifySessionClients(sid)
		}
	}

	h.sendJSON(sk, protocol.AdminAuthResponse{
		Type:          protocol.TypeAdminAuthResponse,
		Success:       true,
		AdminID:       user.AdminID,
		Username:      user.Username,
		AccessToken:   bundle.AccessToken,
		IDToken:       bundle.IDToken,
		RefreshToken:  bundle.RefreshToken,
		ExpiresIn:     expiresIn,
		OwnedSessions: owned,
		AllSessions:   h.sessions.List(user.AdminID, "all"),
		Permissions:   adminPermissions,
	})
	if reconnection {
		h.sendJSON(sk, protocol.AdminReconnection{
			Type:          protocol.TypeAdminReconnection,
			AdminID:       user.AdminID,
			OwnedSessions: owned,
			Timestamp:     time.Now().UTC(),
		})
	}
}

func (h *Hub) handleTokenRefresh(ctx context.Context, sk *socket, auth tokenstore.AuthSession, msg protocol.TokenRefresh) {
	bundle, err := h.provider.Refresh(ctx, msg.RefreshToken)
	if err != nil {
		appErr := errs.From(err)
		h.audit(ctx, appErr.Code, auth.AdminID, sk.remoteIP, "token-refresh", appErr.Message)
		h.sendJSON(sk, protocol.TokenRefreshResponse{Type: protocol.TypeTokenRefreshResponse, Success: false})
		h.sendError(sk, appErr)
		return
	}

	refreshToken := bundle.RefreshToken
	if refreshToken == "" {
		// Provider did not rotate the refresh token; keep using the old one.
		refreshToken = msg.RefreshToken
	}
	expiresIn := bundle.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	auth.AccessToken = bundle.AccessToken
	auth.IDToken = bundle.IDToken
	auth.RefreshToken = refreshToken
	auth.ExpiresAt = time.Now().Add(time.Duration(expiresIn) * time.Second)
	h.tokens.Put(auth)

	h.sendJSON(sk, protocol.TokenRefreshResponse{
		Type:         protocol.TypeTokenRefreshResponse,
		Success:      true,
		AccessToken:  bundle.AccessToken,
		IDToken:      bundle.IDToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
	})
}

func (h *Hub) handleStartSession(sk *socket, auth tokenstore.AuthSession, msg protocol.StartSession) {
	displayName := ""
	if id, ok := h.admins.Get(auth.AdminID); ok {
		displayName = id.DisplayName
	}
	s, err := h.sessions.Create(msg.SessionID, msg.Config, auth.AdminID, sk.id, displayName)
	if err != nil {
		h.sendError(sk, err)
		return
	}
	if err := h.admins.AddOwnedSession(auth.AdminID, s.ID); err != nil {
		log.Printf("hub: record ownership of %s: %v", s.ID, err)
	}
	h.metrics.SessionEvents.WithLabelValues("created").Inc()
	h.metrics.ActiveSessions.Set(float64(h.sessions.ActiveCount()))

	h.sendJSON(sk, protocol.StartSessionResponse{
		Type:      protocol.TypeStartSessionResponse,
		Success:   true,
		SessionID: s.ID,
		Session:   s,
	})
}

func (h *Hub) handleEndSession(sk *socket, auth tokenstore.AuthSession, msg protocol.EndSession) {
	snapshot, err := h.sessions.End(msg.SessionID, auth.AdminID)
	if err != nil {
		h.sendError(sk, err)
		return
	}
	h.admins.RemoveOwnedSession(auth.AdminID, snapshot.ID)
	h.metrics.SessionEvents.WithLabelValues("ended").Inc()
	h.metrics.ActiveSessions.Set(float64(h.sessions.ActiveCount()))

	// Every listener gets session-ended before the membership is gone.
	ended := protocol.SessionEnded{
		Type:      protocol.TypeSessionEnded,
		SessionID: snapshot.ID,
		Reason:    msg.Reason,
		Timestamp: time.Now().UTC(),
	}
	for socketID := range snapshot.Clients {
		if peer := h.socketByID(socketID); peer != nil {
			h.sendJSON(peer, ended)
			peer.leftSession(snapshot.ID)
		}
	}

	h.sendJSON(sk, protocol.EndSessionResponse{
		Type:      protocol.TypeEndSessionResponse,
		Success:   true,
		SessionID: snapshot.ID,
	})
}

func (h *Hub) handleUpdateConfig(sk *socket, auth tokenstore.AuthSession, msg protocol.UpdateSessionConfig) {
	s, err := h.sessions.UpdateConfig(msg.SessionID, msg.Config, auth.AdminID)
	if err != nil {
		h.sendError(sk, err)
		return
	}
	h.notifySessionClients(s.ID)

	h.sendJSON(sk, protocol.UpdateSessionConfigResponse{
		Type:      protocol.TypeUpdateSessionConfigResponse,
		Success:   true,
		SessionID: s.ID,
		Session:   s,
	})
}

func (h *Hub) handleListSessions(sk *socket, auth tokenstore.AuthSession, msg protocol.ListSessions) {
	filter := msg.Filter
	if filter == "" {
		filter = "all"
	}
	h.sendJSON(sk, protocol.ListSessionsResponse{
		Type:     protocol.TypeListSessionsResponse,
		Sessions: h.sessions.List(auth.AdminID, filter),
	})
}

// broadcastJob is one queued fan-out, processed off the read loop so a
// slow synthesis never stalls the admin's inbound frames.
type broadcastJob struct {
	ctx     context.Context
	sk      *socket
	adminID string
	msg     protocol.BroadcastTranslation
}

func (h *Hub) handleBroadcast(ctx context.Context, sk *socket, auth tokenstore.AuthSession, msg protocol.BroadcastTranslation) {
	select {
	case h.broadcasts <- broadcastJob{ctx: ctx, sk: sk, adminID: auth.AdminID, msg: msg}:
	default:
		h.sendError(sk, errs.New(errs.SystemRateLimited, "broadcast queue is full").WithRetryAfter(time.Second))
	}
}

// runBroadcasts drains the broadcast queue on a single goroutine,
// preserving submission order.
func (h *Hub) runBroadcasts() {
	for job := range h.broadcasts {
		report, err := h.caster.Broadcast(job.ctx, job.adminID, job.msg)
		if err != nil {
			h.sendError(job.sk, err)
			continue
		}
		if len(report.Degraded) > 0 {
			log.Printf("hub: broadcast to %s degraded to text for %v", report.SessionID, report.Degraded)
		}
	}
}

func (h *Hub) handleJoin(sk *socket, msg protocol.JoinSession) {
	s, err := h.sessions.JoinClient(msg.SessionID, sk.id, msg.PreferredLanguage, msg.AudioCapabilities)
	if err != nil {
		h.sendError(sk, err)
		return
	}
	if sk.getRole() == roleAnonymous {
		h.metrics.Connections.WithLabelValues(roleAnonymous).Dec()
		h.metrics.Connections.WithLabelValues(roleClient).Inc()
	}
	sk.setRole(roleClient)
	sk.joinedSession(s.ID)

	h.sendJSON(sk, protocol.SessionJoined{
		Type:             protocol.TypeSessionJoined,
		SessionID:        s.ID,
		Language:         msg.PreferredLanguage,
		SourceLanguage:   s.Config.SourceLanguage,
		EnabledLanguages: s.Config.EnabledLanguages,
		TTSMode:          s.Config.TTSMode,
		Status:           s.Status,
	})
}

func (h *Hub) handleLeave(sk *socket, msg protocol.LeaveSession) {
	h.sessions.LeaveClient(msg.SessionID, sk.id)
	sk.leftSession(msg.SessionID)
	h.sendJSON(sk, protocol.SessionLeft{
		Type:      protocol.TypeSessionLeft,
		SessionID: msg.SessionID,
	})
}

func (h *Hub) handleChangeLanguage(sk *socket, msg protocol.ChangeLanguage) {
	if err := h.sessions.SetClientLanguage(msg.SessionID, sk.id, msg.NewLanguage); err != nil {
		h.sendError(sk, err)
		return
	}
	s, err := h.sessions.Get(msg.SessionID)
	if err != nil {
		h.sendError(sk, err)
		return
	}
	h.sendJSON(sk, protocol.SessionJoined{
		Type:             protocol.TypeSessionJoined,
		SessionID:        s.ID,
		Language:         msg.NewLanguage,
		SourceLanguage:   s.Config.SourceLanguage,
		EnabledLanguages: s.Config.EnabledLanguages,
		TTSMode:          s.Config.TTSMode,
		Status:           s.Status,
	})
}

// onSessionStatusChange is the janitor hook: every member of the session
// hears about pause, resume, and expiry transitions.
func (h *Hub) onSessionStatusChange(s *session.Session, prev session.Status) {
	if s.Status.Terminal() {
		h.metrics.SessionEvents.WithLabelValues("expired").Inc()
		h.metrics.ActiveSessions.Set(float64(h.sessions.ActiveCount()))
	} else {
		h.metrics.SessionEvents.WithLabelValues(string(s.Status)).Inc()
	}

	var payload any
	if s.Status.Terminal() {
		payload = protocol.SessionEnded{
			Type:      protocol.TypeSessionEnded,
			SessionID: s.ID,
			Reason:    "inactivity",
			Timestamp: time.Now().UTC(),
		}
	} else {
		cfg := s.Config
		payload = protocol.SessionStatusUpdate{
			Type:      protocol.TypeSessionStatusUpdate,
			SessionID: s.ID,
			Status:    s.Status,
			Config:    &cfg,
			Timestamp: time.Now().UTC(),
		}
	}
	for socketID := range s.Clients {
		if peer := h.socketByID(socketID); peer != nil {
			h.sendJSON(peer, payload)
		}
	}
	// The owning admin's sockets hear about it too.
	for _, socketID := range h.admins.AttachedSockets(s.AdminID) {
		if peer := h.socketByID(socketID); peer != nil {
			h.sendJSON(peer, payload)
		}
	}
}

// expireAuth clears everything a lapsed token held: the stored auth
// session, the identity binding, and the driving-socket slot on owned
// sessions. The connection stays open for re-authentication.
func (h *Hub) expireAuth(sk *socket) {
	h.tokens.Remove(sk.id)
	h.admins.Detach(sk.id)
	h.sessions.AdminSocketDetached(sk.id)
	h.sendJSON(sk, protocol.SessionExpired{
		Type:      protocol.TypeSessionExpired,
		Reason:    "access token expired",
		Timestamp: time.Now().UTC(),
	})
}

// onTokenExpired tells the socket its auth lapsed. The connection stays up
// so the admin can re-authenticate.
func (h *Hub) onTokenExpired(a tokenstore.AuthSession) {
	h.admins.Detach(a.SocketID)
	h.sessions.AdminSocketDetached(a.SocketID)
	if sk := h.socketByID(a.SocketID); sk != nil {
		h.sendJSON(sk, protocol.SessionExpired{
			Type:      protocol.TypeSessionExpired,
			Reason:    "access token expired",
			Timestamp: time.Now().UTC(),
		})
	}
}

// notifySessionClients pushes the current status and config to every member.
func (h *Hub) notifySessionClients(sessionID string) {
	s, err := h.sessions.Get(sessionID)
	if err != nil {
		return
	}
	cfg := s.Config
	update := protocol.SessionStatusUpdate{
		Type:      protocol.TypeSessionStatusUpdate,
		SessionID: s.ID,
		Status:    s.Status,
		Config:    &cfg,
		Timestamp: time.Now().UTC(),
	}
	for socketID := range s.Clients {
		if peer := h.socketByID(socketID); peer != nil {
			h.sendJSON(peer, update)
		}
	}
}

// Shutdown notifies every session's members that the hub is going away,
// then closes all sockets, waiting up to ctx for queues to flush.
func (h *Hub) Shutdown(ctx context.Context) {
	for _, sum := range h.sessions.List("", "all") {
		s, err := h.sessions.Get(sum.SessionID)
		if err != nil {
			continue
		}
		update := protocol.SessionStatusUpdate{
			Type:      protocol.TypeSessionStatusUpdate,
			SessionID: s.ID,
			Status:    session.StatusEnding,
			Timestamp: time.Now().UTC(),
		}
		for socketID := range s.Clients {
			if peer := h.socketByID(socketID); peer != nil {
				h.sendJSON(peer, update)
			}
		}
		if peer := h.socketByID(s.CurrentAdminSocketID); peer != nil {
			h.sendJSON(peer, update)
		}
	}

	// Give writer goroutines a moment to drain before closing.
	deadline := time.NewTimer(time.Second)
	defer deadline.Stop()
	select {
	case <-ctx.Done():
	case <-deadline.C:
	}

	h.mu.Lock()
	sockets := make([]*socket, 0, len(h.sockets))
	for _, sk := range h.sockets {
		sockets = append(sockets, sk)
	}
	h.mu.Unlock()
	for _, sk := range sockets {
		sk.close()
	}
}

func (h *Hub) socketByID(id string) *socket {
	if id == "" {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sockets[id]
}

// sendJSON enqueues a control frame. These are never shed below the hard
// limit; overflow closes the socket.
func (h *Hub) sendJSON(sk *socket, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("hub: encode outbound frame: %v", err)
		return
	}
	if sk.enqueue(payload, false, h.cfg.OutboundQueueSoft) {
		h.countOutbound(outboundType(v))
	}
}

// sendError maps err to the wire error shape. Admin sockets receive
// admin-error, everything else receives error.
func (h *Hub) sendError(sk *socket, err error) {
	appErr := errs.From(err)
	msgType := protocol.TypeError
	if sk.getRole() == roleAdmin {
		msgType = protocol.TypeAdminError
	}
	h.sendJSON(sk, protocol.WireError{
		Type:        msgType,
		ErrorCode:   string(appErr.Code),
		Message:     appErr.Message,
		UserMessage: appErr.UserMessage(),
		Retryable:   appErr.Retryable(),
		RetryAfter:  int64(appErr.RetryAfter / time.Second),
		Details:     appErr.Details,
		Timestamp:   time.Now().UTC(),
	})
}

func (h *Hub) countOutbound(msgType string) {
	h.metrics.WSMessages.WithLabelValues("outbound", msgType).Inc()
}

func (h *Hub) audit(ctx context.Context, code errs.Code, adminID, remoteAddr, operation, reason string) {
	h.auditLog.Record(ctx, audit.Event{
		Code:       string(code),
		AdminID:    adminID,
		RemoteAddr: remoteAddr,
		Operation:  operation,
		Reason:     reason,
	})
}

func outboundType(v any) string {
	switch m := v.(type) {
	case protocol.AdminAuthResponse:
		return string(m.Type)
	case protocol.TokenRefreshResponse:
		return string(m.Type)
	case protocol.StartSessionResponse:
		return string(m.Type)
	case protocol.EndSessionResponse:
		return string(m.Type)
	case protocol.UpdateSessionConfigResponse:
		return string(m.Type)
	case protocol.ListSessionsResponse:
		return string(m.Type)
	case protocol.SessionStatusUpdate:
		return string(m.Type)
	case protocol.AdminReconnection:
		return string(m.Type)
	case protocol.SessionExpired:
		return string(m.Type)
	case protocol.SessionJoined:
		return string(m.Type)
	case protocol.SessionLeft:
		return string(m.Type)
	case protocol.SessionEnded:
		return string(m.Type)
	case protocol.WireError:
		return string(m.Type)
	default:
		return "unknown"
	}
}
