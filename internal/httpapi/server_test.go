package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thunder45/service-translate-sub001/internal/adminident"
	"github.com/thunder45/service-translate-sub001/internal/audiocache"
	"github.com/thunder45/service-translate-sub001/internal/audit"
	"github.com/thunder45/service-translate-sub001/internal/broadcast"
	"github.com/thunder45/service-translate-sub001/internal/config"
	"github.com/thunder45/service-translate-sub001/internal/hub"
	"github.com/thunder45/service-translate-sub001/internal/identity"
	"github.com/thunder45/service-translate-sub001/internal/observability"
	"github.com/thunder45/service-translate-sub001/internal/security"
	"github.com/thunder45/service-translate-sub001/internal/session"
	"github.com/thunder45/service-translate-sub001/internal/tokenstore"
	"github.com/thunder45/service-translate-sub001/internal/tts"
)

type harness struct {
	ts       *httptest.Server
	provider *identity.MockProvider
	sessions *session.Manager
	cache    *audiocache.Cache
	synth    *tts.MockSynthesizer
}

func newHarness(t *testing.T, limits security.Limits) *harness {
	t.Helper()

	cfg := config.Config{
		AllowAnyOrigin:    true,
		OutboundQueueSoft: 64,
		OutboundQueueHard: 256,
		PingInterval:      20 * time.Second,
		PongTimeout:       45 * time.Second,
	}

	sessions := session.NewManager(t.TempDir(), session.Options{MaxClientsPerSession: 50})
	admins := adminident.NewManager(t.TempDir(), 0)
	tokens := tokenstore.NewStore()
	provider := identity.NewMockProvider()
	guard := security.NewGuard(limits)
	auditLog := audit.NewLog(slog.New(slog.NewJSONHandler(io.Discard, nil)), nil)
	metrics := observability.NewMetrics(fmt.Sprintf("test_httpapi_%d", time.Now().UnixNano()))

	synth := tts.NewMockSynthesizer()
	cache, err := audiocache.New(t.TempDir(), synth, audiocache.Options{})
	if err != nil {
		t.Fatalf("audiocache.New() error = %v", err)
	}

	h := hub.New(cfg, sessions, admins, tokens, provider, guard, auditLog, metrics)
	srv := New(cfg, h, sessions, cache, guard, auditLog)
	ts := httptest.NewServer(srv.Router())
	// Websocket connections are hijacked, so ts.Close does not wait for
	// their handler goroutines; wait for the hub to drain before the
	// t.TempDir cleanups remove the directories those handlers write to.
	t.Cleanup(func() {
		ts.Close()
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) {
			total := 0
			for _, n := range h.CountsByRole() {
				total += n
			}
			if total == 0 {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
		time.Sleep(50 * time.Millisecond)
	})

	h.SetBroadcaster(broadcast.New(sessions, cache, h, metrics, ts.URL+"/audio"))

	return &harness{ts: ts, provider: provider, sessions: sessions, cache: cache, synth: synth}
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write %T: %v", v, err)
	}
}

// waitForType reads frames until one of the wanted type arrives.
func waitForType(t *testing.T, conn *websocket.Conn, wantType string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read waiting for %q: %v", wantType, err)
		}
		var frame map[string]any
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if frame["type"] == wantType {
			return frame
		}
	}
	t.Fatalf("no %q frame within deadline", wantType)
	return nil
}

func sessionConfigPayload() map[string]any {
	return map[string]any{
		"sourceLanguage":  "en",
		"targetLanguages": []string{"es", "fr"},
		"ttsMode":         "disabled",
		"audioQuality":    "medium",
		"audioConfig":     map[string]any{"sampleRate": 16000, "encoding": "pcm", "channels": 1},
	}
}

func authenticate(t *testing.T, conn *websocket.Conn, username, password string) map[string]any {
	t.Helper()
	send(t, conn, map[string]any{
		"type":     "admin-auth",
		"method":   "credentials",
		"username": username,
		"password": password,
	})
	return waitForType(t, conn, "admin-auth-response")
}

func TestAdminSessionLifecycleOverWebsocket(t *testing.T) {
	h := newHarness(t, security.Limits{})
	h.provider.AddUser("operator", "hunter2", "Operator One")

	admin := h.dial(t)
	resp := authenticate(t, admin, "operator", "hunter2")
	if resp["success"] != true {
		t.Fatalf("auth response = %v", resp)
	}
	if resp["adminId"] == "" || resp["accessToken"] == "" {
		t.Fatalf("auth response missing identity fields: %v", resp)
	}
	if perms, ok := resp["permissions"].([]any); !ok || len(perms) == 0 {
		t.Fatalf("auth response missing permissions: %v", resp)
	}

	send(t, admin, map[string]any{
		"type":      "start-session",
		"sessionId": "SERVICE-2026-001",
		"config":    sessionConfigPayload(),
	})
	started := waitForType(t, admin, "start-session-response")
	if started["success"] != true || started["sessionId"] != "SERVICE-2026-001" {
		t.Fatalf("start response = %v", started)
	}

	// An anonymous listener joins for Spanish.
	client := h.dial(t)
	send(t, client, map[string]any{
		"type":              "join-session",
		"sessionId":         "SERVICE-2026-001",
		"preferredLanguage": "es",
		"audioCapabilities": map[string]any{"supportsCloudAudio": false},
	})
	joined := waitForType(t, client, "session-joined")
	if joined["language"] != "es" || joined["sourceLanguage"] != "en" {
		t.Fatalf("session-joined = %v", joined)
	}

	send(t, admin, map[string]any{
		"type":         "broadcast-translation",
		"sessionId":    "SERVICE-2026-001",
		"original":     "welcome",
		"translations": map[string]string{"es": "bienvenidos", "fr": "bienvenue"},
	})
	translation := waitForType(t, client, "translation")
	if translation["text"] != "bienvenidos" || translation["language"] != "es" {
		t.Fatalf("translation = %v", translation)
	}

	send(t, admin, map[string]any{"type": "end-session", "sessionId": "SERVICE-2026-001"})
	endedForClient := waitForType(t, client, "session-ended")
	if endedForClient["sessionId"] != "SERVICE-2026-001" {
		t.Fatalf("session-ended = %v", endedForClient)
	}
	endResp := waitForType(t, admin, "end-session-response")
	if endResp["success"] != true {
		t.Fatalf("end response = %v", endResp)
	}
}

func TestAdminOperationRequiresAuth(t *testing.T) {
	h := newHarness(t, security.Limits{})

	conn := h.dial(t)
	send(t, conn, map[string]any{
		"type":      "start-session",
		"sessionId": "NOPE-001",
		"config":    sessionConfigPayload(),
	})
	frame := waitForType(t, conn, "error")
	if frame["errorCode"] != "AUTH_1006" {
		t.Fatalf("errorCode = %v, want AUTH_1006", frame["errorCode"])
	}
}

func TestOnlyOwnerMayEndSession(t *testing.T) {
	h := newHarness(t, security.Limits{})
	h.provider.AddUser("alice", "pw-a", "Alice")
	h.provider.AddUser("bob", "pw-b", "Bob")

	alice := h.dial(t)
	authenticate(t, alice, "alice", "pw-a")
	send(t, alice, map[string]any{
		"type":      "start-session",
		"sessionId": "ALICE-001",
		"config":    sessionConfigPayload(),
	})
	waitForType(t, alice, "start-session-response")

	bob := h.dial(t)
	authenticate(t, bob, "bob", "pw-b")
	send(t, bob, map[string]any{"type": "end-session", "sessionId": "ALICE-001"})
	frame := waitForType(t, bob, "admin-error")
	if frame["errorCode"] != "AUTHZ_1102" {
		t.Fatalf("errorCode = %v, want AUTHZ_1102", frame["errorCode"])
	}

	s, err := h.sessions.Get("ALICE-001")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if s.Status.Terminal() {
		t.Fatalf("non-owner ended the session")
	}
}

func TestFailedAuthReturnsFailure(t *testing.T) {
	h := newHarness(t, security.Limits{})
	h.provider.AddUser("operator", "hunter2", "Operator")

	conn := h.dial(t)
	resp := authenticate(t, conn, "operator", "wrong")
	if resp["success"] != false {
		t.Fatalf("auth response = %v, want failure", resp)
	}
	frame := waitForType(t, conn, "error")
	if frame["errorCode"] != "AUTH_1001" {
		t.Fatalf("errorCode = %v, want AUTH_1001", frame["errorCode"])
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newHarness(t, security.Limits{})

	res, err := http.Get(h.ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["status"] != "ok" {
		t.Fatalf("health = %v", payload)
	}
	if _, ok := payload["connections"]; !ok {
		t.Fatalf("health missing connections: %v", payload)
	}
}

func TestAudioEndpoint(t *testing.T) {
	h := newHarness(t, security.Limits{})

	artifact, err := h.cache.GetOrSynthesize(context.Background(), "hola", "es", "neural")
	if err != nil {
		t.Fatalf("GetOrSynthesize() error = %v", err)
	}

	res, err := http.Get(h.ts.URL + "/audio/" + artifact.Filename())
	if err != nil {
		t.Fatalf("GET audio error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("Content-Type = %q", ct)
	}
	body, _ := io.ReadAll(res.Body)
	if len(body) == 0 {
		t.Fatalf("empty audio body")
	}

	missing, err := http.Get(h.ts.URL + "/audio/doesnotexist.mp3")
	if err != nil {
		t.Fatalf("GET missing audio error = %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("missing artifact status = %d, want 404", missing.StatusCode)
	}
}

func TestSecurityEndpointListsEvents(t *testing.T) {
	h := newHarness(t, security.Limits{})
	h.provider.AddUser("operator", "hunter2", "Operator")

	conn := h.dial(t)
	authenticate(t, conn, "operator", "nope")

	res, err := http.Get(h.ts.URL + "/security")
	if err != nil {
		t.Fatalf("GET /security error = %v", err)
	}
	defer res.Body.Close()
	var payload struct {
		RecentEvents []audit.Event `json:"recentEvents"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.RecentEvents) == 0 {
		t.Fatalf("no security events after failed auth")
	}
	if payload.RecentEvents[0].Code != "AUTH_1001" {
		t.Fatalf("event code = %q, want AUTH_1001", payload.RecentEvents[0].Code)
	}
}

func TestConnectionConcurrencyLimit(t *testing.T) {
	h := newHarness(t, security.Limits{MaxConcurrentPerIP: 2})

	h.dial(t)
	h.dial(t)

	wsURL := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/ws"
	_, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatalf("third connection was admitted past the limit")
	}
	if res == nil || res.StatusCode != http.StatusServiceUnavailable {
		code := 0
		if res != nil {
			code = res.StatusCode
		}
		t.Fatalf("status = %d, want %d", code, http.StatusServiceUnavailable)
	}

	// The rejection shows up in the security trail.
	sec, err := http.Get(h.ts.URL + "/security")
	if err != nil {
		t.Fatalf("GET /security error = %v", err)
	}
	defer sec.Body.Close()
	var payload struct {
		RecentEvents []audit.Event `json:"recentEvents"`
	}
	if err := json.NewDecoder(sec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	found := false
	for _, ev := range payload.RecentEvents {
		if ev.Code == "SYSTEM_1406" && ev.Operation == "connect" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no connect rejection in security events: %v", payload.RecentEvents)
	}
}

func TestAudioContentTypes(t *testing.T) {
	cases := map[string]string{
		"mp3":        "audio/mpeg",
		"ogg_vorbis": "audio/ogg",
		"wav":        "audio/wav",
		"raw":        "application/octet-stream",
	}
	for format, want := range cases {
		if got := audioContentType(format); got != want {
			t.Fatalf("audioContentType(%q) = %q, want %q", format, got, want)
		}
	}
}

func TestBroadcastOrderPreserved(t *testing.T) {
	h := newHarness(t, security.Limits{})
	h.provider.AddUser("operator", "hunter2", "Operator")

	admin := h.dial(t)
	authenticate(t, admin, "operator", "hunter2")
	send(t, admin, map[string]any{
		"type":      "start-session",
		"sessionId": "ORDER-001",
		"config":    sessionConfigPayload(),
	})
	waitForType(t, admin, "start-session-response")

	client := h.dial(t)
	send(t, client, map[string]any{
		"type":              "join-session",
		"sessionId":         "ORDER-001",
		"preferredLanguage": "es",
		"audioCapabilities": map[string]any{"supportsCloudAudio": false},
	})
	waitForType(t, client, "session-joined")

	for i := 0; i < 5; i++ {
		send(t, admin, map[string]any{
			"type":         "broadcast-translation",
			"sessionId":    "ORDER-001",
			"original":     fmt.Sprintf("line %d", i),
			"translations": map[string]string{"es": fmt.Sprintf("linea %d", i)},
		})
	}
	for i := 0; i < 5; i++ {
		tr := waitForType(t, client, "translation")
		if want := fmt.Sprintf("linea %d", i); tr["text"] != want {
			t.Fatalf("translation %d = %v, want %q", i, tr["text"], want)
		}
	}
}

func TestChangeLanguageOverWebsocket(t *testing.T) {
	h := newHarness(t, security.Limits{})
	h.provider.AddUser("operator", "hunter2", "Operator")

	admin := h.dial(t)
	authenticate(t, admin, "operator", "hunter2")
	send(t, admin, map[string]any{
		"type":      "start-session",
		"sessionId": fmt.Sprintf("LANG-%d", time.Now().UnixNano()%100000),
		"config":    sessionConfigPayload(),
	})
	started := waitForType(t, admin, "start-session-response")
	sessionID := started["sessionId"].(string)

	client := h.dial(t)
	send(t, client, map[string]any{
		"type":              "join-session",
		"sessionId":         sessionID,
		"preferredLanguage": "es",
		"audioCapabilities": map[string]any{"supportsCloudAudio": false},
	})
	waitForType(t, client, "session-joined")

	send(t, client, map[string]any{
		"type":        "change-language",
		"sessionId":   sessionID,
		"newLanguage": "fr",
	})
	changed := waitForType(t, client, "session-joined")
	if changed["language"] != "fr" {
		t.Fatalf("language after change = %v, want fr", changed["language"])
	}

	// A language outside the session's targets is rejected.
	send(t, client, map[string]any{
		"type":        "change-language",
		"sessionId":   sessionID,
		"newLanguage": "de",
	})
	frame := waitForType(t, client, "error")
	if frame["errorCode"] != "VALIDATION_1504" {
		t.Fatalf("errorCode = %v, want VALIDATION_1504", frame["errorCode"])
	}
}
