package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thunder45/service-translate-sub001/internal/errs"
)

func testConfig() Config {
	return Config{
		SourceLanguage:   "pt",
		TargetLanguages:  []string{"en", "es"},
		EnabledLanguages: []string{"en", "es"},
		TTSMode:          TTSStandard,
		AudioQuality:     QualityMedium,
		Audio:            AudioConfig{SampleRate: 16000, Encoding: "pcm", Channels: 1},
	}
}

func appCode(t *testing.T, err error) errs.Code {
	t.Helper()
	var app *errs.AppError
	if !errors.As(err, &app) {
		t.Fatalf("error = %v, want *errs.AppError", err)
	}
	return app.Code
}

func TestCreateGetEnd(t *testing.T) {
	m := NewManager(t.TempDir(), Options{})
	s, err := m.Create("CHURCH-2025-001", testConfig(), "admin-a", "sock-1", "Pastor")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if s.Status != StatusStarted {
		t.Fatalf("Status = %q, want %q", s.Status, StatusStarted)
	}

	got, err := m.Get("CHURCH-2025-001")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.AdminID != "admin-a" || got.CreatedBy != "Pastor" {
		t.Fatalf("unexpected session: %+v", got)
	}

	ended, err := m.End("CHURCH-2025-001", "admin-a")
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status != StatusEnding {
		t.Fatalf("snapshot status = %q, want %q", ended.Status, StatusEnding)
	}
	got, err = m.Get("CHURCH-2025-001")
	if err != nil {
		t.Fatalf("Get() after end error = %v", err)
	}
	if got.Status != StatusEnded {
		t.Fatalf("Status = %q, want %q", got.Status, StatusEnded)
	}
}

func TestCreateDuplicateRejected(t *testing.T) {
	m := NewManager(t.TempDir(), Options{})
	if _, err := m.Create("CHURCH-X", testConfig(), "admin-a", "sock-1", "A"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	_, err := m.Create("CHURCH-X", testConfig(), "admin-b", "sock-2", "B")
	if code := appCode(t, err); code != errs.SessionAlreadyExists {
		t.Fatalf("code = %q, want %q", code, errs.SessionAlreadyExists)
	}
}

func TestEndRequiresOwner(t *testing.T) {
	m := NewManager(t.TempDir(), Options{})
	if _, err := m.Create("CHURCH-X", testConfig(), "admin-a", "sock-1", "A"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	_, err := m.End("CHURCH-X", "admin-b")
	if code := appCode(t, err); code != errs.AuthzSessionNotOwned {
		t.Fatalf("code = %q, want %q", code, errs.AuthzSessionNotOwned)
	}

	// Rejected mutation must not change state.
	got, err := m.Get("CHURCH-X")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status.Terminal() {
		t.Fatalf("session was ended by non-owner")
	}
}

func TestUpdateConfigRequiresOwnerAndValidates(t *testing.T) {
	m := NewManager(t.TempDir(), Options{})
	if _, err := m.Create("CHURCH-X", testConfig(), "admin-a", "sock-1", "A"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	_, err := m.UpdateConfig("CHURCH-X", ConfigPatch{EnabledLanguages: []string{"en"}}, "admin-b")
	if code := appCode(t, err); code != errs.AuthzSessionNotOwned {
		t.Fatalf("code = %q, want %q", code, errs.AuthzSessionNotOwned)
	}

	_, err = m.UpdateConfig("CHURCH-X", ConfigPatch{EnabledLanguages: []string{"fr"}}, "admin-a")
	if code := appCode(t, err); code != errs.ValidationConfig {
		t.Fatalf("code = %q, want %q", code, errs.ValidationConfig)
	}

	updated, err := m.UpdateConfig("CHURCH-X", ConfigPatch{EnabledLanguages: []string{"en"}}, "admin-a")
	if err != nil {
		t.Fatalf("UpdateConfig() error = %v", err)
	}
	if len(updated.Config.EnabledLanguages) != 1 || updated.Config.EnabledLanguages[0] != "en" {
		t.Fatalf("EnabledLanguages = %v, want [en]", updated.Config.EnabledLanguages)
	}
}

func TestJoinLeaveAndLanguage(t *testing.T) {
	m := NewManager(t.TempDir(), Options{})
	if _, err := m.Create("CHURCH-X", testConfig(), "admin-a", "sock-1", "A"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	s, err := m.JoinClient("CHURCH-X", "client-1", "en", AudioCapabilities{SupportsCloudAudio: true})
	if err != nil {
		t.Fatalf("JoinClient() error = %v", err)
	}
	if len(s.Clients) != 1 {
		t.Fatalf("Clients = %d, want 1", len(s.Clients))
	}

	_, err = m.JoinClient("CHURCH-X", "client-2", "fr", AudioCapabilities{})
	if code := appCode(t, err); code != errs.ValidationLanguage {
		t.Fatalf("code = %q, want %q", code, errs.ValidationLanguage)
	}

	if err := m.SetClientLanguage("CHURCH-X", "client-1", "es"); err != nil {
		t.Fatalf("SetClientLanguage() error = %v", err)
	}
	if err := m.SetClientLanguage("CHURCH-X", "client-1", "de"); err == nil {
		t.Fatalf("expected error for disabled language")
	}

	m.LeaveClient("CHURCH-X", "client-1")
	m.LeaveClient("CHURCH-X", "client-1") // idempotent
	got, err := m.Get("CHURCH-X")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.Clients) != 0 {
		t.Fatalf("Clients = %d, want 0", len(got.Clients))
	}
}

func TestJoinEnforcesClientLimit(t *testing.T) {
	m := NewManager(t.TempDir(), Options{MaxClientsPerSession: 1})
	if _, err := m.Create("CHURCH-X", testConfig(), "admin-a", "sock-1", "A"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := m.JoinClient("CHURCH-X", "client-1", "en", AudioCapabilities{}); err != nil {
		t.Fatalf("JoinClient() error = %v", err)
	}
	_, err := m.JoinClient("CHURCH-X", "client-2", "en", AudioCapabilities{})
	if code := appCode(t, err); code != errs.SessionClientLimitExceeded {
		t.Fatalf("code = %q, want %q", code, errs.SessionClientLimitExceeded)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, Options{})
	created, err := m.Create("CHURCH-2025-001", testConfig(), "admin-a", "sock-1", "Pastor")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	reloaded := NewManager(dir, Options{})
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got, err := reloaded.Get("CHURCH-2025-001")
	if err != nil {
		t.Fatalf("Get() after reload error = %v", err)
	}
	if got.AdminID != created.AdminID || got.CreatedBy != created.CreatedBy {
		t.Fatalf("reloaded = %+v, want fields of %+v", got, created)
	}
	if got.Config.SourceLanguage != "pt" || len(got.Config.TargetLanguages) != 2 {
		t.Fatalf("reloaded config = %+v", got.Config)
	}
	// Socket bindings are stale after restart: session comes back paused.
	if got.Status != StatusPaused {
		t.Fatalf("Status after reload = %q, want %q", got.Status, StatusPaused)
	}
	if got.CurrentAdminSocketID != "" || len(got.Clients) != 0 {
		t.Fatalf("stale bindings survived reload: %+v", got)
	}
}

func TestLoadDropsTerminalSessions(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, Options{})
	if _, err := m.Create("CHURCH-X", testConfig(), "admin-a", "sock-1", "A"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := m.End("CHURCH-X", "admin-a"); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	reloaded := NewManager(dir, Options{})
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := reloaded.Get("CHURCH-X"); err == nil {
		t.Fatalf("terminal session should not be rehydrated")
	}
}

func TestReattachResumesPausedSession(t *testing.T) {
	m := NewManager(t.TempDir(), Options{AdminDisconnectGrace: 10 * time.Millisecond})
	if _, err := m.Create("CHURCH-X", testConfig(), "admin-a", "sock-1", "A"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	m.RecordActivity("CHURCH-X")

	affected := m.AdminSocketDetached("sock-1")
	if len(affected) != 1 || affected[0] != "CHURCH-X" {
		t.Fatalf("AdminSocketDetached() = %v, want [CHURCH-X]", affected)
	}

	time.Sleep(20 * time.Millisecond)
	m.sweep()
	got, err := m.Get("CHURCH-X")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusPaused {
		t.Fatalf("Status = %q, want %q", got.Status, StatusPaused)
	}

	resumed, err := m.UpdateAdminSocket("CHURCH-X", "admin-a", "sock-2")
	if err != nil {
		t.Fatalf("UpdateAdminSocket() error = %v", err)
	}
	if resumed.Status != StatusActive {
		t.Fatalf("Status = %q, want %q", resumed.Status, StatusActive)
	}
	if resumed.AdminID != "admin-a" {
		t.Fatalf("AdminID changed on reattach: %q", resumed.AdminID)
	}
}

func TestReattachRequiresOwner(t *testing.T) {
	m := NewManager(t.TempDir(), Options{})
	if _, err := m.Create("CHURCH-X", testConfig(), "admin-a", "sock-1", "A"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	_, err := m.UpdateAdminSocket("CHURCH-X", "admin-b", "sock-9")
	if code := appCode(t, err); code != errs.AuthzSessionNotOwned {
		t.Fatalf("code = %q, want %q", code, errs.AuthzSessionNotOwned)
	}
}

func TestJanitorEndsInactiveSessions(t *testing.T) {
	m := NewManager(t.TempDir(), Options{InactivityTimeout: 20 * time.Millisecond})
	if _, err := m.Create("CHURCH-X", testConfig(), "admin-a", "sock-1", "A"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	var hookStatus Status
	done := make(chan struct{})
	m.SetStatusHook(func(s *Session, prev Status) {
		hookStatus = s.Status
		close(done)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("janitor did not end the inactive session")
	}
	if hookStatus != StatusEnded {
		t.Fatalf("hook status = %q, want %q", hookStatus, StatusEnded)
	}
}

func TestListAnnotatesOwnership(t *testing.T) {
	m := NewManager(t.TempDir(), Options{})
	if _, err := m.Create("CHURCH-A", testConfig(), "admin-a", "sock-1", "A"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := m.Create("CHURCH-B", testConfig(), "admin-b", "sock-2", "B"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := m.JoinClient("CHURCH-A", "client-1", "en", AudioCapabilities{}); err != nil {
		t.Fatalf("JoinClient() error = %v", err)
	}

	all := m.List("admin-a", "all")
	if len(all) != 2 {
		t.Fatalf("List(all) = %d entries, want 2", len(all))
	}
	for _, sum := range all {
		switch sum.SessionID {
		case "CHURCH-A":
			if !sum.IsOwner || sum.ClientsPerLang["en"] != 1 {
				t.Fatalf("owned summary = %+v", sum)
			}
		case "CHURCH-B":
			if sum.IsOwner || sum.ClientsPerLang != nil {
				t.Fatalf("foreign summary leaks owner fields: %+v", sum)
			}
		}
	}

	owned := m.List("admin-a", "owned")
	if len(owned) != 1 || owned[0].SessionID != "CHURCH-A" {
		t.Fatalf("List(owned) = %+v, want only CHURCH-A", owned)
	}
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing source", func(c *Config) { c.SourceLanguage = "" }},
		{"no targets", func(c *Config) { c.TargetLanguages = nil }},
		{"enabled not subset", func(c *Config) { c.EnabledLanguages = []string{"fr"} }},
		{"bad tts mode", func(c *Config) { c.TTSMode = "cloud" }},
		{"bad quality", func(c *Config) { c.AudioQuality = "ultra" }},
		{"bad sample rate", func(c *Config) { c.Audio.SampleRate = 12345 }},
		{"bad encoding", func(c *Config) { c.Audio.Encoding = "mp3" }},
		{"bad channels", func(c *Config) { c.Audio.Channels = 5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("Validate() accepted invalid config: %+v", cfg)
			}
		})
	}
	if err := testConfig().Validate(); err != nil {
		t.Fatalf("Validate() rejected valid config: %v", err)
	}
}

func TestValidateID(t *testing.T) {
	if err := ValidateID("CHURCH-2025-001"); err != nil {
		t.Fatalf("ValidateID() error = %v", err)
	}
	for _, bad := range []string{"", "ab", "has space", "semi;colon", "../etc"} {
		if err := ValidateID(bad); err == nil {
			t.Fatalf("ValidateID(%q) accepted invalid id", bad)
		}
	}
}
