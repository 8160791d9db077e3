package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.IdentityProvider != "auto" || cfg.TTSProvider != "auto" {
		t.Fatalf("providers = %q/%q, want auto/auto", cfg.IdentityProvider, cfg.TTSProvider)
	}
	if cfg.SessionEndedRetention != 30*time.Minute {
		t.Fatalf("SessionEndedRetention = %v", cfg.SessionEndedRetention)
	}
	if cfg.OutboundQueueSoft >= cfg.OutboundQueueHard {
		t.Fatalf("queue thresholds soft=%d hard=%d", cfg.OutboundQueueSoft, cfg.OutboundQueueHard)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HUB_BIND_ADDR", ":9090")
	t.Setenv("HUB_MAX_CLIENTS_PER_SESSION", "10")
	t.Setenv("HUB_ADMIN_DISCONNECT_GRACE", "30s")
	t.Setenv("HUB_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q", cfg.BindAddr)
	}
	if cfg.MaxClientsPerSession != 10 {
		t.Fatalf("MaxClientsPerSession = %d", cfg.MaxClientsPerSession)
	}
	if cfg.AdminDisconnectGrace != 30*time.Second {
		t.Fatalf("AdminDisconnectGrace = %v", cfg.AdminDisconnectGrace)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}

func TestLoadRejectsIncompleteCognito(t *testing.T) {
	t.Setenv("IDENTITY_PROVIDER", "cognito")
	t.Setenv("COGNITO_REGION", "eu-west-1")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "COGNITO_USER_POOL_ID") {
		t.Fatalf("Load() error = %v, want cognito requirement", err)
	}
}

func TestLoadRejectsBadQueueThresholds(t *testing.T) {
	t.Setenv("HUB_OUTBOUND_QUEUE_SOFT", "100")
	t.Setenv("HUB_OUTBOUND_QUEUE_HARD", "10")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() accepted hard < soft")
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Setenv("TTS_PROVIDER", "festival")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() accepted unknown tts provider")
	}
}
