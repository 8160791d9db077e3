package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/thunder45/service-translate-sub001/internal/adminident"
	"github.com/thunder45/service-translate-sub001/internal/audiocache"
	"github.com/thunder45/service-translate-sub001/internal/audit"
	"github.com/thunder45/service-translate-sub001/internal/broadcast"
	"github.com/thunder45/service-translate-sub001/internal/config"
	"github.com/thunder45/service-translate-sub001/internal/hub"
	"github.com/thunder45/service-translate-sub001/internal/httpapi"
	"github.com/thunder45/service-translate-sub001/internal/identity"
	"github.com/thunder45/service-translate-sub001/internal/observability"
	"github.com/thunder45/service-translate-sub001/internal/security"
	"github.com/thunder45/service-translate-sub001/internal/session"
	"github.com/thunder45/service-translate-sub001/internal/tokenstore"
	"github.com/thunder45/service-translate-sub001/internal/tts"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	ctx := context.Background()

	// Identity provider: cognito when configured, mock otherwise.
	var provider identity.Provider
	identityMode := strings.ToLower(strings.TrimSpace(cfg.IdentityProvider))
	switch identityMode {
	case "cognito":
		provider, err = identity.NewCognitoProvider(ctx, identity.CognitoConfig{
			Region:     cfg.CognitoRegion,
			UserPoolID: cfg.CognitoPoolID,
			ClientID:   cfg.CognitoClientID,
		})
		if err != nil {
			log.Fatalf("cognito provider init failed: %v", err)
		}
		log.Printf("identity provider: cognito (%s)", cfg.CognitoRegion)
	case "mock":
		provider = devMockProvider()
	case "auto":
		if cfg.CognitoRegion != "" && cfg.CognitoPoolID != "" && cfg.CognitoClientID != "" {
			provider, err = identity.NewCognitoProvider(ctx, identity.CognitoConfig{
				Region:     cfg.CognitoRegion,
				UserPoolID: cfg.CognitoPoolID,
				ClientID:   cfg.CognitoClientID,
			})
			if err != nil {
				log.Fatalf("cognito provider init failed: %v", err)
			}
			log.Printf("identity provider: cognito (%s)", cfg.CognitoRegion)
		} else {
			provider = devMockProvider()
		}
	}

	// TTS: polly when configured, mock otherwise.
	var synth tts.Synthesizer
	ttsMode := strings.ToLower(strings.TrimSpace(cfg.TTSProvider))
	switch ttsMode {
	case "polly":
		synth, err = tts.NewPollySynthesizer(ctx, tts.PollyConfig{Region: cfg.PollyRegion, CallTimeout: cfg.PollyTimeout})
		if err != nil {
			log.Fatalf("polly synthesizer init failed: %v", err)
		}
		log.Printf("tts provider: polly (%s)", cfg.PollyRegion)
	case "mock":
		synth = tts.NewMockSynthesizer()
		log.Printf("tts provider: mock")
	case "auto":
		if cfg.PollyRegion != "" {
			synth, err = tts.NewPollySynthesizer(ctx, tts.PollyConfig{Region: cfg.PollyRegion, CallTimeout: cfg.PollyTimeout})
			if err != nil {
				log.Fatalf("polly synthesizer init failed: %v", err)
			}
			log.Printf("tts provider: polly (%s)", cfg.PollyRegion)
		} else {
			synth = tts.NewMockSynthesizer()
			log.Printf("tts provider: mock (POLLY_REGION not set)")
		}
	}

	sessions := session.NewManager(cfg.SessionsDir, session.Options{
		MaxClientsPerSession: cfg.MaxClientsPerSession,
		EndedRetention:       cfg.SessionEndedRetention,
		InactivityTimeout:    cfg.SessionInactivityLimit,
		AdminDisconnectGrace: cfg.AdminDisconnectGrace,
	})
	if err := sessions.Load(); err != nil {
		log.Fatalf("session load failed: %v", err)
	}

	admins := adminident.NewManager(cfg.AdminIdentitiesDir, cfg.AdminIdentityRetention)
	if err := admins.Load(); err != nil {
		log.Fatalf("admin identity load failed: %v", err)
	}

	tokens := tokenstore.NewStore()
	guard := security.NewGuard(security.Limits{
		MaxConcurrentPerIP:   cfg.MaxConnectionsPerIP,
		AuthFailureThreshold: cfg.AuthFailureThreshold,
	})

	auditSink, err := audit.NewSink(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("audit sink init failed: %v", err)
	}
	auditLog := audit.NewLog(slog.New(slog.NewJSONHandler(os.Stderr, nil)), auditSink)
	defer auditLog.Close()

	cache, err := audiocache.New(cfg.AudioDir, synth, audiocache.Options{
		MaxSizeBytes: cfg.AudioMaxBytes,
		MaxAge:       cfg.AudioMaxAge,
	})
	if err != nil {
		log.Fatalf("audio cache init failed: %v", err)
	}

	h := hub.New(cfg, sessions, admins, tokens, provider, guard, auditLog, metrics)
	h.SetBroadcaster(broadcast.New(sessions, cache, h, metrics, strings.TrimRight(cfg.PublicBaseURL, "/")+"/audio"))

	api := httpapi.New(cfg, h, sessions, cache, guard, auditLog)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, cfg.JanitorInterval)
	admins.StartRetentionSweep(runCtx, time.Hour)
	tokens.StartExpiryScan(runCtx, time.Minute)
	cache.StartJanitor(runCtx, cfg.AudioCleanup)

	go func() {
		log.Printf("hub listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	h.Shutdown(shutdownCtx)
	runCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

// devMockProvider seeds a local operator account so the hub is usable out of
// the box without an identity-provider pool.
func devMockProvider() identity.Provider {
	p := identity.NewMockProvider()
	p.AddUser("admin", "admin", "Local Admin")
	log.Printf("identity provider: mock (user admin/admin)")
	return p
}
