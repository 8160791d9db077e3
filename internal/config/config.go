package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the translation hub.
type Config struct {
	BindAddr         string
	PublicBaseURL    string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool
	AllowedOrigins []string

	IdentityProvider string
	CognitoRegion    string
	CognitoPoolID    string
	CognitoClientID  string

	SessionsDir            string
	AdminIdentitiesDir     string
	SessionEndedRetention  time.Duration
	SessionInactivityLimit time.Duration
	AdminDisconnectGrace   time.Duration
	AdminIdentityRetention time.Duration
	JanitorInterval        time.Duration

	MaxClientsPerSession int
	MaxConnectionsPerIP  int
	AuthFailureThreshold int

	OutboundQueueSoft int
	OutboundQueueHard int
	PingInterval      time.Duration
	PongTimeout       time.Duration

	TTSProvider   string
	PollyRegion   string
	PollyTimeout  time.Duration
	AudioDir      string
	AudioMaxBytes int64
	AudioMaxAge   time.Duration
	AudioCleanup  time.Duration

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:            envOrDefault("HUB_BIND_ADDR", ":8080"),
		PublicBaseURL:       envOrDefault("HUB_PUBLIC_BASE_URL", "http://localhost:8080"),
		MetricsNamespace:    envOrDefault("HUB_METRICS_NAMESPACE", "translation_hub"),
		AllowAnyOrigin:      false,
		IdentityProvider:    envOrDefault("IDENTITY_PROVIDER", "auto"),
		CognitoRegion:       stringsTrimSpace("COGNITO_REGION"),
		CognitoPoolID:       stringsTrimSpace("COGNITO_USER_POOL_ID"),
		CognitoClientID:     stringsTrimSpace("COGNITO_CLIENT_ID"),
		SessionsDir:         envOrDefault("HUB_SESSIONS_DIR", "data/sessions"),
		AdminIdentitiesDir:  envOrDefault("HUB_ADMIN_IDENTITIES_DIR", "data/admins"),
		TTSProvider:         envOrDefault("TTS_PROVIDER", "auto"),
		PollyRegion:         stringsTrimSpace("POLLY_REGION"),
		AudioDir:            envOrDefault("HUB_AUDIO_DIR", "data/audio"),
		DatabaseURL:         stringsTrimSpace("DATABASE_URL"),

		ShutdownTimeout:        15 * time.Second,
		SessionEndedRetention:  30 * time.Minute,
		SessionInactivityLimit: 2 * time.Hour,
		AdminDisconnectGrace:   15 * time.Second,
		AdminIdentityRetention: 720 * time.Hour,
		JanitorInterval:        10 * time.Second,
		MaxClientsPerSession:   50,
		MaxConnectionsPerIP:    20,
		AuthFailureThreshold:   5,
		OutboundQueueSoft:      64,
		OutboundQueueHard:      256,
		PingInterval:           20 * time.Second,
		PongTimeout:            45 * time.Second,
		PollyTimeout:           15 * time.Second,
		AudioMaxBytes:          500 << 20,
		AudioMaxAge:            24 * time.Hour,
		AudioCleanup:           10 * time.Minute,
	}

	if origins := stringsTrimSpace("HUB_ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	var err error
	cfg.AllowAnyOrigin, err = boolFromEnv("HUB_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.ShutdownTimeout, err = durationFromEnv("HUB_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionEndedRetention, err = durationFromEnv("HUB_SESSION_ENDED_RETENTION", cfg.SessionEndedRetention)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityLimit, err = durationFromEnv("HUB_SESSION_INACTIVITY_LIMIT", cfg.SessionInactivityLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.AdminDisconnectGrace, err = durationFromEnv("HUB_ADMIN_DISCONNECT_GRACE", cfg.AdminDisconnectGrace)
	if err != nil {
		return Config{}, err
	}
	cfg.AdminIdentityRetention, err = durationFromEnv("HUB_ADMIN_IDENTITY_RETENTION", cfg.AdminIdentityRetention)
	if err != nil {
		return Config{}, err
	}
	cfg.JanitorInterval, err = durationFromEnv("HUB_JANITOR_INTERVAL", cfg.JanitorInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.PingInterval, err = durationFromEnv("HUB_PING_INTERVAL", cfg.PingInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.PongTimeout, err = durationFromEnv("HUB_PONG_TIMEOUT", cfg.PongTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.PollyTimeout, err = durationFromEnv("POLLY_TIMEOUT", cfg.PollyTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AudioMaxAge, err = durationFromEnv("HUB_AUDIO_MAX_AGE", cfg.AudioMaxAge)
	if err != nil {
		return Config{}, err
	}
	cfg.AudioCleanup, err = durationFromEnv("HUB_AUDIO_CLEANUP_INTERVAL", cfg.AudioCleanup)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxClientsPerSession, err = intFromEnv("HUB_MAX_CLIENTS_PER_SESSION", cfg.MaxClientsPerSession)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxConnectionsPerIP, err = intFromEnv("HUB_MAX_CONNECTIONS_PER_IP", cfg.MaxConnectionsPerIP)
	if err != nil {
		return Config{}, err
	}
	cfg.AuthFailureThreshold, err = intFromEnv("HUB_AUTH_FAILURE_THRESHOLD", cfg.AuthFailureThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.OutboundQueueSoft, err = intFromEnv("HUB_OUTBOUND_QUEUE_SOFT", cfg.OutboundQueueSoft)
	if err != nil {
		return Config{}, err
	}
	cfg.OutboundQueueHard, err = intFromEnv("HUB_OUTBOUND_QUEUE_HARD", cfg.OutboundQueueHard)
	if err != nil {
		return Config{}, err
	}
	audioMaxMB, err := intFromEnv("HUB_AUDIO_MAX_SIZE_MB", int(cfg.AudioMaxBytes>>20))
	if err != nil {
		return Config{}, err
	}
	cfg.AudioMaxBytes = int64(audioMaxMB) << 20

	switch cfg.IdentityProvider {
	case "auto", "cognito", "mock":
	default:
		return Config{}, fmt.Errorf("IDENTITY_PROVIDER must be auto, cognito, or mock")
	}
	switch cfg.TTSProvider {
	case "auto", "polly", "mock":
	default:
		return Config{}, fmt.Errorf("TTS_PROVIDER must be auto, polly, or mock")
	}
	if cfg.IdentityProvider == "cognito" && (cfg.CognitoRegion == "" || cfg.CognitoPoolID == "" || cfg.CognitoClientID == "") {
		return Config{}, fmt.Errorf("IDENTITY_PROVIDER=cognito requires COGNITO_REGION, COGNITO_USER_POOL_ID, and COGNITO_CLIENT_ID")
	}
	if cfg.TTSProvider == "polly" && cfg.PollyRegion == "" {
		return Config{}, fmt.Errorf("TTS_PROVIDER=polly requires POLLY_REGION")
	}
	if cfg.MaxClientsPerSession < 0 {
		return Config{}, fmt.Errorf("HUB_MAX_CLIENTS_PER_SESSION must be >= 0")
	}
	if cfg.MaxConnectionsPerIP <= 0 {
		return Config{}, fmt.Errorf("HUB_MAX_CONNECTIONS_PER_IP must be positive")
	}
	if cfg.AuthFailureThreshold <= 0 {
		return Config{}, fmt.Errorf("HUB_AUTH_FAILURE_THRESHOLD must be positive")
	}
	if cfg.OutboundQueueSoft <= 0 || cfg.OutboundQueueHard < cfg.OutboundQueueSoft {
		return Config{}, fmt.Errorf("outbound queue thresholds must satisfy 0 < soft <= hard")
	}
	if cfg.PongTimeout <= cfg.PingInterval {
		return Config{}, fmt.Errorf("HUB_PONG_TIMEOUT must exceed HUB_PING_INTERVAL")
	}
	if cfg.AudioMaxBytes <= 0 {
		return Config{}, fmt.Errorf("HUB_AUDIO_MAX_SIZE_MB must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
