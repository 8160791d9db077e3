// Package protocol defines the websocket payload contract between the hub,
// admin applications, and browser clients.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/thunder45/service-translate-sub001/internal/session"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	// Admin → hub.
	TypeAdminAuth            MessageType = "admin-auth"
	TypeTokenRefresh         MessageType = "token-refresh"
	TypeStartSession         MessageType = "start-session"
	TypeEndSession           MessageType = "end-session"
	TypeUpdateSessionConfig  MessageType = "update-session-config"
	TypeListSessions         MessageType = "list-sessions"
	TypeBroadcastTranslation MessageType = "broadcast-translation"

	// Client → hub.
	TypeJoinSession    MessageType = "join-session"
	TypeLeaveSession   MessageType = "leave-session"
	TypeChangeLanguage MessageType = "change-language"

	// Hub → admin.
	TypeAdminAuthResponse           MessageType = "admin-auth-response"
	TypeTokenRefreshResponse        MessageType = "token-refresh-response"
	TypeStartSessionResponse        MessageType = "start-session-response"
	TypeEndSessionResponse          MessageType = "end-session-response"
	TypeUpdateSessionConfigResponse MessageType = "update-session-config-response"
	TypeListSessionsResponse        MessageType = "list-sessions-response"
	TypeSessionStatusUpdate         MessageType = "session-status-update"
	TypeAdminReconnection           MessageType = "admin-reconnection"
	TypeSessionExpired              MessageType = "session-expired"
	TypeAdminError                  MessageType = "admin-error"

	// Hub → client.
	TypeSessionJoined MessageType = "session-joined"
	TypeSessionLeft   MessageType = "session-left"
	TypeTranslation   MessageType = "translation"
	TypeSessionEnded  MessageType = "session-ended"
	TypeError         MessageType = "error"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ---- Admin → hub ----

type AuthMethod string

const (
	AuthMethodCredentials AuthMethod = "credentials"
	AuthMethodToken       AuthMethod = "token"
)

type AdminAuth struct {
	Type        MessageType `json:"type"`
	Method      AuthMethod  `json:"method"`
	Username    string      `json:"username,omitempty"`
	Password    string      `json:"password,omitempty"`
	AccessToken string      `json:"accessToken,omitempty"`
}

type TokenRefresh struct {
	Type         MessageType `json:"type"`
	RefreshToken string      `json:"refreshToken"`
}

type StartSession struct {
	Type      MessageType    `json:"type"`
	SessionID string         `json:"sessionId"`
	Config    session.Config `json:"config"`
}

type EndSession struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
	Reason    string      `json:"reason,omitempty"`
}

type UpdateSessionConfig struct {
	Type      MessageType         `json:"type"`
	SessionID string              `json:"sessionId"`
	Config    session.ConfigPatch `json:"config"`
}

type ListSessions struct {
	Type   MessageType `json:"type"`
	Filter string      `json:"filter,omitempty"`
}

type BroadcastTranslation struct {
	Type         MessageType       `json:"type"`
	SessionID    string            `json:"sessionId"`
	Original     string            `json:"original"`
	Translations map[string]string `json:"translations"`
	GenerateTTS  bool              `json:"generateTTS"`
	VoiceType    string            `json:"voiceType,omitempty"`
}

// ---- Client → hub ----

type JoinSession struct {
	Type              MessageType               `json:"type"`
	SessionID         string                    `json:"sessionId"`
	PreferredLanguage string                    `json:"preferredLanguage"`
	AudioCapabilities session.AudioCapabilities `json:"audioCapabilities"`
}

type LeaveSession struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
}

type ChangeLanguage struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"sessionId"`
	NewLanguage string      `json:"newLanguage"`
}

// ---- Hub → admin ----

type AdminAuthResponse struct {
	Type          MessageType       `json:"type"`
	Success       bool              `json:"success"`
	AdminID       string            `json:"adminId,omitempty"`
	Username      string            `json:"username,omitempty"`
	AccessToken   string            `json:"accessToken,omitempty"`
	IDToken       string            `json:"idToken,omitempty"`
	RefreshToken  string            `json:"refreshToken,omitempty"`
	ExpiresIn     int64             `json:"expiresIn,omitempty"`
	OwnedSessions []string          `json:"ownedSessions,omitempty"`
	AllSessions   []session.Summary `json:"allSessions,omitempty"`
	Permissions   []string          `json:"permissions,omitempty"`
}

type TokenRefreshResponse struct {
	Type         MessageType `json:"type"`
	Success      bool        `json:"success"`
	AccessToken  string      `json:"accessToken,omitempty"`
	IDToken      string      `json:"idToken,omitempty"`
	RefreshToken string      `json:"refreshToken,omitempty"`
	ExpiresIn    int64       `json:"expiresIn,omitempty"`
}

type StartSessionResponse struct {
	Type      MessageType     `json:"type"`
	Success   bool            `json:"success"`
	SessionID string          `json:"sessionId"`
	Session   *session.Session `json:"session,omitempty"`
}

type EndSessionResponse struct {
	Type      MessageType `json:"type"`
	Success   bool        `json:"success"`
	SessionID string      `json:"sessionId"`
}

type UpdateSessionConfigResponse struct {
	Type      MessageType      `json:"type"`
	Success   bool             `json:"success"`
	SessionID string           `json:"sessionId"`
	Session   *session.Session `json:"session,omitempty"`
}

type ListSessionsResponse struct {
	Type     MessageType       `json:"type"`
	Sessions []session.Summary `json:"sessions"`
}

type SessionStatusUpdate struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"sessionId"`
	Status    session.Status  `json:"status"`
	Config    *session.Config `json:"config,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type AdminReconnection struct {
	Type          MessageType `json:"type"`
	AdminID       string      `json:"adminId"`
	OwnedSessions []string    `json:"ownedSessions"`
	Timestamp     time.Time   `json:"timestamp"`
}

type SessionExpired struct {
	Type      MessageType `json:"type"`
	Reason    string      `json:"reason"`
	Timestamp time.Time   `json:"timestamp"`
}

// WireError is the payload shape shared by admin-error and error.
type WireError struct {
	Type        MessageType    `json:"type"`
	ErrorCode   string         `json:"errorCode"`
	Message     string         `json:"message"`
	UserMessage string         `json:"userMessage"`
	Retryable   bool           `json:"retryable"`
	RetryAfter  int64          `json:"retryAfter,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// ---- Hub → client ----

type SessionJoined struct {
	Type             MessageType    `json:"type"`
	SessionID        string         `json:"sessionId"`
	Language         string         `json:"language"`
	SourceLanguage   string         `json:"sourceLanguage"`
	EnabledLanguages []string       `json:"enabledLanguages"`
	TTSMode          session.TTSMode `json:"ttsMode"`
	Status           session.Status `json:"status"`
}

type SessionLeft struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
}

type Translation struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"sessionId"`
	Text        string      `json:"text"`
	Language    string      `json:"language"`
	Timestamp   time.Time   `json:"timestamp"`
	AudioURL    string      `json:"audioUrl,omitempty"`
	UseLocalTTS bool        `json:"useLocalTTS,omitempty"`
}

type SessionEnded struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
	Reason    string      `json:"reason,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Parse decodes one inbound frame into its typed variant, validating the
// fields the router depends on. Unknown types return ErrUnsupportedType.
func Parse(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeAdminAuth:
		var msg AdminAuth
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch msg.Method {
		case AuthMethodCredentials:
			if strings.TrimSpace(msg.Username) == "" || msg.Password == "" {
				return nil, errors.New("admin-auth with credentials requires username and password")
			}
		case AuthMethodToken:
			if strings.TrimSpace(msg.AccessToken) == "" {
				return nil, errors.New("admin-auth with token requires accessToken")
			}
		default:
			return nil, errors.New("admin-auth method must be credentials or token")
		}
		return msg, nil
	case TypeTokenRefresh:
		var msg TokenRefresh
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.RefreshToken) == "" {
			return nil, errors.New("token-refresh requires refreshToken")
		}
		return msg, nil
	case TypeStartSession:
		var msg StartSession
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.SessionID) == "" {
			return nil, errors.New("start-session requires sessionId")
		}
		return msg, nil
	case TypeEndSession:
		var msg EndSession
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.SessionID) == "" {
			return nil, errors.New("end-session requires sessionId")
		}
		return msg, nil
	case TypeUpdateSessionConfig:
		var msg UpdateSessionConfig
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.SessionID) == "" {
			return nil, errors.New("update-session-config requires sessionId")
		}
		return msg, nil
	case TypeListSessions:
		var msg ListSessions
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch msg.Filter {
		case "", "owned", "all":
		default:
			return nil, errors.New("list-sessions filter must be owned or all")
		}
		return msg, nil
	case TypeBroadcastTranslation:
		var msg BroadcastTranslation
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.SessionID) == "" {
			return nil, errors.New("broadcast-translation requires sessionId")
		}
		if len(msg.Translations) == 0 {
			return nil, errors.New("broadcast-translation requires translations")
		}
		switch msg.VoiceType {
		case "", "neural", "standard":
		default:
			return nil, errors.New("voiceType must be neural or standard")
		}
		return msg, nil
	case TypeJoinSession:
		var msg JoinSession
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.SessionID) == "" || strings.TrimSpace(msg.PreferredLanguage) == "" {
			return nil, errors.New("join-session requires sessionId and preferredLanguage")
		}
		return msg, nil
	case TypeLeaveSession:
		var msg LeaveSession
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.SessionID) == "" {
			return nil, errors.New("leave-session requires sessionId")
		}
		return msg, nil
	case TypeChangeLanguage:
		var msg ChangeLanguage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.SessionID) == "" || strings.TrimSpace(msg.NewLanguage) == "" {
			return nil, errors.New("change-language requires sessionId and newLanguage")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// AdminMessage reports whether msg requires an authenticated admin socket.
func AdminMessage(msg any) bool {
	switch msg.(type) {
	case TokenRefresh, StartSession, EndSession, UpdateSessionConfig, ListSessions, BroadcastTranslation:
		return true
	default:
		return false
	}
}

// Operation names the message for rate limiting and audit logging.
func Operation(msg any) string {
	switch msg.(type) {
	case AdminAuth:
		return "authenticate"
	case TokenRefresh:
		return "token-refresh"
	case StartSession:
		return "start-session"
	case EndSession:
		return "end-session"
	case UpdateSessionConfig:
		return "update-session-config"
	case ListSessions:
		return "list-sessions"
	case BroadcastTranslation:
		return "broadcast-translation"
	case JoinSession:
		return "join-session"
	case LeaveSession:
		return "leave-session"
	case ChangeLanguage:
		return "change-language"
	default:
		return "unknown"
	}
}
