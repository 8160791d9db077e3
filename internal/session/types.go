// Package session owns the authoritative registry of live translation
// sessions, their configuration, client memberships, and persisted state.
package session

import (
	"regexp"
	"strings"
	"time"

	"github.com/thunder45/service-translate-sub001/internal/errs"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusStarted Status = "started"
	StatusActive  Status = "active"
	StatusPaused  Status = "paused"
	StatusEnding  Status = "ending"
	StatusEnded   Status = "ended"
	StatusError   Status = "error"
)

// Terminal reports whether no further mutations are accepted in s.
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusError
}

// TTSMode selects how synthesized audio is produced for a session.
type TTSMode string

const (
	TTSNeural   TTSMode = "neural"
	TTSStandard TTSMode = "standard"
	TTSLocal    TTSMode = "local"
	TTSDisabled TTSMode = "disabled"
)

// CloudSynthesis reports whether the hub itself calls the TTS service.
func (m TTSMode) CloudSynthesis() bool {
	return m == TTSNeural || m == TTSStandard
}

type AudioQuality string

const (
	QualityHigh   AudioQuality = "high"
	QualityMedium AudioQuality = "medium"
	QualityLow    AudioQuality = "low"
)

// AudioConfig describes the capture format announced by the admin.
type AudioConfig struct {
	SampleRate int    `json:"sampleRate"`
	Encoding   string `json:"encoding"`
	Channels   int    `json:"channels"`
}

// Config is the per-session translation configuration.
type Config struct {
	SourceLanguage   string       `json:"sourceLanguage"`
	TargetLanguages  []string     `json:"targetLanguages"`
	EnabledLanguages []string     `json:"enabledLanguages"`
	TTSMode          TTSMode      `json:"ttsMode"`
	AudioQuality     AudioQuality `json:"audioQuality"`
	Audio            AudioConfig  `json:"audioConfig"`
}

// ConfigPatch carries a partial config update; nil fields are untouched.
type ConfigPatch struct {
	TargetLanguages  []string      `json:"targetLanguages,omitempty"`
	EnabledLanguages []string      `json:"enabledLanguages,omitempty"`
	TTSMode          *TTSMode      `json:"ttsMode,omitempty"`
	AudioQuality     *AudioQuality `json:"audioQuality,omitempty"`
	Audio            *AudioConfig  `json:"audioConfig,omitempty"`
}

// AudioCapabilities is what a joining client can play back locally.
type AudioCapabilities struct {
	SupportsCloudAudio bool     `json:"supportsCloudAudio"`
	LocalTTSLanguages  []string `json:"localTTSLanguages,omitempty"`
	AudioFormats       []string `json:"audioFormats,omitempty"`
}

// ClientMembership is one anonymous listener attached to a session.
type ClientMembership struct {
	SocketID          string            `json:"socketId"`
	PreferredLanguage string            `json:"preferredLanguage"`
	JoinedAt          time.Time         `json:"joinedAt"`
	LastSeen          time.Time         `json:"lastSeen"`
	Capabilities      AudioCapabilities `json:"audioCapabilities"`
}

// Session is one live translation broadcast. AdminID never changes after
// creation; only the owner may mutate the session.
type Session struct {
	ID                   string                       `json:"sessionId"`
	AdminID              string                       `json:"adminId"`
	CurrentAdminSocketID string                       `json:"currentAdminSocketId,omitempty"`
	CreatedBy            string                       `json:"createdBy"`
	Config               Config                       `json:"config"`
	Clients              map[string]*ClientMembership `json:"clients"`
	CreatedAt            time.Time                    `json:"createdAt"`
	LastActivity         time.Time                    `json:"lastActivity"`
	Status               Status                       `json:"status"`
}

// Summary is the listing view of a session; owner-only fields are populated
// only when the requester owns the session.
type Summary struct {
	SessionID      string         `json:"sessionId"`
	Status         Status         `json:"status"`
	SourceLanguage string         `json:"sourceLanguage"`
	TargetLangs    []string       `json:"targetLanguages"`
	ClientCount    int            `json:"clientCount"`
	CreatedBy      string         `json:"createdBy"`
	CreatedAt      time.Time      `json:"createdAt"`
	IsOwner        bool           `json:"isOwner"`
	ClientsPerLang map[string]int `json:"clientsPerLanguage,omitempty"`
}

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{2,63}$`)

// ValidateID checks the human-readable session name, e.g. CHURCH-2025-001.
func ValidateID(id string) error {
	if !sessionIDPattern.MatchString(id) {
		return errs.New(errs.ValidationSessionID, "session id must be 3-64 chars of letters, digits, - or _")
	}
	return nil
}

var (
	validSampleRates = map[int]bool{8000: true, 16000: true, 22050: true, 44100: true, 48000: true}
	validEncodings   = map[string]bool{"pcm": true, "opus": true, "flac": true}
)

// Validate checks all config invariants, in particular enabledLanguages
// being a subset of targetLanguages.
func (c Config) Validate() error {
	if strings.TrimSpace(c.SourceLanguage) == "" {
		return errs.New(errs.ValidationMissingField, "sourceLanguage is required")
	}
	if len(c.TargetLanguages) == 0 {
		return errs.New(errs.ValidationMissingField, "targetLanguages must not be empty")
	}
	targets := make(map[string]bool, len(c.TargetLanguages))
	for _, lang := range c.TargetLanguages {
		if strings.TrimSpace(lang) == "" {
			return errs.New(errs.ValidationLanguage, "empty target language")
		}
		targets[lang] = true
	}
	for _, lang := range c.EnabledLanguages {
		if !targets[lang] {
			return errs.New(errs.ValidationConfig, "enabled language "+lang+" is not a target language")
		}
	}
	switch c.TTSMode {
	case TTSNeural, TTSStandard, TTSLocal, TTSDisabled:
	default:
		return errs.New(errs.ValidationConfig, "invalid ttsMode "+string(c.TTSMode))
	}
	switch c.AudioQuality {
	case QualityHigh, QualityMedium, QualityLow:
	default:
		return errs.New(errs.ValidationConfig, "invalid audioQuality "+string(c.AudioQuality))
	}
	if !validSampleRates[c.Audio.SampleRate] {
		return errs.New(errs.ValidationConfig, "invalid sampleRate")
	}
	if !validEncodings[c.Audio.Encoding] {
		return errs.New(errs.ValidationConfig, "invalid encoding "+c.Audio.Encoding)
	}
	if c.Audio.Channels != 1 && c.Audio.Channels != 2 {
		return errs.New(errs.ValidationConfig, "channels must be 1 or 2")
	}
	return nil
}

// EnabledLanguage reports whether lang is currently broadcasting.
func (c Config) EnabledLanguage(lang string) bool {
	for _, l := range c.EnabledLanguages {
		if l == lang {
			return true
		}
	}
	return false
}

// Apply returns a copy of c with the patch merged in.
func (c Config) Apply(p ConfigPatch) Config {
	out := c
	if p.TargetLanguages != nil {
		out.TargetLanguages = append([]string(nil), p.TargetLanguages...)
	}
	if p.EnabledLanguages != nil {
		out.EnabledLanguages = append([]string(nil), p.EnabledLanguages...)
	}
	if p.TTSMode != nil {
		out.TTSMode = *p.TTSMode
	}
	if p.AudioQuality != nil {
		out.AudioQuality = *p.AudioQuality
	}
	if p.Audio != nil {
		out.Audio = *p.Audio
	}
	return out
}
