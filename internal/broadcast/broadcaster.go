// Package broadcast fans translated text, and optionally synthesized audio,
// out to the listeners of a session grouped by preferred language.
package broadcast

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/thunder45/service-translate-sub001/internal/audiocache"
	"github.com/thunder45/service-translate-sub001/internal/errs"
	"github.com/thunder45/service-translate-sub001/internal/observability"
	"github.com/thunder45/service-translate-sub001/internal/protocol"
	"github.com/thunder45/service-translate-sub001/internal/session"
)

// Sender enqueues a frame on a socket's outbound queue. It returns false
// when the frame was dropped, either because the queue is saturated or the
// socket is gone. It must never block.
type Sender interface {
	Send(socketID string, payload []byte) bool
}

// Report summarizes one broadcast for the admin response and metrics.
type Report struct {
	SessionID string
	// Delivered and Dropped count enqueue outcomes per language.
	Delivered map[string]int
	Dropped   map[string]int
	// AudioURLs maps language to the artifact URL, when cloud TTS ran.
	AudioURLs map[string]string
	// Degraded lists languages whose synthesis failed and fell back to
	// text-only delivery.
	Degraded []string
}

// Broadcaster resolves TTS per language and delivers translation frames.
type Broadcaster struct {
	sessions     *session.Manager
	cache        *audiocache.Cache
	sender       Sender
	metrics      *observability.Metrics
	audioBaseURL string
}

// New builds a Broadcaster. audioBaseURL is the public prefix clients fetch
// artifacts from, e.g. "http://host:8080/audio". metrics may be nil.
func New(sessions *session.Manager, cache *audiocache.Cache, sender Sender, metrics *observability.Metrics, audioBaseURL string) *Broadcaster {
	return &Broadcaster{
		sessions:     sessions,
		cache:        cache,
		sender:       sender,
		metrics:      metrics,
		audioBaseURL: audioBaseURL,
	}
}

// Broadcast delivers msg's translations to every listener of the session,
// each in their preferred language. Only the owning admin may broadcast, and
// only into a non-terminal session. A slow listener loses the frame, never
// the connection.
func (b *Broadcaster) Broadcast(ctx context.Context, requesterAdminID string, msg protocol.BroadcastTranslation) (*Report, error) {
	start := time.Now()

	s, err := b.sessions.Get(msg.SessionID)
	if err != nil {
		return nil, err
	}
	if s.AdminID != requesterAdminID {
		return nil, errs.New(errs.AuthzSessionNotOwned, "session "+s.ID+" is owned by another admin").WithDetail("sessionId", s.ID)
	}
	if s.Status.Terminal() || s.Status == session.StatusEnding {
		return nil, errs.New(errs.AuthzInvalidSessionState, "session "+s.ID+" is "+string(s.Status)).WithDetail("sessionId", s.ID)
	}

	b.sessions.RecordActivity(s.ID)

	report := &Report{
		SessionID: s.ID,
		Delivered: make(map[string]int),
		Dropped:   make(map[string]int),
		AudioURLs: make(map[string]string),
	}

	// Listeners grouped by preferred language; languages nobody listens to
	// still synthesize nothing.
	byLang := make(map[string][]string)
	for socketID, member := range s.Clients {
		byLang[member.PreferredLanguage] = append(byLang[member.PreferredLanguage], socketID)
	}

	now := time.Now().UTC()
	for lang, text := range msg.Translations {
		if !s.Config.EnabledLanguage(lang) {
			continue
		}
		recipients := byLang[lang]
		if len(recipients) == 0 {
			continue
		}

		frame := protocol.Translation{
			Type:      protocol.TypeTranslation,
			SessionID: s.ID,
			Text:      text,
			Language:  lang,
			Timestamp: now,
		}
		b.resolveAudio(ctx, s.Config.TTSMode, msg, lang, text, &frame, report)

		payload, err := json.Marshal(frame)
		if err != nil {
			return nil, errs.Wrap(errs.SystemInternal, "encode translation frame", err)
		}
		for _, socketID := range recipients {
			if b.sender.Send(socketID, payload) {
				report.Delivered[lang]++
				if b.metrics != nil {
					b.metrics.BroadcastsSent.WithLabelValues(lang).Inc()
				}
			} else {
				report.Dropped[lang]++
				if b.metrics != nil {
					b.metrics.BroadcastDrops.WithLabelValues(lang).Inc()
				}
			}
		}
	}

	if b.metrics != nil {
		b.metrics.ObserveBroadcastLatency(time.Since(start))
	}
	return report, nil
}

// resolveAudio fills the frame's audio fields according to the session's
// TTS mode. Synthesis failures degrade the language to text-only.
func (b *Broadcaster) resolveAudio(ctx context.Context, mode session.TTSMode, msg protocol.BroadcastTranslation, lang, text string, frame *protocol.Translation, report *Report) {
	switch {
	case mode.CloudSynthesis() && msg.GenerateTTS:
		voiceType := msg.VoiceType
		if voiceType == "" {
			voiceType = string(mode)
		}
		ttsStart := time.Now()
		artifact, err := b.cache.GetOrSynthesize(ctx, text, lang, voiceType)
		if b.metrics != nil {
			b.metrics.ObserveTTSLatency(time.Since(ttsStart))
		}
		if err != nil {
			log.Printf("broadcast: tts failed for %s/%s, degrading to text: %v", msg.SessionID, lang, err)
			report.Degraded = append(report.Degraded, lang)
			if b.metrics != nil {
				b.metrics.TTSSyntheses.WithLabelValues("error").Inc()
			}
			return
		}
		if b.metrics != nil {
			b.metrics.TTSSyntheses.WithLabelValues("ok").Inc()
		}
		frame.AudioURL = b.audioBaseURL + "/" + artifact.Filename()
		report.AudioURLs[lang] = frame.AudioURL
	case mode == session.TTSLocal:
		frame.UseLocalTTS = true
	}
}
