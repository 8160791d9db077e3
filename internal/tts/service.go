// Package tts wraps the cloud text-to-speech service used to synthesize
// translated audio.
package tts

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrTimeout             = errors.New("tts timeout")
)

// Result is one synthesized utterance.
type Result struct {
	Audio        []byte
	Format       string
	DurationHint time.Duration
}

// Synthesizer converts text to speech. voiceType is "neural" or "standard";
// implementations must be safe for concurrent use.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, language, voiceType string) (Result, error)
}

// voicePair holds the per-language voice choices by quality tier.
type voicePair struct {
	neural   string
	standard string
}

// voiceTable maps supported broadcast languages to Polly voices.
var voiceTable = map[string]voicePair{
	"en": {neural: "Joanna", standard: "Joanna"},
	"es": {neural: "Lupe", standard: "Lupe"},
	"fr": {neural: "Lea", standard: "Celine"},
	"de": {neural: "Vicki", standard: "Marlene"},
	"it": {neural: "Bianca", standard: "Carla"},
	"pt": {neural: "Camila", standard: "Camila"},
	"nl": {neural: "Laura", standard: "Lotte"},
	"pl": {neural: "Ola", standard: "Ewa"},
	"ja": {neural: "Takumi", standard: "Mizuki"},
	"ko": {neural: "Seoyeon", standard: "Seoyeon"},
	"zh": {neural: "Zhiyu", standard: "Zhiyu"},
	"ar": {neural: "Hala", standard: "Zeina"},
	"ru": {standard: "Tatyana"},
	"hi": {neural: "Kajal", standard: "Aditi"},
}

// VoiceFor resolves the voice id for (language, voiceType). Languages with
// no neural voice fall back to their standard voice.
func VoiceFor(language, voiceType string) (string, error) {
	pair, ok := voiceTable[language]
	if !ok {
		return "", ErrUnsupportedLanguage
	}
	if voiceType == "neural" && pair.neural != "" {
		return pair.neural, nil
	}
	if pair.standard != "" {
		return pair.standard, nil
	}
	return pair.neural, nil
}

// SupportedLanguage reports whether language has any configured voice.
func SupportedLanguage(language string) bool {
	_, ok := voiceTable[language]
	return ok
}
