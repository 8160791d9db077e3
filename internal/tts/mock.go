package tts

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MockSynthesizer is an in-memory synthesizer for tests and local runs.
// It returns deterministic bytes and counts invocations.
type MockSynthesizer struct {
	mu    sync.Mutex
	calls atomic.Int64
	// FailWith, when set, is returned for every call.
	FailWith error
	// Delay simulates synthesis latency.
	Delay time.Duration
	// seen records every (text, language, voiceType) synthesized.
	seen []string
}

func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{}
}

func (m *MockSynthesizer) Synthesize(ctx context.Context, text, language, voiceType string) (Result, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.seen = append(m.seen, text+"|"+language+"|"+voiceType)
	fail := m.FailWith
	delay := m.Delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if fail != nil {
		return Result{}, fail
	}
	if !SupportedLanguage(language) {
		return Result{}, ErrUnsupportedLanguage
	}
	return Result{
		Audio:  []byte("mp3:" + language + ":" + voiceType + ":" + text),
		Format: "mp3",
	}, nil
}

// Calls returns how many times Synthesize ran.
func (m *MockSynthesizer) Calls() int64 {
	return m.calls.Load()
}
