package audit

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestRecordAndRecent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	l := NewLog(logger, nil)

	l.Record(context.Background(), Event{Code: "AUTH_1001", RemoteAddr: "10.0.0.1", Operation: "authenticate"})
	l.Record(context.Background(), Event{Code: "AUTHZ_1102", AdminID: "admin-b", Operation: "end-session"})

	recent := l.Recent(10)
	if len(recent) != 2 {
		t.Fatalf("Recent() = %d events, want 2", len(recent))
	}
	if recent[0].Code != "AUTHZ_1102" {
		t.Fatalf("newest first order broken: %+v", recent)
	}
	if recent[0].ID == "" || recent[0].At.IsZero() {
		t.Fatalf("event not normalized: %+v", recent[0])
	}

	if !strings.Contains(buf.String(), "AUTH_1001") {
		t.Fatalf("structured log missing event code: %s", buf.String())
	}
}

func TestRingOverwritesOldest(t *testing.T) {
	l := NewLog(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), nil)
	for i := 0; i < ringSize+10; i++ {
		l.Record(context.Background(), Event{Code: fmt.Sprintf("C%d", i)})
	}

	recent := l.Recent(0)
	if len(recent) != ringSize {
		t.Fatalf("Recent() = %d events, want %d", len(recent), ringSize)
	}
	if recent[0].Code != fmt.Sprintf("C%d", ringSize+9) {
		t.Fatalf("newest event = %q, want C%d", recent[0].Code, ringSize+9)
	}
}

func TestNewSinkUnconfigured(t *testing.T) {
	sink, err := NewSink(context.Background(), "")
	if err != nil {
		t.Fatalf("NewSink() error = %v", err)
	}
	if sink != nil {
		t.Fatalf("NewSink() = %v, want nil for empty url", sink)
	}
}
