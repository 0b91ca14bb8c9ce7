package http_test

import (
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	phttp "secondbrain/internal/platform/net/http"
)

func TestOpenSSESetsStreamHeaders(t *testing.T) {
	rec := httptest.NewRecorder()

	s, err := phttp.OpenSSE(rec)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Fatalf("cache control %q", cc)
	}

	if err := s.Send(map[string]string{"type": "STEP_START", "step": "routing"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "data: {") {
		t.Fatalf("frame should start with data prefix, got %q", body)
	}
	if !strings.HasSuffix(body, "\n\n") {
		t.Fatalf("frame should end with blank line, got %q", body)
	}
}

type noFlush struct{ stdhttp.ResponseWriter }

func TestOpenSSERequiresFlusher(t *testing.T) {
	rec := httptest.NewRecorder()
	if _, err := phttp.OpenSSE(noFlush{rec}); err == nil {
		t.Fatalf("expected error for non-flushable writer")
	}
}

func TestSendWritesOneFramePerCall(t *testing.T) {
	rec := httptest.NewRecorder()
	s, err := phttp.OpenSSE(rec)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = s.Send(map[string]string{"type": "STEP_END", "step": "routing"})
	_ = s.Send(map[string]string{"type": "COMPLETE"})

	frames := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n\n"), "\n\n")
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d: %q", len(frames), rec.Body.String())
	}
	for _, f := range frames {
		if !strings.HasPrefix(f, "data: ") {
			t.Fatalf("frame missing data prefix: %q", f)
		}
	}
}
