package http

import (
	"encoding/json"
	stdhttp "net/http"

	perr "secondbrain/internal/platform/errors"
)

// SSE is a server-sent-events writer over a flushable ResponseWriter
// Frames carry only a data field, one JSON document per frame
type SSE struct {
	w stdhttp.ResponseWriter
	f stdhttp.Flusher
}

// OpenSSE sets stream headers and returns a writer, or an error when the
// underlying ResponseWriter cannot flush
func OpenSSE(w stdhttp.ResponseWriter) (*SSE, error) {
	f, ok := w.(stdhttp.Flusher)
	if !ok {
		return nil, perr.Newf(perr.ErrorCodeUnavailable, "response writer does not support streaming")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(stdhttp.StatusOK)
	f.Flush()
	return &SSE{w: w, f: f}, nil
}

// Send marshals v and writes it as a single data frame, flushing immediately
func (s *SSE) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeJSON, "marshal sse frame")
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}
