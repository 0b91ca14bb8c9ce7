package httpkit

import (
	"net/http"

	phttp "secondbrain/internal/platform/net/http"
)

// GetJSON mounts a pure JSON handler under GET
func GetJSON[T any](r Router, path string, h func(*http.Request, T) (any, error)) {
	r.Get(path, phttp.JSONHandler(h))
}

// PostJSON mounts a pure JSON handler under POST
// The body is bound and validated before h runs
func PostJSON[T any](r Router, path string, h func(*http.Request, T) (any, error)) {
	r.Post(path, phttp.JSONHandler(h))
}

// Get mounts a body-less handler under GET and wraps the result in the envelope
func Get(r Router, path string, h func(*http.Request) (any, error)) {
	r.Get(path, Call(h))
}

// PostStream mounts a streaming POST handler that owns the ResponseWriter
// used for SSE endpoints where the envelope helpers don't apply
func PostStream(r Router, path string, h Handler) {
	r.Post(path, h)
}
