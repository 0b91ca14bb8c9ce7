package httpkit

import (
	"compress/flate"
	"net/http"
	"time"

	phttp "secondbrain/internal/platform/net/http"
	"secondbrain/internal/platform/net/middleware"
)

// CommonStack returns a baseline per module middleware slice
// compose with the api key middleware as needed in main
func CommonStack() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		// tracing / correlation
		middleware.RequestID(),
		middleware.RealIP(),

		// safety
		middleware.RecoverJSON,

		// cache / freshness
		middleware.NoCache(),

		// observability
		middleware.AccessLogZerolog(middleware.AccessLogOptions{Slow: 500 * time.Millisecond}),

		// cross-origin (tweak config in main if needed)
		middleware.CORS(middleware.CORSOptions{}),
		middleware.Compress(flate.BestSpeed),
		middleware.Heartbeat("/health"),
		middleware.RedirectSlashes(),
		middleware.StripSlashes(),
		middleware.Timeout(30 * time.Second),
	}
}

// StreamStack is CommonStack minus compression and the request timeout
// SSE responses must not be buffered or cut off mid stream
func StreamStack() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		middleware.RequestID(),
		middleware.RealIP(),
		middleware.RecoverJSON,
		middleware.NoCache(),
		middleware.AccessLogZerolog(middleware.AccessLogOptions{}),
		middleware.CORS(middleware.CORSOptions{}),
		middleware.RedirectSlashes(),
		middleware.StripSlashes(),
	}
}

// APIKey wires the api key middleware to the platform JSON writer
func APIKey(opt middleware.APIKeyOptions) func(http.Handler) http.Handler {
	// middleware expects write func(w http.ResponseWriter, status int, body any)
	// use phttp.JSON which matches that signature
	return middleware.APIKey(opt, phttp.JSON)
}
