package middleware

import (
	"crypto/subtle"
	"net/http"

	perr "secondbrain/internal/platform/errors"
	pnet "secondbrain/internal/platform/net"
)

// APIKeyOptions configures the shared-key gate for the mobile client
type APIKeyOptions struct {
	// Key is the expected X-API-Key value; empty disables the gate
	Key string

	// UserID is attached to the request context once the key matches
	UserID string
}

// APIKey rejects requests whose X-API-Key header does not match the configured key
// When no key is configured the middleware is a pass-through
func APIKey(opt APIKeyOptions, write func(w http.ResponseWriter, status int, body any)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opt.Key == "" {
				next.ServeHTTP(w, r.WithContext(pnet.WithUser(r.Context(), opt.UserID)))
				return
			}
			got := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(opt.Key)) != 1 {
				status, body := pnet.Error(perr.Unauthorizedf("invalid api key"), pnet.RequestID(r.Context()))
				write(w, status, body)
				return
			}
			next.ServeHTTP(w, r.WithContext(pnet.WithUser(r.Context(), opt.UserID)))
		})
	}
}
