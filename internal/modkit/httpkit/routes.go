package httpkit

import "net/http"

// MountUnder nests module routers under a shared prefix, applying the
// middleware stack once at the prefix boundary
func MountUnder(r Router, prefix string, stack []func(http.Handler) http.Handler, mount func(Router)) {
	r.Route(prefix, func(api Router) {
		if len(stack) > 0 {
			api.Use(stack...)
		}
		mount(api)
	})
}
