// Package module wires the inbox into the API using modkit
package module

import (
	"net/http"

	modkit "secondbrain/internal/modkit"
	"secondbrain/internal/modkit/httpkit"
	"secondbrain/internal/modkit/repokit"
	"secondbrain/internal/platform/logger"
	inboxhttp "secondbrain/internal/services/inbox/http"
	inboxrepo "secondbrain/internal/services/inbox/repo"
	inboxsvc "secondbrain/internal/services/inbox/service"
)

// Module implements the modkit.Module interface
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string

	mws       []func(http.Handler) http.Handler
	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)

	svc *inboxsvc.Service
}

// New constructs an inbox module with the provided dependencies and options
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{modkit.WithName("inbox"), modkit.WithPrefix("/inbox")}, opts...)...)

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		subrouter: b.Subrouter,
		svc:       inboxsvc.New(repokit.MustBind(inboxrepo.NewDocs(), deps.Docs), logger.Named("inbox")),
	}

	external := b.Register
	m.register = func(r httpkit.Router) {
		inboxhttp.Register(r, m.svc)
		if external != nil {
			external(r)
		}
	}
	return m
}

// MountRoutes implements the modkit.Module interface
func (m *Module) MountRoutes(r httpkit.Router) {
	r.Route(m.prefix, func(rr httpkit.Router) {
		for _, mw := range m.mws {
			rr.Use(mw)
		}
		if m.subrouter != nil {
			rr = m.subrouter(rr)
		}
		if m.register != nil {
			m.register(rr)
		}
	})
}

// Name returns the module name
func (m *Module) Name() string { return m.name }

// Ports satisfies modkit.Module; inbox exposes no ports
func (m *Module) Ports() any { return nil }
