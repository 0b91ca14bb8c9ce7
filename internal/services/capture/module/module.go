// Package module wires capture into the API using modkit
package module

import (
	"context"
	"net/http"

	modkit "secondbrain/internal/modkit"
	"secondbrain/internal/modkit/httpkit"
	"secondbrain/internal/modkit/module"
	"secondbrain/internal/platform/logger"
	capturehttp "secondbrain/internal/services/capture/http"
	"secondbrain/internal/services/capture/pipeline"

	auditmod "secondbrain/internal/services/audit/module"
	capdomain "secondbrain/internal/services/capture/domain"
	"secondbrain/internal/services/capture/filing"
	"secondbrain/internal/services/capture/reconcile"
	capsvc "secondbrain/internal/services/capture/service"
)

// Module implements the modkit.Module interface
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string

	mws       []func(http.Handler) http.Handler
	swaggerOn bool

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)

	svc *capsvc.Service
}

// New constructs a capture module with the provided dependencies and options
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{modkit.WithName("capture"), modkit.WithPrefix("/capture")}, opts...)...)
	o := FromConfig(deps.Cfg)

	recorder := resolveRecorder(b.Ports)

	runner := pipeline.New(o.OpenAI, deps.Docs, logger.Named("pipeline"))
	gateway := filing.New(deps.Docs, o.Threshold, logger.Named("filing"))
	engine := reconcile.New(deps.Docs, logger.Named("reconcile"))
	svc := capsvc.New(runner, deps.Docs, gateway, engine, recorder, capsvc.Config{
		Threshold:       o.Threshold,
		MaxRounds:       o.MaxRounds,
		RunTimeout:      o.RunTimeout,
		LegacyReconcile: o.LegacyReconcile,
	}, logger.Named("capture"))

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		swaggerOn: b.SwaggerOn,
		subrouter: b.Subrouter,
		svc:       svc,
	}

	external := b.Register
	m.register = func(r httpkit.Router) {
		capturehttp.Register(r, m.svc)
		if external != nil {
			external(r)
		}
	}
	return m
}

// noopRecorder keeps the service runnable when audit was never mounted
type noopRecorder struct{}

func (noopRecorder) Reasoning(context.Context, string, []string) {}

func (noopRecorder) Anomaly(context.Context, string, string, string) {}

// resolveRecorder takes the audit port from explicit wiring or the registry
func resolveRecorder(ports any) capdomain.Recorder {
	if p, ok := ports.(auditmod.Ports); ok && p.Recorder != nil {
		return p.Recorder
	}
	if p, ok := module.PortsAs[auditmod.Ports]("audit"); ok && p.Recorder != nil {
		return p.Recorder
	}
	return noopRecorder{}
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

// Ports satisfies modkit.Module; capture exposes no ports
func (m *Module) Ports() any { return nil }
