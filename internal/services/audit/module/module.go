// Package module wires the audit recorder using modkit
package module

import (
	modkit "secondbrain/internal/modkit"
	"secondbrain/internal/modkit/httpkit"
	"secondbrain/internal/modkit/module"
	"secondbrain/internal/services/audit/service"
	capdomain "secondbrain/internal/services/capture/domain"
)

// Ports exposed by the audit module
type Ports struct {
	Recorder capdomain.Recorder
}

// Module implements the modkit.Module interface
// Audit has no HTTP surface; it only exposes the recorder port
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the audit module
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	_ = modkit.Build(append([]modkit.Option{modkit.WithName("audit")}, opts...)...)

	log := deps.Log.With().Str("component", "audit").Logger()
	m := &Module{deps: deps}
	m.ports = Ports{Recorder: service.New(deps.CH, &log)}
	module.Register("audit", m.ports)
	return m
}

// Name satisfies modkit.Module
func (m *Module) Name() string { return "audit" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(r httpkit.Router) {}
