package modkit

import (
	phttp "secondbrain/internal/platform/net/http"
)

// Module is what the API composition root works with: something that can
// mount routes and optionally expose ports for cross wiring
type Module interface {
	// MountRoutes attaches the module's HTTP endpoints to the router seam
	MountRoutes(r phttp.Router)

	// Ports returns the module's port set for cross wiring, nil when none
	Ports() any

	// Name identifies the module in logs and the port registry
	Name() string
}
