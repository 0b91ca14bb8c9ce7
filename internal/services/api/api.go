// Package api composes the HTTP API for the application
package api

import (
	"compress/flate"
	"time"

	"secondbrain/internal/platform/config"
	"secondbrain/internal/platform/logger"
	phttp "secondbrain/internal/platform/net/http"
	"secondbrain/internal/platform/net/middleware"
	"secondbrain/internal/platform/store"

	"secondbrain/internal/modkit"
	"secondbrain/internal/modkit/httpkit"
	"secondbrain/internal/modkit/module"
	"secondbrain/internal/modkit/swaggerkit"

	auditmod "secondbrain/internal/services/audit/module"
	capturemod "secondbrain/internal/services/capture/module"
	inboxmod "secondbrain/internal/services/inbox/module"
)

// Options are the API options
// Config is the CORE_API_ scoped view; Root is the unscoped config modules
// read their own prefixes from
type Options struct {
	Config        config.Conf
	Root          config.Conf
	Store         *store.Store
	Docs          store.Docs
	Logger        *logger.Logger
	EnableSwagger bool
}

// Mount mounts the API service onto the given router
// The capture module streams SSE, so the shared stack stays free of response
// compression and request timeouts; inbox adds both back for itself
func Mount(r phttp.Router, opt Options) {
	deps := modkit.Deps{
		Log:  *opt.Logger,
		Cfg:  opt.Root,
		PG:   opt.Store.PG,
		CH:   opt.Store.CH,
		Docs: opt.Docs,
	}

	// audit first so its recorder port is registered before capture resolves it
	mods := []modkit.Module{
		auditmod.New(deps),
		capturemod.New(deps),
		inboxmod.New(deps, modkit.WithMiddlewares(
			middleware.Compress(flate.BestSpeed),
			middleware.Timeout(30*time.Second),
		)),
	}

	// attaches the partition user either way; the key gate only engages
	// when one is configured
	stack := append(httpkit.StreamStack(), httpkit.APIKey(middleware.APIKeyOptions{
		Key:    opt.Config.MayString("KEY", ""),
		UserID: opt.Config.MayString("USER", "will"),
	}))

	r.Use(middleware.Heartbeat("/health"))
	swaggerkit.Mount(r, opt.EnableSwagger)

	httpkit.MountUnder(r, "/api", stack, func(api httpkit.Router) {
		for _, m := range mods {
			module.Register(m.Name(), m.Ports())
			m.MountRoutes(api)
		}
	})
}
