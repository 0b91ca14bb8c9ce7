// @title         Second Brain API
// @version       0.1.0
// @description   Streaming capture classification and inbox endpoints

package main

import (
	"context"

	"secondbrain/internal/platform/config"
	"secondbrain/internal/platform/logger"
	phttp "secondbrain/internal/platform/net/http"
	"secondbrain/internal/platform/store"

	"secondbrain/internal/modkit/repokit"
	"secondbrain/internal/services/api"
)

func main() {
	// service-scoped config for HTTP etc (CORE_API_*)
	root := config.New()
	apiCfg := root.Prefix("CORE_API_")

	pgCfg := root.Prefix("SERVICE_PGSQL_")      // pgCfg lives under SERVICE_PGSQL_*
	chCfg := root.Prefix("SERVICE_CLICKHOUSE_") // chCfg lives under SERVICE_CLICKHOUSE_*

	// bring up logging early
	logger.Init(logger.FromEnv())
	l := logger.Get()

	ctx := context.Background()

	// open the platform store (postgres + clickhouse)
	st, err := store.Open(
		ctx,
		store.Config{
			AppName: "secondbrain",
			PG: store.PGConfig{
				Enabled:     true,
				URL:         pgCfg.MustString("DBURL"),
				MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
				SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
				LogSQL:      pgCfg.MayBool("LOG_SQL", true),
			},
			CH: store.CHConfig{
				Enabled: chCfg.MayBool("ENABLED", false),
				URL:     chCfg.MayString("DBURL", ""),
			},
		},
		store.WithLogger(*l),
	)
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(ctx); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	repokit.MustGuard(ctx, st)
	if err := store.EnsureSchema(ctx, st.PG); err != nil {
		l.Panic().Err(err).Msg("schema setup failed")
	}

	// http server (reads CORE_API_PORT / CORE_API_ADDR)
	srv := phttp.NewServer(apiCfg)

	api.Mount(
		srv.Router(),
		api.Options{
			Config:        apiCfg,
			Root:          root,
			Store:         st,
			Docs:          store.NewDocs(st.PG),
			Logger:        l,
			EnableSwagger: apiCfg.MayBool("SWAGGER", true),
		},
	)

	if err := srv.Run(ctx); err != nil {
		l.Panic().Err(err).Msg("http server stopped")
	}
}
