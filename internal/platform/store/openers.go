package store

import (
	"context"
	"fmt"
	"time"

	chx "secondbrain/internal/platform/store/ch"
	"secondbrain/internal/platform/store/pg"
)

// openPG builds the pool, waits for it to answer, then publishes the adapter
func openPG(ctx context.Context, cfg Config, s *Store) (SQL, error) {
	var tracer pg.QueryTracer
	if cfg.PG.LogSQL {
		tracer = pg.Tracer(s.Log)
	}

	p, err := pg.Open(ctx, pg.Config{
		URL:      cfg.PG.URL,
		MaxConns: cfg.PG.MaxConns,
		SlowMs:   cfg.PG.SlowQueryMs,
	}, tracer, nil)
	if err != nil {
		return nil, err
	}

	// ping with capped exponential backoff; the database may still be starting
	const (
		maxAttempts  = 20
		pingTimeout  = 3 * time.Second
		backoffStart = 150 * time.Millisecond
		backoffCap   = 2 * time.Second
	)

	backoff := backoffStart
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		lastErr = p.Pool.Ping(pingCtx)
		cancel()

		if lastErr == nil {
			a := newPGAdapter(p)
			s.PG = a
			return a, nil
		}
		if ctx.Err() != nil {
			p.Close()
			return nil, ctx.Err()
		}

		time.Sleep(backoff)
		backoff *= 2
		if backoff > backoffCap {
			backoff = backoffCap
		}
	}

	p.Close()
	return nil, fmt.Errorf("postgres ping failed after %d attempts: %w", maxAttempts, lastErr)
}

func openCH(ctx context.Context, cfg Config, _ *Store) (Clickhouse, error) {
	c, err := chx.Open(ctx, chx.Config{URL: cfg.CH.URL, AppName: cfg.AppName})
	if err != nil {
		return nil, err
	}
	return newCHAdapter(c), nil
}
