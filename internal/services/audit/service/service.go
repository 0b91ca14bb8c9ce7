// Package service records classification reasoning and anomalies to ClickHouse
package service

import (
	"context"
	"time"

	"secondbrain/internal/platform/logger"
	"secondbrain/internal/platform/store"
)

// Table names in the audit database
const (
	TableReasoning = "capture_reasoning"
	TableAnomalies = "capture_anomalies"
)

// Recorder writes audit rows, degrading to logs when ClickHouse is absent
// Sinks must never fail a run, so every error path here is swallowed
type Recorder struct {
	ch  store.Clickhouse
	log *logger.Logger
}

// New builds a recorder; ch may be nil
func New(ch store.Clickhouse, log *logger.Logger) *Recorder {
	if log == nil {
		log = logger.Named("audit")
	}
	return &Recorder{ch: ch, log: log}
}

// Reasoning records the buffered classifier reasoning for one run
func (r *Recorder) Reasoning(ctx context.Context, runID string, chunks []string) {
	if len(chunks) == 0 {
		return
	}
	if r.ch == nil {
		r.log.Debug().Str("run_id", runID).Int("chunks", len(chunks)).Msg("reasoning recorded (log only)")
		return
	}
	now := time.Now().UTC()
	rows := make([][]any, 0, len(chunks))
	for i, c := range chunks {
		rows = append(rows, []any{runID, int32(i), c, now})
	}
	if err := r.ch.Insert(ctx, TableReasoning, rows); err != nil {
		r.log.Warn().Err(err).Str("run_id", runID).Msg("reasoning insert failed")
	}
}

// Anomaly records one defensive-path activation
func (r *Recorder) Anomaly(ctx context.Context, runID, kind, detail string) {
	if r.ch == nil {
		r.log.Warn().Str("run_id", runID).Str("kind", kind).Str("detail", detail).Msg("pipeline anomaly")
		return
	}
	rows := [][]any{{runID, kind, detail, time.Now().UTC()}}
	if err := r.ch.Insert(ctx, TableAnomalies, rows); err != nil {
		r.log.Warn().Err(err).Str("run_id", runID).Str("kind", kind).Msg("anomaly insert failed")
	}
}
