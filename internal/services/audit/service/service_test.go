package service_test

import (
	"context"
	"errors"
	"testing"

	"secondbrain/internal/platform/store"
	"secondbrain/internal/services/audit/service"
)

type fakeCH struct {
	tables []string
	rows   [][][]any
	err    error
}

func (f *fakeCH) Insert(_ context.Context, table string, data any) error {
	f.tables = append(f.tables, table)
	if rows, ok := data.([][]any); ok {
		f.rows = append(f.rows, rows)
	}
	return f.err
}

func (f *fakeCH) Query(context.Context, string, ...any) (store.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeCH) Close() error { return nil }

func TestReasoningRowsCarrySequence(t *testing.T) {
	ch := &fakeCH{}
	r := service.New(ch, nil)

	r.Reasoning(context.Background(), "run-1", []string{"first", "second"})

	if len(ch.tables) != 1 || ch.tables[0] != service.TableReasoning {
		t.Fatalf("wrong table: %v", ch.tables)
	}
	rows := ch.rows[0]
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "run-1" || rows[0][1] != int32(0) || rows[0][2] != "first" {
		t.Fatalf("row 0 wrong: %v", rows[0])
	}
	if rows[1][1] != int32(1) || rows[1][2] != "second" {
		t.Fatalf("row 1 wrong: %v", rows[1])
	}
}

func TestEmptyReasoningIsNotWritten(t *testing.T) {
	ch := &fakeCH{}
	service.New(ch, nil).Reasoning(context.Background(), "run-1", nil)
	if len(ch.tables) != 0 {
		t.Fatalf("empty reasoning should not insert")
	}
}

func TestAnomalyRecorded(t *testing.T) {
	ch := &fakeCH{}
	service.New(ch, nil).Anomaly(context.Background(), "run-1", "zero_confidence", "substituted 0.75")
	if len(ch.tables) != 1 || ch.tables[0] != service.TableAnomalies {
		t.Fatalf("wrong table: %v", ch.tables)
	}
	row := ch.rows[0][0]
	if row[0] != "run-1" || row[1] != "zero_confidence" {
		t.Fatalf("row wrong: %v", row)
	}
}

func TestInsertFailureIsSwallowed(t *testing.T) {
	ch := &fakeCH{err: errors.New("ch down")}
	r := service.New(ch, nil)
	r.Reasoning(context.Background(), "run-1", []string{"x"})
	r.Anomaly(context.Background(), "run-1", "k", "d")
}

func TestNilClickhouseDegradesToLogs(t *testing.T) {
	r := service.New(nil, nil)
	r.Reasoning(context.Background(), "run-1", []string{"x"})
	r.Anomaly(context.Background(), "run-1", "k", "d")
}
