//go:build integration_pg
// +build integration_pg

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	perr "secondbrain/internal/platform/errors"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) (dsn string, stop func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "postgres",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections"),
		).WithDeadline(2 * time.Minute),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		cancel()
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get container host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get mapped port: %v", err)
	}

	dsn = fmt.Sprintf("postgres://postgres:postgres@%s:%s/postgres?sslmode=disable", host, mapped.Port())
	stop = func() {
		_ = c.Terminate(context.Background())
		cancel()
	}
	return dsn, stop
}

func TestDocuments_CRUD_Integration(t *testing.T) {
	dsn, stop := startPostgres(t)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	st, err := Open(ctx, Config{
		AppName: "secondbrain-it",
		PG:      PGConfig{Enabled: true, URL: dsn},
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = st.Close(ctx) }()

	if err := EnsureSchema(ctx, st.PG); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	docs := NewDocs(st.PG)
	inbox, err := docs.Container(ContainerInbox)
	if err != nil {
		t.Fatalf("container: %v", err)
	}

	const user = "will"

	if err := inbox.Create(ctx, user, "c1", []byte(`{"id":"c1","text":"call mom"}`)); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := inbox.Read(ctx, user, "c1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) == 0 {
		t.Fatalf("read returned empty doc")
	}

	// upsert replaces the document in place
	if err := inbox.Upsert(ctx, user, "c1", []byte(`{"id":"c1","text":"call mom tonight"}`)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// newest excluding skips the excluded id
	if err := inbox.Create(ctx, user, "c2", []byte(`{"id":"c2","text":"fix the gate"}`)); err != nil {
		t.Fatalf("create c2: %v", err)
	}
	newest, err := inbox.NewestExcluding(ctx, user, "c2")
	if err != nil {
		t.Fatalf("newest excluding: %v", err)
	}
	if string(newest) == "" {
		t.Fatalf("expected a document")
	}

	list, err := inbox.ListRecent(ctx, user, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(list))
	}

	if err := inbox.Delete(ctx, user, "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := inbox.Read(ctx, user, "c1"); !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}

	// other users never see the partition
	if _, err := inbox.Read(ctx, "someone-else", "c2"); !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("expected cross-user read to miss, got %v", err)
	}
}
