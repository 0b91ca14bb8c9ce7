// Package repo binds the inbox to the document store
package repo

import (
	"context"

	perr "secondbrain/internal/platform/errors"
	"secondbrain/internal/platform/store"

	"secondbrain/internal/modkit/repokit"
	capdomain "secondbrain/internal/services/capture/domain"
)

// Inbox is the storage surface the inbox service needs
type Inbox interface {
	List(ctx context.Context, userID string, limit int) ([][]byte, error)
	Read(ctx context.Context, userID, id string) ([]byte, error)
	Delete(ctx context.Context, userID, id string) error
	DeleteBucketRecord(ctx context.Context, userID string, bucket capdomain.Bucket, recordID string) error
}

// NewDocs returns a Binder that adapts a document store to the Inbox surface
func NewDocs() repokit.Binder[Inbox] {
	return repokit.BindFunc[Inbox](func(d repokit.Docs) Inbox {
		return docsRepo{docs: d}
	})
}

type docsRepo struct{ docs repokit.Docs }

func (r docsRepo) inbox() (store.Container, error) {
	return r.docs.Container(store.ContainerInbox)
}

func (r docsRepo) List(ctx context.Context, userID string, limit int) ([][]byte, error) {
	c, err := r.inbox()
	if err != nil {
		return nil, err
	}
	return c.ListRecent(ctx, userID, limit)
}

func (r docsRepo) Read(ctx context.Context, userID, id string) ([]byte, error) {
	c, err := r.inbox()
	if err != nil {
		return nil, err
	}
	return c.Read(ctx, userID, id)
}

func (r docsRepo) Delete(ctx context.Context, userID, id string) error {
	c, err := r.inbox()
	if err != nil {
		return err
	}
	return c.Delete(ctx, userID, id)
}

func (r docsRepo) DeleteBucketRecord(ctx context.Context, userID string, bucket capdomain.Bucket, recordID string) error {
	name := bucket.Container()
	if name == "" {
		return perr.InvalidArgf("unknown bucket %q", string(bucket))
	}
	c, err := r.docs.Container(name)
	if err != nil {
		return err
	}
	return c.Delete(ctx, userID, recordID)
}
