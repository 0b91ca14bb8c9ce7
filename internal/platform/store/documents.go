package store

import (
	"context"

	perr "secondbrain/internal/platform/errors"
)

// Container names for the document layer
// One jsonb table per container, partitioned by user id
const (
	ContainerInbox         = "inbox"
	ContainerPeople        = "people"
	ContainerProjects      = "projects"
	ContainerIdeas         = "ideas"
	ContainerAdmin         = "admin"
	ContainerConversations = "conversations"
)

// containerTables is the allowlist of table names the document layer touches
var containerTables = map[string]string{
	ContainerInbox:         "doc_inbox",
	ContainerPeople:        "doc_people",
	ContainerProjects:      "doc_projects",
	ContainerIdeas:         "doc_ideas",
	ContainerAdmin:         "doc_admin",
	ContainerConversations: "doc_conversations",
}

// ContainerNames returns every known container name
func ContainerNames() []string {
	return []string{
		ContainerInbox, ContainerPeople, ContainerProjects,
		ContainerIdeas, ContainerAdmin, ContainerConversations,
	}
}

// Docs is the seam services use for document containers
type Docs interface {
	Container(name string) (Container, error)
}

// Container is one jsonb-backed document collection
// Documents are opaque JSON; callers own marshal/unmarshal
type Container interface {
	Create(ctx context.Context, userID, id string, doc []byte) error
	Read(ctx context.Context, userID, id string) ([]byte, error)
	Upsert(ctx context.Context, userID, id string, doc []byte) error
	Delete(ctx context.Context, userID, id string) error
	ListRecent(ctx context.Context, userID string, limit int) ([][]byte, error)
	NewestExcluding(ctx context.Context, userID, excludeID string) ([]byte, error)
}

// NewDocs builds the pg-backed document layer over a RowQuerier
func NewDocs(q RowQuerier) Docs { return docStore{q: q} }

type docStore struct{ q RowQuerier }

func (d docStore) Container(name string) (Container, error) {
	table, ok := containerTables[name]
	if !ok {
		return nil, perr.InvalidArgf("unknown container %q", name)
	}
	return pgContainer{q: d.q, table: table}, nil
}

// EnsureSchema creates the container tables when missing
func EnsureSchema(ctx context.Context, q RowQuerier) error {
	for _, table := range containerTables {
		ddl := `
			CREATE TABLE IF NOT EXISTS ` + table + ` (
				id         text NOT NULL,
				user_id    text NOT NULL,
				doc        jsonb NOT NULL,
				created_at timestamptz NOT NULL DEFAULT now(),
				updated_at timestamptz NOT NULL DEFAULT now(),
				PRIMARY KEY (user_id, id)
			)`
		if _, err := q.Exec(ctx, ddl); err != nil {
			return perr.Wrapf(err, perr.ErrorCodeStorage, "ensure table %s", table)
		}
		idx := `CREATE INDEX IF NOT EXISTS ` + table + `_recent_idx ON ` + table + ` (user_id, created_at DESC)`
		if _, err := q.Exec(ctx, idx); err != nil {
			return perr.Wrapf(err, perr.ErrorCodeStorage, "ensure index on %s", table)
		}
	}
	return nil
}

type pgContainer struct {
	q     RowQuerier
	table string
}

func (c pgContainer) Create(ctx context.Context, userID, id string, doc []byte) error {
	_, err := c.q.Exec(ctx,
		`INSERT INTO `+c.table+` (id, user_id, doc) VALUES ($1, $2, $3)`,
		id, userID, doc)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStorage, "create %s/%s", c.table, id)
	}
	return nil
}

func (c pgContainer) Read(ctx context.Context, userID, id string) ([]byte, error) {
	var doc []byte
	err := c.q.QueryRow(ctx,
		`SELECT doc FROM `+c.table+` WHERE user_id = $1 AND id = $2`,
		userID, id).Scan(&doc)
	if err != nil {
		if isNoRows(err) {
			return nil, perr.NotFoundf("%s/%s not found", c.table, id)
		}
		return nil, perr.Wrapf(err, perr.ErrorCodeStorage, "read %s/%s", c.table, id)
	}
	return doc, nil
}

func (c pgContainer) Upsert(ctx context.Context, userID, id string, doc []byte) error {
	_, err := c.q.Exec(ctx,
		`INSERT INTO `+c.table+` (id, user_id, doc) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		id, userID, doc)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStorage, "upsert %s/%s", c.table, id)
	}
	return nil
}

func (c pgContainer) Delete(ctx context.Context, userID, id string) error {
	ct, err := c.q.Exec(ctx,
		`DELETE FROM `+c.table+` WHERE user_id = $1 AND id = $2`,
		userID, id)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStorage, "delete %s/%s", c.table, id)
	}
	if ct.RowsAffected() == 0 {
		return perr.NotFoundf("%s/%s not found", c.table, id)
	}
	return nil
}

func (c pgContainer) ListRecent(ctx context.Context, userID string, limit int) ([][]byte, error) {
	if limit <= 0 {
		limit = 50
	}
	rs, err := c.q.Query(ctx,
		`SELECT doc FROM `+c.table+` WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeStorage, "list %s", c.table)
	}
	defer rs.Close()

	var out [][]byte
	for rs.Next() {
		var doc []byte
		if err := rs.Scan(&doc); err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeStorage, "scan %s", c.table)
		}
		out = append(out, doc)
	}
	if err := rs.Err(); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeStorage, "iterate %s", c.table)
	}
	return out, nil
}

func (c pgContainer) NewestExcluding(ctx context.Context, userID, excludeID string) ([]byte, error) {
	var doc []byte
	err := c.q.QueryRow(ctx,
		`SELECT doc FROM `+c.table+` WHERE user_id = $1 AND id <> $2 ORDER BY created_at DESC LIMIT 1`,
		userID, excludeID).Scan(&doc)
	if err != nil {
		if isNoRows(err) {
			return nil, perr.NotFoundf("%s has no other documents", c.table)
		}
		return nil, perr.Wrapf(err, perr.ErrorCodeStorage, "newest %s", c.table)
	}
	return doc, nil
}
