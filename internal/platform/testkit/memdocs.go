package testkit

import (
	"context"
	"sort"
	"sync"
	"time"

	perr "secondbrain/internal/platform/errors"
	"secondbrain/internal/platform/store"
)

// MemDocs is an in-memory store.Docs for service tests
// Containers spring into existence on first use
type MemDocs struct {
	mu   sync.Mutex
	data map[string]map[string]memDoc // container -> "user/id" -> doc
	seq  int64
}

type memDoc struct {
	userID  string
	id      string
	doc     []byte
	created time.Time
	seq     int64
}

// NewMemDocs builds an empty in-memory document store
func NewMemDocs() *MemDocs {
	return &MemDocs{data: map[string]map[string]memDoc{}}
}

var _ store.Docs = (*MemDocs)(nil)

// Container returns the named container, creating it lazily
func (m *MemDocs) Container(name string) (store.Container, error) {
	known := false
	for _, n := range store.ContainerNames() {
		if n == name {
			known = true
			break
		}
	}
	if !known {
		return nil, perr.InvalidArgf("unknown container %q", name)
	}
	return memContainer{m: m, name: name}, nil
}

// Dump returns all raw documents in a container for a user, newest first
func (m *MemDocs) Dump(container, userID string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot(container, userID, "")
}

func (m *MemDocs) snapshot(container, userID, excludeID string) [][]byte {
	var docs []memDoc
	for _, d := range m.data[container] {
		if d.userID != userID || d.id == excludeID {
			continue
		}
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].seq > docs[j].seq })
	out := make([][]byte, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.doc)
	}
	return out
}

type memContainer struct {
	m    *MemDocs
	name string
}

func (c memContainer) key(userID, id string) string { return userID + "/" + id }

func (c memContainer) bucket() map[string]memDoc {
	b, ok := c.m.data[c.name]
	if !ok {
		b = map[string]memDoc{}
		c.m.data[c.name] = b
	}
	return b
}

func (c memContainer) Create(_ context.Context, userID, id string, doc []byte) error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	b := c.bucket()
	k := c.key(userID, id)
	if _, exists := b[k]; exists {
		return perr.Newf(perr.ErrorCodeConflict, "%s/%s already exists", c.name, id)
	}
	c.m.seq++
	b[k] = memDoc{userID: userID, id: id, doc: append([]byte(nil), doc...), created: time.Now(), seq: c.m.seq}
	return nil
}

func (c memContainer) Read(_ context.Context, userID, id string) ([]byte, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	d, ok := c.bucket()[c.key(userID, id)]
	if !ok {
		return nil, perr.NotFoundf("%s/%s not found", c.name, id)
	}
	return append([]byte(nil), d.doc...), nil
}

func (c memContainer) Upsert(_ context.Context, userID, id string, doc []byte) error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	b := c.bucket()
	k := c.key(userID, id)
	if prev, ok := b[k]; ok {
		prev.doc = append([]byte(nil), doc...)
		b[k] = prev
		return nil
	}
	c.m.seq++
	b[k] = memDoc{userID: userID, id: id, doc: append([]byte(nil), doc...), created: time.Now(), seq: c.m.seq}
	return nil
}

func (c memContainer) Delete(_ context.Context, userID, id string) error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	b := c.bucket()
	k := c.key(userID, id)
	if _, ok := b[k]; !ok {
		return perr.NotFoundf("%s/%s not found", c.name, id)
	}
	delete(b, k)
	return nil
}

func (c memContainer) ListRecent(_ context.Context, userID string, limit int) ([][]byte, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	out := c.m.snapshot(c.name, userID, "")
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c memContainer) NewestExcluding(_ context.Context, userID, excludeID string) ([]byte, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	out := c.m.snapshot(c.name, userID, excludeID)
	if len(out) == 0 {
		return nil, perr.NotFoundf("%s has no other documents", c.name)
	}
	return out[0], nil
}
