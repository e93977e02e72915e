package remote

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Fault is consulted before every Memory operation. Returning an error
// aborts the operation with that error. For Commit it is called once per
// batched op with the op's kind, and once with "commit".
type Fault func(op, path string) error

// Memory is an in-process Store. It backs the engine tests and can serve as
// an offline stand-in for the server.
type Memory struct {
	mu     sync.Mutex
	docs   map[string]Data // full path -> normalized data
	now    func() time.Time
	fault  Fault
	writes int
}

// NewMemory returns an empty store. now defaults to time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{docs: make(map[string]Data), now: now}
}

// SetFault installs (or with nil removes) a fault hook
func (m *Memory) SetFault(f Fault) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = f
}

// FailOn returns a Fault failing every op of the given kind whose path
// contains substr
func FailOn(kind, substr string, err error) Fault {
	return func(op, path string) error {
		if op == kind && strings.Contains(path, substr) {
			return err
		}
		return nil
	}
}

// Writes returns the number of applied writes, counting each batched op
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Len returns the number of stored documents
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

func (m *Memory) check(op, path string) error {
	if m.fault == nil {
		return nil
	}
	return m.fault(op, path)
}

func (m *Memory) Get(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if err := ValidateDocPath(path); err != nil {
		return Document{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("get", path); err != nil {
		return Document{}, err
	}

	d, ok := m.docs[path]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return m.document(path, d)
}

func (m *Memory) List(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateCollectionPath(collection); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("list", collection); err != nil {
		return nil, err
	}

	prefix := collection + "/"
	var out []Document
	for path, d := range m.docs {
		if !strings.HasPrefix(path, prefix) || strings.Contains(path[len(prefix):], "/") {
			continue
		}
		if !Matches(d, filters) {
			continue
		}
		doc, err := m.document(path, d)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Create(ctx context.Context, collection string, data Data) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := ValidateCollectionPath(collection); err != nil {
		return "", err
	}

	id := NewID()
	path := Doc(collection, id)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("create", path); err != nil {
		return "", err
	}

	norm, err := Normalize(data, m.now())
	if err != nil {
		return "", err
	}
	m.docs[path] = norm
	m.writes++
	return id, nil
}

func (m *Memory) Set(ctx context.Context, path string, data Data) error {
	return m.Commit(ctx, NewBatch().Set(path, data))
}

func (m *Memory) Update(ctx context.Context, path string, data Data) error {
	return m.Commit(ctx, NewBatch().Update(path, data))
}

func (m *Memory) Delete(ctx context.Context, path string) error {
	return m.Commit(ctx, NewBatch().Delete(path))
}

// Commit stages every op against a view of the store and only publishes
// the result when all of them succeed
func (m *Memory) Commit(ctx context.Context, b *Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(b.Ops) > 1 {
		if err := m.check("commit", ""); err != nil {
			return err
		}
	}

	now := m.now()
	staged := make(map[string]Data) // nil value marks a delete
	lookup := func(path string) (Data, bool) {
		if d, ok := staged[path]; ok {
			return d, d != nil
		}
		d, ok := m.docs[path]
		return d, ok
	}

	for _, op := range b.Ops {
		if err := m.check(string(op.Kind), op.Path); err != nil {
			return err
		}
		switch op.Kind {
		case OpSet:
			norm, err := Normalize(op.Data, now)
			if err != nil {
				return err
			}
			staged[op.Path] = norm
		case OpUpdate:
			cur, ok := lookup(op.Path)
			if !ok {
				return fmt.Errorf("%w: %s", ErrNotFound, op.Path)
			}
			norm, err := Normalize(op.Data, now)
			if err != nil {
				return err
			}
			staged[op.Path] = Merge(cur, norm)
		case OpDelete:
			staged[op.Path] = nil
		}
	}

	for path, d := range staged {
		if d == nil {
			delete(m.docs, path)
		} else {
			m.docs[path] = d
		}
	}
	m.writes += len(b.Ops)
	return nil
}

func (m *Memory) document(path string, d Data) (Document, error) {
	// Hand out a copy so callers cannot mutate stored state.
	cp, err := Normalize(d, m.now())
	if err != nil {
		return Document{}, err
	}
	i := strings.LastIndex(path, "/")
	return Document{ID: path[i+1:], Path: path, Data: cp}, nil
}
