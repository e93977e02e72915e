package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/existflow/duetask/internal/remote"
)

// DocStore is the Postgres implementation of remote.Store. Every document
// is one row; the fields live in a JSONB column so equality filters become
// containment queries.
type DocStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewDocStore returns a store over db. now defaults to time.Now.
func NewDocStore(db *sql.DB, now func() time.Time) *DocStore {
	if now == nil {
		now = time.Now
	}
	return &DocStore{db: db, now: now}
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// docQueries runs document statements against a connection or a transaction
type docQueries struct {
	db  dbtx
	now time.Time
}

func (s *DocStore) queries(db dbtx) docQueries {
	return docQueries{db: db, now: s.now()}
}

func (s *DocStore) Get(ctx context.Context, path string) (remote.Document, error) {
	if err := remote.ValidateDocPath(path); err != nil {
		return remote.Document{}, err
	}

	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM documents WHERE path = $1`, path).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return remote.Document{}, fmt.Errorf("%w: %s", remote.ErrNotFound, path)
	}
	if err != nil {
		return remote.Document{}, err
	}
	return decodeRow(path, raw)
}

func (s *DocStore) List(ctx context.Context, collection string, filters ...remote.Filter) ([]remote.Document, error) {
	if err := remote.ValidateCollectionPath(collection); err != nil {
		return nil, err
	}

	match := remote.Data{}
	for _, f := range filters {
		match[f.Field] = f.Value
	}
	match, err := remote.Normalize(match, s.now())
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(match)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT path, data FROM documents
		WHERE collection = $1 AND data @> $2::jsonb
		ORDER BY path`,
		collection, string(raw),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []remote.Document{}
	for rows.Next() {
		var path string
		var data []byte
		if err := rows.Scan(&path, &data); err != nil {
			return nil, err
		}
		doc, err := decodeRow(path, data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *DocStore) Create(ctx context.Context, collection string, data remote.Data) (string, error) {
	if err := remote.ValidateCollectionPath(collection); err != nil {
		return "", err
	}
	id := remote.NewID()
	if err := s.queries(s.db).set(ctx, remote.Doc(collection, id), data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *DocStore) Set(ctx context.Context, path string, data remote.Data) error {
	return s.Commit(ctx, remote.NewBatch().Set(path, data))
}

func (s *DocStore) Update(ctx context.Context, path string, data remote.Data) error {
	return s.Commit(ctx, remote.NewBatch().Update(path, data))
}

func (s *DocStore) Delete(ctx context.Context, path string) error {
	return s.Commit(ctx, remote.NewBatch().Delete(path))
}

// Commit applies the batch in one transaction. Later ops see the writes of
// earlier ones.
func (s *DocStore) Commit(ctx context.Context, b *remote.Batch) (err error) {
	if err := b.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	q := s.queries(tx)
	for i, op := range b.Ops {
		switch op.Kind {
		case remote.OpSet:
			err = q.set(ctx, op.Path, op.Data)
		case remote.OpUpdate:
			err = q.update(ctx, op.Path, op.Data)
		case remote.OpDelete:
			_, err = tx.ExecContext(ctx, `DELETE FROM documents WHERE path = $1`, op.Path)
		}
		if err != nil {
			return fmt.Errorf("op %d (%s %s): %w", i, op.Kind, op.Path, err)
		}
	}
	return tx.Commit()
}

func (q docQueries) set(ctx context.Context, path string, data remote.Data) error {
	collection, id, err := remote.SplitDoc(path)
	if err != nil {
		return err
	}
	raw, err := q.encode(data)
	if err != nil {
		return err
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO documents (path, collection, doc_id, data, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)
		ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		path, collection, id, raw, q.now,
	)
	return err
}

func (q docQueries) update(ctx context.Context, path string, data remote.Data) error {
	raw, err := q.encode(data)
	if err != nil {
		return err
	}

	res, err := q.db.ExecContext(ctx, `
		UPDATE documents SET data = data || $2::jsonb, updated_at = $3
		WHERE path = $1`,
		path, raw, q.now,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", remote.ErrNotFound, path)
	}
	return nil
}

// encode normalizes data and returns it as a JSON string. lib/pq sends
// []byte parameters as bytea, which does not cast to jsonb.
func (q docQueries) encode(data remote.Data) (string, error) {
	norm, err := remote.Normalize(data, q.now)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(norm)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeRow(path string, raw []byte) (remote.Document, error) {
	data := remote.Data{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return remote.Document{}, fmt.Errorf("corrupt document %s: %w", path, err)
	}
	_, id, err := remote.SplitDoc(path)
	if err != nil {
		return remote.Document{}, err
	}
	return remote.Document{ID: id, Path: path, Data: data}, nil
}
