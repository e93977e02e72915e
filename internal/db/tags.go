package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/existflow/duetask/internal/model"
)

const tagColumns = `id, remote_id, owner_id, name, color_r, color_g, color_b, color_a,
    icon, synced, revision, remote_digest, created_at, updated_at`

func scanTag(row scanner) (model.Tag, error) {
	var (
		t                    model.Tag
		remoteID             sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&t.ID, &remoteID, &t.OwnerID, &t.Name,
		&t.Color.R, &t.Color.G, &t.Color.B, &t.Color.A,
		&t.Icon, &t.Synced, &t.Revision, &t.RemoteDigest, &createdAt, &updatedAt)
	if err != nil {
		return model.Tag{}, err
	}
	t.RemoteID = remoteID.String
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.Tag{}, fmt.Errorf("tag %s created_at: %w", t.ID, err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.Tag{}, fmt.Errorf("tag %s updated_at: %w", t.ID, err)
	}
	return t, nil
}

// CreateTag inserts a new tag. A duplicate (owner, name) pair fails with the
// driver's constraint error.
func (q *Queries) CreateTag(ctx context.Context, t model.Tag) error {
	c := t.Color.Clamp()
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO tags (`+tagColumns+`) VALUES (`+placeholders(14)+`)`,
		t.ID, nullString(t.RemoteID), t.OwnerID, t.Name, c.R, c.G, c.B, c.A,
		t.Icon, t.Synced, t.Revision, t.RemoteDigest, formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	return err
}

// UpdateTag overwrites every column of an existing tag
func (q *Queries) UpdateTag(ctx context.Context, t model.Tag) error {
	c := t.Color.Clamp()
	res, err := q.db.ExecContext(ctx, `
UPDATE tags SET remote_id = ?, owner_id = ?, name = ?,
    color_r = ?, color_g = ?, color_b = ?, color_a = ?, icon = ?,
    synced = ?, revision = ?, remote_digest = ?, created_at = ?, updated_at = ?
WHERE id = ?`,
		nullString(t.RemoteID), t.OwnerID, t.Name, c.R, c.G, c.B, c.A, t.Icon,
		t.Synced, t.Revision, t.RemoteDigest, formatTime(t.CreatedAt), formatTime(t.UpdatedAt), t.ID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// GetTag returns a tag by local id
func (q *Queries) GetTag(ctx context.Context, id string) (model.Tag, error) {
	return q.getTag(ctx, `SELECT `+tagColumns+` FROM tags WHERE id = ?`, id)
}

// GetTagByRemoteID returns a tag by its remote document id
func (q *Queries) GetTagByRemoteID(ctx context.Context, remoteID string) (model.Tag, error) {
	return q.getTag(ctx, `SELECT `+tagColumns+` FROM tags WHERE remote_id = ?`, remoteID)
}

// GetTagByName returns the tag of ownerID called name
func (q *Queries) GetTagByName(ctx context.Context, ownerID, name string) (model.Tag, error) {
	return q.getTag(ctx, `SELECT `+tagColumns+` FROM tags WHERE owner_id = ? AND name = ?`, ownerID, name)
}

func (q *Queries) getTag(ctx context.Context, query string, args ...any) (model.Tag, error) {
	t, err := scanTag(q.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Tag{}, ErrNotFound
	}
	return t, err
}

// ListTags returns the tags of ownerID ordered by name
func (q *Queries) ListTags(ctx context.Context, ownerID string) ([]model.Tag, error) {
	return q.listTags(ctx, `SELECT `+tagColumns+` FROM tags WHERE owner_id = ? ORDER BY name`, ownerID)
}

// ListDirtyTags returns the tags of ownerID that still need uploading
func (q *Queries) ListDirtyTags(ctx context.Context, ownerID string) ([]model.Tag, error) {
	return q.listTags(ctx, `SELECT `+tagColumns+` FROM tags WHERE owner_id = ? AND synced = 0 ORDER BY created_at`, ownerID)
}

func (q *Queries) listTags(ctx context.Context, query string, args ...any) ([]model.Tag, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []model.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// MarkTagSynced records a successful upload, clearing the dirty flag only if
// revision is still current. It reports whether the tag is now clean.
func (q *Queries) MarkTagSynced(ctx context.Context, id, remoteID, digest string, revision int64) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
UPDATE tags SET remote_id = ?, remote_digest = ?,
    synced = CASE WHEN revision = ? THEN 1 ELSE synced END
WHERE id = ?`, nullString(remoteID), digest, revision, id)
	if err != nil {
		return false, err
	}
	if err := expectOne(res); err != nil {
		return false, err
	}

	var synced bool
	if err := q.db.QueryRowContext(ctx, `SELECT synced FROM tags WHERE id = ?`, id).Scan(&synced); err != nil {
		return false, err
	}
	return synced, nil
}

// DeleteTag removes a tag row. Tasks pointing at it lose their link.
func (q *Queries) DeleteTag(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	return err
}
