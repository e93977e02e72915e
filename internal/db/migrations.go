package db

import "fmt"

// migrate runs all database migrations
func (db *DB) migrate() error {
	migrations := []string{
		migrationCreateUsers,
		migrationCreateTags,
		migrationCreateTasks,
		migrationCreateFriends,
		migrationCreateFriendRequests,
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	return nil
}

const migrationCreateUsers = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    remote_id TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL DEFAULT '',
    last_sync_at TEXT,
    auto_sync INTEGER NOT NULL DEFAULT 1
);
`

const migrationCreateTags = `
CREATE TABLE IF NOT EXISTS tags (
    id TEXT PRIMARY KEY,
    remote_id TEXT UNIQUE,
    owner_id TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL,
    color_r REAL NOT NULL DEFAULT 0,
    color_g REAL NOT NULL DEFAULT 0,
    color_b REAL NOT NULL DEFAULT 0,
    color_a REAL NOT NULL DEFAULT 1,
    icon TEXT NOT NULL DEFAULT '',
    synced INTEGER NOT NULL DEFAULT 0,
    revision INTEGER NOT NULL DEFAULT 1,
    remote_digest TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    UNIQUE (owner_id, name)
);

CREATE INDEX IF NOT EXISTS idx_tags_owner ON tags(owner_id);
`

const migrationCreateTasks = `
CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    remote_id TEXT UNIQUE,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    due TEXT NOT NULL,
    tag_id TEXT REFERENCES tags(id) ON DELETE SET NULL,
    tag_remote_id TEXT,
    auto_reminder INTEGER NOT NULL DEFAULT 0,
    important INTEGER NOT NULL DEFAULT 0,
    urgent INTEGER NOT NULL DEFAULT 0,
    auto_complete INTEGER NOT NULL DEFAULT 1,
    auto_fail INTEGER NOT NULL DEFAULT 0,
    done INTEGER NOT NULL DEFAULT 0,
    shared INTEGER NOT NULL DEFAULT 0,
    owner_id TEXT NOT NULL DEFAULT '',
    from_user_id TEXT NOT NULL DEFAULT '',
    to_user_id TEXT NOT NULL DEFAULT '',
    from_user_name TEXT NOT NULL DEFAULT '',
    to_user_name TEXT NOT NULL DEFAULT '',
    synced INTEGER NOT NULL DEFAULT 0,
    received_at TEXT,
    completed_at TEXT,
    last_reminder_at TEXT,
    revision INTEGER NOT NULL DEFAULT 1,
    remote_digest TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    CHECK (NOT (auto_complete = 1 AND auto_fail = 1))
);

CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner_id);
CREATE INDEX IF NOT EXISTS idx_tasks_from ON tasks(from_user_id);
CREATE INDEX IF NOT EXISTS idx_tasks_to ON tasks(to_user_id);
CREATE INDEX IF NOT EXISTS idx_tasks_done ON tasks(done);
`

const migrationCreateFriends = `
CREATE TABLE IF NOT EXISTS friends (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    friend_id TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL DEFAULT '',
    remote_uid TEXT NOT NULL,
    email TEXT NOT NULL DEFAULT '',
    UNIQUE (user_id, remote_uid)
);
`

const migrationCreateFriendRequests = `
CREATE TABLE IF NOT EXISTS friend_requests (
    id TEXT PRIMARY KEY,
    remote_id TEXT UNIQUE,
    from_uid TEXT NOT NULL,
    to_uid TEXT NOT NULL,
    from_email TEXT NOT NULL DEFAULT '',
    to_email TEXT NOT NULL DEFAULT '',
    from_name TEXT NOT NULL DEFAULT '',
    to_name TEXT NOT NULL DEFAULT '',
    sent_at TEXT NOT NULL,
    resolved_at TEXT,
    accepted INTEGER NOT NULL DEFAULT 0,
    resolved INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_friend_requests_to ON friend_requests(to_uid);
`
