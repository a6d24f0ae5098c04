package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    phone         TEXT NOT NULL DEFAULT '',
    address       TEXT NOT NULL DEFAULT '',
    verified      INTEGER NOT NULL DEFAULT 0,
    created_at    DATETIME NOT NULL,
    updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS items (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    description TEXT NOT NULL,
    category    TEXT NOT NULL CHECK (category IN ('electronics', 'furniture', 'clothing', 'books', 'toys', 'kitchen', 'sports', 'other')),
    condition   TEXT NOT NULL CHECK (condition IN ('excellent', 'good', 'fair', 'poor')),
    location    TEXT NOT NULL,
    images      TEXT NOT NULL DEFAULT '[]',
    status      TEXT NOT NULL DEFAULT 'Available' CHECK (status IN ('Available', 'Claimed', 'Removed')),
    posted_by   TEXT NOT NULL REFERENCES users(id),
    claimed_by  TEXT REFERENCES users(id),
    claimed_at  DATETIME,
    created_at  DATETIME NOT NULL,
    updated_at  DATETIME NOT NULL,
    CHECK ((status = 'Claimed') = (claimed_by IS NOT NULL AND claimed_at IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_items_status_created ON items(status, created_at);
CREATE INDEX IF NOT EXISTS idx_items_posted_by ON items(posted_by);

CREATE TABLE IF NOT EXISTS requests (
    id           TEXT PRIMARY KEY,
    item_id      TEXT NOT NULL REFERENCES items(id),
    requester_id TEXT NOT NULL REFERENCES users(id),
    owner_id     TEXT NOT NULL REFERENCES users(id),
    status       TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'accepted', 'rejected')),
    message      TEXT NOT NULL DEFAULT '',
    created_at   DATETIME NOT NULL,
    updated_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_requests_item_status ON requests(item_id, status);
CREATE INDEX IF NOT EXISTS idx_requests_owner ON requests(owner_id, created_at);
CREATE INDEX IF NOT EXISTS idx_requests_requester ON requests(requester_id, created_at);

CREATE TABLE IF NOT EXISTS otp_codes (
    user_id    TEXT PRIMARY KEY REFERENCES users(id),
    code       TEXT NOT NULL,
    expires_at DATETIME NOT NULL,
    attempts   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist,
// then applies pending migrations.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return migrate(db)
}
