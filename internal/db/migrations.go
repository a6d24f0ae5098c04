package db

import (
	"database/sql"
	"fmt"
)

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: at most one open request per (item, requester). Databases
	// created before the index may hold duplicates; keep the oldest one open.
	`UPDATE requests SET status = 'rejected'
	 WHERE status IN ('pending', 'accepted')
	   AND EXISTS (
	       SELECT 1 FROM requests older
	       WHERE older.item_id = requests.item_id
	         AND older.requester_id = requests.requester_id
	         AND older.status IN ('pending', 'accepted')
	         AND (older.created_at < requests.created_at
	              OR (older.created_at = requests.created_at AND older.id < requests.id)))`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_requests_open
	     ON requests(item_id, requester_id) WHERE status IN ('pending', 'accepted')`,
}

// addedColumns are columns introduced after their table was first created.
// New databases get them from the schema; older ones are altered once.
var addedColumns = []struct {
	table, column, definition string
}{
	{"otp_codes", "attempts", "INTEGER NOT NULL DEFAULT 0"},
}

func migrate(db *sql.DB) error {
	for _, c := range addedColumns {
		if err := addColumnIfMissing(db, c.table, c.column, c.definition); err != nil {
			return err
		}
	}
	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}
	return nil
}

func addColumnIfMissing(db *sql.DB, table, column, definition string) error {
	var exists bool
	err := db.QueryRow(
		`SELECT EXISTS (SELECT 1 FROM pragma_table_info(?) WHERE name = ?)`, table, column,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("inspecting %s: %w", table, err)
	}
	if exists {
		return nil
	}
	if _, err := db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition)); err != nil {
		return fmt.Errorf("adding %s.%s: %w", table, column, err)
	}
	return nil
}
