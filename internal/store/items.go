package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trashtotreasure/treasure/internal/model"
)

const itemSelect = `SELECT i.id, i.title, i.description, i.category, i.condition, i.location,
	i.images, i.status, i.posted_by, i.claimed_by, i.claimed_at, i.created_at, i.updated_at,
	p.name, p.email, c.name, c.email
	FROM items i
	JOIN users p ON p.id = i.posted_by
	LEFT JOIN users c ON c.id = i.claimed_by`

func scanItem(s scanner) (*model.Item, error) {
	item := &model.Item{}
	var images string
	var claimedBy, claimerName, claimerEmail sql.NullString
	var claimedAt sql.NullTime
	poster := &model.UserSummary{}
	if err := s.Scan(&item.ID, &item.Title, &item.Description, &item.Category, &item.Condition,
		&item.Location, &images, &item.Status, &item.PostedBy, &claimedBy, &claimedAt,
		&item.CreatedAt, &item.UpdatedAt, &poster.Name, &poster.Email, &claimerName, &claimerEmail); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(images), &item.Images); err != nil {
		return nil, fmt.Errorf("decoding images of item %s: %w", item.ID, err)
	}
	if item.Images == nil {
		item.Images = []string{}
	}
	poster.ID = item.PostedBy
	item.Poster = poster
	if claimedBy.Valid {
		item.ClaimedBy = &claimedBy.String
		item.Claimer = &model.UserSummary{ID: claimedBy.String, Name: claimerName.String, Email: claimerEmail.String}
	}
	if claimedAt.Valid {
		t := claimedAt.Time
		item.ClaimedAt = &t
	}
	return item, nil
}

// CreateItem posts a new Available item owned by ownerID, created at the given time.
func CreateItem(ctx context.Context, db DBTX, ownerID string, in model.NewItem, at time.Time) (*model.Item, error) {
	images := in.Images
	if images == nil {
		images = []string{}
	}
	encoded, err := json.Marshal(images)
	if err != nil {
		return nil, fmt.Errorf("encoding images: %w", err)
	}

	now := at.UTC()
	id := uuid.NewString()
	_, err = db.ExecContext(ctx,
		`INSERT INTO items (id, title, description, category, condition, location, images, status, posted_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, strings.TrimSpace(in.Title), strings.TrimSpace(in.Description), in.Category, in.Condition,
		strings.TrimSpace(in.Location), string(encoded), model.ItemStatusAvailable, ownerID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}
	return GetItem(ctx, db, id)
}

// GetItem returns an item with its poster and claimer joined, or nil if none exists.
func GetItem(ctx context.Context, db DBTX, id string) (*model.Item, error) {
	item, err := scanItem(db.QueryRowContext(ctx, itemSelect+` WHERE i.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ListItems returns Available and Claimed items matching the filter, newest first.
func ListItems(ctx context.Context, db DBTX, filter model.ItemFilter) ([]model.Item, error) {
	query := itemSelect + ` WHERE i.status IN (?, ?)`
	args := []any{model.ItemStatusAvailable, model.ItemStatusClaimed}

	if c := strings.ToLower(strings.TrimSpace(filter.Category)); c != "" && c != "all" {
		query += ` AND i.category = ?`
		args = append(args, c)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		query += ` AND (i.title LIKE ? ESCAPE '\' OR i.description LIKE ? ESCAPE '\')`
		p := likePattern(s)
		args = append(args, p, p)
	}
	query += ` ORDER BY i.created_at DESC, i.id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	items := []model.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// ClaimItemIfAvailable moves an Available item to Claimed by claimerID.
// It reports false if the item was not Available at the time of the update.
func ClaimItemIfAvailable(ctx context.Context, db DBTX, id, claimerID string, at time.Time) (bool, error) {
	return claimItem(ctx, db, id, claimerID, at, `status = 'Available'`)
}

// ClaimItemForRequest is ClaimItemIfAvailable for request acceptance: it also
// reports false if any request for the item was ever accepted, so an item
// reopened by its owner cannot gain a second accepted request.
func ClaimItemForRequest(ctx context.Context, db DBTX, id, claimerID string, at time.Time) (bool, error) {
	return claimItem(ctx, db, id, claimerID, at, `status = 'Available' AND NOT EXISTS (
		SELECT 1 FROM requests a WHERE a.item_id = items.id AND a.status = 'accepted')`)
}

// ClaimItemUnlessClaimed records claimerID as the claimer of an item that is
// Available or Removed. It reports false if the item was already Claimed.
func ClaimItemUnlessClaimed(ctx context.Context, db DBTX, id, claimerID string, at time.Time) (bool, error) {
	return claimItem(ctx, db, id, claimerID, at, `status <> 'Claimed'`)
}

func claimItem(ctx context.Context, db DBTX, id, claimerID string, at time.Time, cond string) (bool, error) {
	at = at.UTC()
	result, err := db.ExecContext(ctx,
		`UPDATE items SET status = 'Claimed', claimed_by = ?, claimed_at = ?, updated_at = ?
		 WHERE id = ? AND `+cond,
		claimerID, at, at, id,
	)
	if err != nil {
		return false, fmt.Errorf("claiming item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claiming item: %w", err)
	}
	return n == 1, nil
}

// ReleaseItem sets an item to Available or Removed and clears its claim.
func ReleaseItem(ctx context.Context, db DBTX, id string, status model.ItemStatus, at time.Time) error {
	if status == model.ItemStatusClaimed {
		return fmt.Errorf("releasing item: status %s keeps a claim", status)
	}
	_, err := db.ExecContext(ctx,
		`UPDATE items SET status = ?, claimed_by = NULL, claimed_at = NULL, updated_at = ? WHERE id = ?`,
		status, at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating item status: %w", err)
	}
	return nil
}

// ItemsOwingCascade returns IDs of items that still have pending requests
// although they can no longer be claimed through a request: Removed items,
// and Claimed items with an accepted request. With includeDirectClaims every
// Claimed item qualifies.
func ItemsOwingCascade(ctx context.Context, db DBTX, includeDirectClaims bool) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT i.id FROM items i
		 WHERE EXISTS (SELECT 1 FROM requests r WHERE r.item_id = i.id AND r.status = 'pending')
		   AND (i.status = 'Removed'
		        OR (i.status = 'Claimed' AND (? OR EXISTS (
		            SELECT 1 FROM requests a WHERE a.item_id = i.id AND a.status = 'accepted'))))
		 ORDER BY i.id`,
		includeDirectClaims,
	)
	if err != nil {
		return nil, fmt.Errorf("listing items owing cascade: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning item id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
