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

const requestSelect = `SELECT r.id, r.item_id, r.requester_id, r.owner_id, r.status, r.message,
	r.created_at, r.updated_at,
	i.title, i.images, i.status,
	q.name, q.email, o.name, o.email
	FROM requests r
	JOIN items i ON i.id = r.item_id
	JOIN users q ON q.id = r.requester_id
	JOIN users o ON o.id = r.owner_id`

func scanRequest(s scanner) (*model.Request, error) {
	r := &model.Request{}
	item := &model.ItemSummary{}
	requester := &model.UserSummary{}
	owner := &model.UserSummary{}
	var images string
	if err := s.Scan(&r.ID, &r.ItemID, &r.RequesterID, &r.OwnerID, &r.Status, &r.Message,
		&r.CreatedAt, &r.UpdatedAt, &item.Title, &images, &item.Status,
		&requester.Name, &requester.Email, &owner.Name, &owner.Email); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(images), &item.Images); err != nil {
		return nil, fmt.Errorf("decoding images of item %s: %w", r.ItemID, err)
	}
	if item.Images == nil {
		item.Images = []string{}
	}
	item.ID = r.ItemID
	requester.ID = r.RequesterID
	owner.ID = r.OwnerID
	r.Item, r.Requester, r.Owner = item, requester, owner
	return r, nil
}

// CreateRequest inserts a pending request for an item, copying the item's
// owner. The insert only happens while the item is Available, not posted by
// the requester and without an accepted request; otherwise it returns nil. Returns ErrDuplicate if the
// requester already has an open request for the item.
func CreateRequest(ctx context.Context, db DBTX, itemID, requesterID, message string, at time.Time) (*model.Request, error) {
	at = at.UTC()
	id := uuid.NewString()
	result, err := db.ExecContext(ctx,
		`INSERT INTO requests (id, item_id, requester_id, owner_id, status, message, created_at, updated_at)
		 SELECT ?, i.id, ?, i.posted_by, 'pending', ?, ?, ?
		 FROM items i
		 WHERE i.id = ? AND i.status = 'Available' AND i.posted_by <> ?
		   AND NOT EXISTS (SELECT 1 FROM requests a WHERE a.item_id = i.id AND a.status = 'accepted')`,
		id, requesterID, strings.TrimSpace(message), at, at, itemID, requesterID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("creating request: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return GetRequest(ctx, db, id)
}

// GetRequest returns a request with its item and users joined, or nil if none exists.
func GetRequest(ctx context.Context, db DBTX, id string) (*model.Request, error) {
	r, err := scanRequest(db.QueryRowContext(ctx, requestSelect+` WHERE r.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting request: %w", err)
	}
	return r, nil
}

// FindOpenRequest returns the requester's pending or accepted request for an
// item, or nil if there is none.
func FindOpenRequest(ctx context.Context, db DBTX, itemID, requesterID string) (*model.Request, error) {
	r, err := scanRequest(db.QueryRowContext(ctx,
		requestSelect+` WHERE r.item_id = ? AND r.requester_id = ? AND r.status IN ('pending', 'accepted')`,
		itemID, requesterID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding open request: %w", err)
	}
	return r, nil
}

// LatestRequest returns the requester's most recent request for an item in
// any status, or nil if there is none.
func LatestRequest(ctx context.Context, db DBTX, itemID, requesterID string) (*model.Request, error) {
	r, err := scanRequest(db.QueryRowContext(ctx,
		requestSelect+` WHERE r.item_id = ? AND r.requester_id = ?
		ORDER BY r.created_at DESC, r.rowid DESC LIMIT 1`,
		itemID, requesterID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting latest request: %w", err)
	}
	return r, nil
}

// TransitionRequest moves a request from one status to another. It reports
// false if the request was not in the from status at the time of the update.
func TransitionRequest(ctx context.Context, db DBTX, id string, from, to model.RequestStatus, at time.Time) (bool, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE requests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, at.UTC(), id, from,
	)
	if err != nil {
		return false, fmt.Errorf("updating request status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("updating request status: %w", err)
	}
	return n == 1, nil
}

// RejectPendingRequests rejects every pending request on an item except
// exceptID (which may be empty) and returns how many were rejected.
func RejectPendingRequests(ctx context.Context, db DBTX, itemID, exceptID string, at time.Time) (int64, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE requests SET status = 'rejected', updated_at = ?
		 WHERE item_id = ? AND status = 'pending' AND id <> ?`,
		at.UTC(), itemID, exceptID,
	)
	if err != nil {
		return 0, fmt.Errorf("rejecting pending requests: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rejecting pending requests: %w", err)
	}
	return n, nil
}

// ListRequestsByOwner returns requests received on the owner's items, newest first.
func ListRequestsByOwner(ctx context.Context, db DBTX, ownerID string) ([]model.Request, error) {
	return listRequests(ctx, db, `r.owner_id = ?`, ownerID)
}

// ListRequestsByRequester returns requests the user has made, newest first.
func ListRequestsByRequester(ctx context.Context, db DBTX, requesterID string) ([]model.Request, error) {
	return listRequests(ctx, db, `r.requester_id = ?`, requesterID)
}

func listRequests(ctx context.Context, db DBTX, where string, args ...any) ([]model.Request, error) {
	rows, err := db.QueryContext(ctx,
		requestSelect+` WHERE `+where+` ORDER BY r.created_at DESC, r.rowid DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing requests: %w", err)
	}
	defer rows.Close()

	requests := []model.Request{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning request: %w", err)
		}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}
