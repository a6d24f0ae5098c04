package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trashtotreasure/treasure/internal/model"
)

const userColumns = `id, name, email, password_hash, phone, address, verified, created_at, updated_at`

func scanUser(s scanner) (*model.User, error) {
	u := &model.User{}
	if err := s.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Phone, &u.Address,
		&u.Verified, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

// NormalizeEmail lowercases and trims an email address before storage or lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser creates a new account. Returns ErrDuplicate if the email is taken.
func CreateUser(ctx context.Context, db DBTX, name, email, passwordHash string) (*model.User, error) {
	now := time.Now().UTC()
	id := uuid.NewString()
	_, err := db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, strings.TrimSpace(name), NormalizeEmail(email), passwordHash, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return GetUser(ctx, db, id)
}

// GetUser returns a user by ID, or nil if none exists.
func GetUser(ctx context.Context, db DBTX, id string) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns a user by email, or nil if none exists.
func GetUserByEmail(ctx context.Context, db DBTX, email string) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, NormalizeEmail(email)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

// UpdateProfile replaces the editable profile fields of a user.
func UpdateProfile(ctx context.Context, db DBTX, id, name, phone, address string) (*model.User, error) {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET name = ?, phone = ?, address = ?, updated_at = ? WHERE id = ?`,
		strings.TrimSpace(name), strings.TrimSpace(phone), strings.TrimSpace(address), time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	return GetUser(ctx, db, id)
}

// SetVerified marks a user's email as verified.
func SetVerified(ctx context.Context, db DBTX, id string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET verified = 1, updated_at = ? WHERE id = ?`, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("verifying user: %w", err)
	}
	return nil
}
