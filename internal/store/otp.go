package store

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"fmt"
	"time"
)

// MaxOTPAttempts is the number of wrong guesses that deletes a code. The user
// then has to ask for a new one.
const MaxOTPAttempts = 5

// SetOTP stores a one-time code for a user, replacing any earlier code and
// resetting its failed attempts.
func SetOTP(ctx context.Context, db DBTX, userID, code string, expiresAt time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO otp_codes (user_id, code, expires_at, attempts) VALUES (?, ?, ?, 0)
		 ON CONFLICT(user_id) DO UPDATE SET code = excluded.code, expires_at = excluded.expires_at, attempts = 0`,
		userID, code, expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storing otp: %w", err)
	}
	return nil
}

// ConsumeOTP deletes the user's code if it matches and has not expired.
// It reports whether a code was consumed. A wrong guess counts against the
// code; expired codes and codes out of attempts are deleted.
func ConsumeOTP(ctx context.Context, db DBTX, userID, code string, now time.Time) (bool, error) {
	var stored string
	var expiresAt time.Time
	err := db.QueryRowContext(ctx,
		`SELECT code, expires_at FROM otp_codes WHERE user_id = ?`, userID,
	).Scan(&stored, &expiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("getting otp: %w", err)
	}

	if !now.Before(expiresAt) {
		if _, err := db.ExecContext(ctx, `DELETE FROM otp_codes WHERE user_id = ? AND code = ?`, userID, stored); err != nil {
			return false, fmt.Errorf("deleting expired otp: %w", err)
		}
		return false, nil
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		if _, err := db.ExecContext(ctx,
			`UPDATE otp_codes SET attempts = attempts + 1 WHERE user_id = ? AND code = ?`, userID, stored,
		); err != nil {
			return false, fmt.Errorf("counting otp attempt: %w", err)
		}
		if _, err := db.ExecContext(ctx,
			`DELETE FROM otp_codes WHERE user_id = ? AND attempts >= ?`, userID, MaxOTPAttempts,
		); err != nil {
			return false, fmt.Errorf("discarding otp: %w", err)
		}
		return false, nil
	}

	result, err := db.ExecContext(ctx,
		`DELETE FROM otp_codes WHERE user_id = ? AND code = ?`, userID, stored,
	)
	if err != nil {
		return false, fmt.Errorf("consuming otp: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consuming otp: %w", err)
	}
	return n == 1, nil
}
