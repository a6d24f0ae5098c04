package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"
)

// DefaultOTPTTL is how long a verification code stays valid.
const DefaultOTPTTL = 10 * time.Minute

// otpDigits is the length of a verification code.
const otpDigits = 6

// GenerateOTP returns a random numeric code of otpDigits digits.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generating otp: %w", err)
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

// Mailer delivers verification codes to users.
type Mailer interface {
	SendOTP(ctx context.Context, email, code string) error
}

// LogMailer "delivers" codes by logging them. It stands in for a real mail
// service during development.
type LogMailer struct {
	Logger *slog.Logger
}

// SendOTP logs the code for email.
func (m LogMailer) SendOTP(ctx context.Context, email, code string) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "verification code issued", "email", email, "code", code)
	return nil
}
