package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T, secret string) *Issuer {
	t.Helper()
	i, err := NewIssuer(secret, 0)
	require.NoError(t, err)
	return i
}

func TestIssueAndValidateToken(t *testing.T) {
	issuer := newTestIssuer(t, "test-secret-key")

	token, err := issuer.Issue("user-1", "alice@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := issuer.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.NotEmpty(t, claims.ID, "token carries a JTI")
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, err := newTestIssuer(t, "secret1").Issue("user-1", "a@example.com")
	require.NoError(t, err)

	_, err = newTestIssuer(t, "secret2").Validate(token)
	assert.Error(t, err)
}

func TestValidateTokenInvalid(t *testing.T) {
	_, err := newTestIssuer(t, "secret").Validate("not-a-token")
	assert.Error(t, err)
}

func TestValidateTokenExpired(t *testing.T) {
	issuer, err := NewIssuer("secret", time.Millisecond)
	require.NoError(t, err)
	token, err := issuer.Issue("user-1", "a@example.com")
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)
	_, err = issuer.Validate(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenExpiry(t *testing.T) {
	issuer := newTestIssuer(t, "test")
	token, err := issuer.Issue("user-1", "a@example.com")
	require.NoError(t, err)
	claims, err := issuer.Validate(token)
	require.NoError(t, err)

	assert.WithinDuration(t, time.Now().Add(DefaultTokenTTL), claims.ExpiresAt.Time, time.Minute)
}

func TestUniqueJTI(t *testing.T) {
	issuer := newTestIssuer(t, "test")
	t1, err := issuer.Issue("user-1", "a@example.com")
	require.NoError(t, err)
	t2, err := issuer.Issue("user-1", "a@example.com")
	require.NoError(t, err)

	c1, err := issuer.Validate(t1)
	require.NoError(t, err)
	c2, err := issuer.Validate(t2)
	require.NoError(t, err)
	assert.NotEqual(t, c1.ID, c2.ID)
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	_, err := NewIssuer("", time.Hour)
	assert.Error(t, err)
}
