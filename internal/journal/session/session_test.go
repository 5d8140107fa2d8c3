package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signed(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestOpen_MissingFileIsSignedOut(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "session.yaml"), Options{})
	require.NoError(t, err)
	assert.False(t, s.IsAuthenticated())
	assert.Empty(t, s.UserID())
}

func TestLoginLogoutReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.yaml")
	s, err := Open(path, Options{})
	require.NoError(t, err)

	require.NoError(t, s.Login("alice", ""))
	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, "alice", s.UserID())

	other, err := Open(path, Options{})
	require.NoError(t, err)
	assert.True(t, other.IsAuthenticated())

	require.NoError(t, s.Logout())
	assert.False(t, s.IsAuthenticated())
	assert.Equal(t, "alice", s.UserID())

	require.NoError(t, other.Reload())
	assert.False(t, other.IsAuthenticated())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLogin_RequiresUser(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "session.yaml"), Options{})
	require.NoError(t, err)
	assert.ErrorIs(t, s.Login("", ""), ErrNoUser)
}

func TestLogin_VerifiedToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	opts := Options{Secret: testSecret, Issuer: "pj", Now: func() time.Time { return clock }}
	s, err := Open(filepath.Join(t.TempDir(), "session.yaml"), opts)
	require.NoError(t, err)

	tok := signed(t, testSecret, jwt.RegisteredClaims{
		Subject:   "bob",
		Issuer:    "pj",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	require.NoError(t, s.Login("ignored", tok))
	assert.Equal(t, "bob", s.UserID())
	assert.True(t, s.IsAuthenticated())

	clock = now.Add(2 * time.Hour)
	assert.False(t, s.IsAuthenticated(), "expired token closes the session")
}

func TestLogin_RejectsBadTokens(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	opts := Options{Secret: testSecret, Issuer: "pj", Now: func() time.Time { return now }}
	s, err := Open(filepath.Join(t.TempDir(), "session.yaml"), opts)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", signed(t, "other", jwt.RegisteredClaims{Subject: "x", Issuer: "pj"})},
		{"wrong issuer", signed(t, testSecret, jwt.RegisteredClaims{Subject: "x", Issuer: "evil"})},
		{"expired", signed(t, testSecret, jwt.RegisteredClaims{
			Subject:   "x",
			Issuer:    "pj",
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
		})},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, s.Login("x", tt.token), ErrInvalidToken)
		})
	}
	assert.False(t, s.IsAuthenticated())
}

func TestUnverifiedTokenStillChecksExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s, err := Open(filepath.Join(t.TempDir(), "session.yaml"), Options{Now: func() time.Time { return now }})
	require.NoError(t, err)

	live := signed(t, "anything", jwt.RegisteredClaims{Subject: "carol", ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute))})
	require.NoError(t, s.Login("", live))
	assert.Equal(t, "carol", s.UserID())

	dead := signed(t, "anything", jwt.RegisteredClaims{Subject: "carol", ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute))})
	assert.ErrorIs(t, s.Login("", dead), ErrInvalidToken)
}
