package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stemsi/exstem-authoring/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthService() *AuthService {
	return NewAuthService(&config.Config{
		JWTSecret:  "test-secret",
		JWTExpiry:  time.Hour,
		BcryptCost: 4,
	}, nil)
}

func TestPasswordHashing(t *testing.T) {
	s := newTestAuthService()
	hash, err := s.HashPassword("hunter22")
	require.NoError(t, err)

	assert.NoError(t, s.CheckPassword(hash, "hunter22"))
	assert.ErrorIs(t, s.CheckPassword(hash, "wrong"), ErrInvalidCredentials)
}

func TestAdminTokenRoundTrip(t *testing.T) {
	s := newTestAuthService()
	token, err := s.GenerateAdminToken(7, 2, []string{"exams:read", "exams:write"})
	require.NoError(t, err)

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeAdmin, claims.TokenType)
	assert.Equal(t, 7, claims.UserID)
	assert.Equal(t, 2, claims.RoleID)
	assert.Equal(t, []string{"exams:read", "exams:write"}, claims.Permissions)
	assert.Equal(t, "7", claims.Subject)
}

func TestValidateTokenRejectsForeignTokens(t *testing.T) {
	s := newTestAuthService()

	other := NewAuthService(&config.Config{JWTSecret: "other", JWTExpiry: time.Hour, BcryptCost: 4}, nil)
	token, err := other.GenerateAdminToken(1, 1, nil)
	require.NoError(t, err)
	_, err = s.ValidateToken(token)
	assert.Error(t, err)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
		TokenType:        TokenTypeAdmin,
		UserID:           1,
	})
	signed, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = s.ValidateToken(signed)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = s.ValidateToken(unsigned)
	assert.Error(t, err)
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "author@example.com", normalizeEmail("  Author@Example.COM "))
}
