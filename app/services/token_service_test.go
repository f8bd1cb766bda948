package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/skyportal/source-query/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestTokenService(t *testing.T) TokenService {
	t.Helper()
	service, err := NewTokenService(config.JWTConfig{
		SecretKey:      "test-secret-key-for-testing-purposes-only",
		AccessTokenTTL: 15 * time.Minute,
		Issuer:         "skyportal-test",
		Audience:       "skyportal-api",
	})
	require.NoError(t, err)
	return service
}

func TestNewTokenService(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.JWTConfig
		expectError bool
	}{
		{
			name:        "valid configuration",
			cfg:         config.JWTConfig{SecretKey: "secret", AccessTokenTTL: time.Hour},
			expectError: false,
		},
		{
			name:        "zero ttl falls back to default",
			cfg:         config.JWTConfig{SecretKey: "secret"},
			expectError: false,
		},
		{
			name:        "missing secret key",
			cfg:         config.JWTConfig{AccessTokenTTL: time.Hour},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, err := NewTokenService(tt.cfg)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, service)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, service)
			}
		})
	}
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	service := createTestTokenService(t)

	tests := []struct {
		name     string
		userID   uint
		groupIDs []int64
		isAdmin  bool
		expected []int64
	}{
		{name: "member of several groups", userID: 7, groupIDs: []int64{1, 4, 9}, expected: []int64{1, 4, 9}},
		{name: "no groups", userID: 8, groupIDs: nil, expected: []int64{}},
		{name: "admin", userID: 1, groupIDs: []int64{2}, isAdmin: true, expected: []int64{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := service.GenerateAccessToken(tt.userID, tt.groupIDs, tt.isAdmin)
			require.NoError(t, err)
			assert.Contains(t, token, "eyJ")

			claims, err := service.ValidateToken(token)
			require.NoError(t, err)
			assert.Equal(t, tt.userID, claims.UserID)
			assert.Equal(t, tt.expected, claims.GroupIDs)
			assert.Equal(t, tt.isAdmin, claims.IsAdmin)
			assert.NotEmpty(t, claims.TokenID)
			assert.True(t, claims.ExpiresAt.After(claims.IssuedAt))
		})
	}
}

func TestTokensAreUnique(t *testing.T) {
	service := createTestTokenService(t)

	a, err := service.GenerateAccessToken(5, []int64{1}, false)
	require.NoError(t, err)
	b, err := service.GenerateAccessToken(5, []int64{1}, false)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestValidateTokenRejects(t *testing.T) {
	service := createTestTokenService(t)

	other, err := NewTokenService(config.JWTConfig{
		SecretKey: "another-secret",
		Issuer:    "skyportal-test",
		Audience:  "skyportal-api",
	})
	require.NoError(t, err)
	foreign, err := other.GenerateAccessToken(3, []int64{1}, false)
	require.NoError(t, err)

	wrongIssuer, err := NewTokenService(config.JWTConfig{
		SecretKey: "test-secret-key-for-testing-purposes-only",
		Issuer:    "someone-else",
		Audience:  "skyportal-api",
	})
	require.NoError(t, err)
	misissued, err := wrongIssuer.GenerateAccessToken(3, []int64{1}, false)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "invalid format", token: "invalid.token.format"},
		{name: "malformed token", token: "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature"},
		{name: "signed with another key", token: foreign},
		{name: "wrong issuer", token: misissued},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := service.ValidateToken(tt.token)
			assert.ErrorIs(t, err, ErrTokenInvalid)
			assert.Nil(t, claims)
		})
	}
}

func TestValidateTokenExpired(t *testing.T) {
	secret := []byte("test-secret-key-for-testing-purposes-only")
	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":   3,
		"group_ids": []int64{1},
		"jti":       "expired",
		"iat":       now.Add(-2 * time.Hour).Unix(),
		"exp":       now.Add(-time.Hour).Unix(),
		"iss":       "skyportal-test",
		"aud":       "skyportal-api",
	}).SignedString(secret)
	require.NoError(t, err)

	service := createTestTokenService(t)
	claims, err := service.ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Nil(t, claims)
}

func TestValidateTokenRejectsNoneAlgorithm(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"user_id": 1,
		"jti":     "x",
		"iat":     time.Now().Unix(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	service := createTestTokenService(t)
	_, err = service.ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
