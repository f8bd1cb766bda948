// Package services provides technical concerns behind the search flows: result caches,
// cosmology, exports and access tokens
package services

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/skyportal/source-query/config"
	"github.com/skyportal/source-query/utils"
)

// Token service error constants
var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// TokenService issues and validates the access tokens that carry a requester's group access
type TokenService interface {
	GenerateAccessToken(userID uint, groupIDs []int64, isAdmin bool) (string, error)
	ValidateToken(token string) (*TokenClaims, error)
}

// TokenClaims represents the claims in an access token
type TokenClaims struct {
	UserID    uint      `json:"user_id"`
	GroupIDs  []int64   `json:"group_ids"`
	IsAdmin   bool      `json:"is_admin"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	TokenID   string    `json:"jti"`
}

// TokenServiceImpl implements TokenService with HMAC-SHA256
type TokenServiceImpl struct {
	accessTokenTTL time.Duration
	secretKey      []byte
	issuer         string
	audience       string
}

// NewTokenService creates a new token service
func NewTokenService(cfg config.JWTConfig) (TokenService, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("secret key is required")
	}
	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenServiceImpl{
		accessTokenTTL: ttl,
		secretKey:      []byte(cfg.SecretKey),
		issuer:         cfg.Issuer,
		audience:       cfg.Audience,
	}, nil
}

// GenerateAccessToken signs a token for the user and the groups they may read
func (s *TokenServiceImpl) GenerateAccessToken(userID uint, groupIDs []int64, isAdmin bool) (string, error) {
	now := utils.UTCNow()

	tokenID, err := generateTokenID()
	if err != nil {
		return "", err
	}
	if groupIDs == nil {
		groupIDs = []int64{}
	}

	claims := jwt.MapClaims{
		"user_id":   userID,
		"group_ids": groupIDs,
		"is_admin":  isAdmin,
		"jti":       tokenID,
		"iat":       now.Unix(),
		"exp":       now.Add(s.accessTokenTTL).Unix(),
	}
	if s.issuer != "" {
		claims["iss"] = s.issuer
	}
	if s.audience != "" {
		claims["aud"] = s.audience
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
}

// ValidateToken validates a token and returns its claims
func (s *TokenServiceImpl) ValidateToken(token string) (*TokenClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	parsedToken, err := jwt.Parse(token, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsedToken.Valid {
		return nil, ErrTokenInvalid
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}

	userID, ok := claims["user_id"].(float64)
	if !ok {
		return nil, ErrTokenInvalid
	}
	isAdmin, _ := claims["is_admin"].(bool)
	tokenID, ok := claims["jti"].(string)
	if !ok {
		return nil, ErrTokenInvalid
	}
	issuedAt, ok := claims["iat"].(float64)
	if !ok {
		return nil, ErrTokenInvalid
	}
	expiresAt, ok := claims["exp"].(float64)
	if !ok {
		return nil, ErrTokenInvalid
	}

	groupIDs := []int64{}
	if raw, ok := claims["group_ids"].([]any); ok {
		for _, v := range raw {
			id, ok := v.(float64)
			if !ok {
				return nil, ErrTokenInvalid
			}
			groupIDs = append(groupIDs, int64(id))
		}
	}

	return &TokenClaims{
		UserID:    uint(userID),
		GroupIDs:  groupIDs,
		IsAdmin:   isAdmin,
		TokenID:   tokenID,
		IssuedAt:  time.Unix(int64(issuedAt), 0),
		ExpiresAt: time.Unix(int64(expiresAt), 0),
	}, nil
}

// generateTokenID generates a unique token ID
func generateTokenID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", bytes), nil
}
