package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is the resolved identity of an authenticated actor.
type TokenClaims struct {
	UserID         string
	OrganizationID string
	Email          string
	Role           string
}

// Service validates bearer tokens issued by the identity service. The
// automation engine trusts the resolved identity; it never
// authenticates credentials itself.
type Service struct {
	secretKey           string
	accessTokenDuration time.Duration
}

// NewService creates a JWT service sharing the platform signing secret.
func NewService(secretKey string) *Service {
	return &Service{
		secretKey:           secretKey,
		accessTokenDuration: 15 * time.Minute,
	}
}

// GenerateToken issues a signed access token for the given claims.
func (s *Service) GenerateToken(claims *TokenClaims) (string, error) {
	now := time.Now()
	jwtClaims := jwt.MapClaims{
		"user_id":         claims.UserID,
		"organization_id": claims.OrganizationID,
		"email":           claims.Email,
		"role":            claims.Role,
		"exp":             now.Add(s.accessTokenDuration).Unix(),
		"iat":             now.Unix(),
		"nbf":             now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims)
	tokenString, err := token.SignedString([]byte(s.secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken parses and validates a token and returns its claims.
func (s *Service) ValidateToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.secretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	stringClaim := func(key string) string {
		v, _ := claims[key].(string)
		return v
	}
	return &TokenClaims{
		UserID:         stringClaim("user_id"),
		OrganizationID: stringClaim("organization_id"),
		Email:          stringClaim("email"),
		Role:           stringClaim("role"),
	}, nil
}
