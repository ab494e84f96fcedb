package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Agent roles
const (
	RoleAgent = "agent"
	RoleAdmin = "admin"
)

// Claims identifies the travel agent making a request
type Claims struct {
	AgentID uuid.UUID `json:"agent_id"`
	Email   string    `json:"email"`
	Role    string    `json:"role"`
	jwt.RegisteredClaims
}

// Service issues and validates agent access tokens
type Service struct {
	secret string
	ttl    time.Duration
	issuer string
}

// NewService creates a new JWT service
func NewService(secret string, ttl time.Duration, issuer string) *Service {
	return &Service{secret: secret, ttl: ttl, issuer: issuer}
}

// GenerateAccessToken signs a token for agentID
func (s *Service) GenerateAccessToken(agentID uuid.UUID, email, role string) (string, error) {
	if s.secret == "" {
		return "", errors.New("jwt secret is not configured")
	}

	now := time.Now()
	claims := Claims{
		AgentID: agentID,
		Email:   email,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   agentID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken parses and verifies a token
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	if s.secret == "" {
		return nil, errors.New("jwt secret is not configured")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.secret), nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.AgentID == uuid.Nil {
		return nil, errors.New("token has no agent")
	}
	return claims, nil
}
