package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aidar/tenant-purge/internal/domain"
	"github.com/aidar/tenant-purge/internal/repository"
)

// Claims represents JWT claims
type Claims struct {
	OperatorID string `json:"operator_id"`
	jwt.RegisteredClaims
}

// AuthService handles operator authentication and JWT operations
type AuthService struct {
	inventory repository.InventoryRepository
	jwtSecret string
	jwtExpiry time.Duration
}

// NewAuthService creates a new AuthService
func NewAuthService(inventory repository.InventoryRepository, jwtSecret string, jwtExpiry time.Duration) *AuthService {
	return &AuthService{
		inventory: inventory,
		jwtSecret: jwtSecret,
		jwtExpiry: jwtExpiry,
	}
}

// Login generates a JWT token for an active operator
func (s *AuthService) Login(ctx context.Context, operatorID string) (string, error) {
	if s.jwtSecret == "" {
		return "", domain.ErrSigningKeyMissing
	}

	// Only active operators may drive deletions
	principal, err := s.inventory.GetPrincipal(ctx, operatorID)
	if err != nil {
		return "", err
	}
	if !principal.IsOperator || !principal.IsActive {
		return "", domain.ErrNotOperator
	}

	now := time.Now()
	claims := &Claims{
		OperatorID: principal.PrincipalID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.PrincipalID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken validates a JWT token and returns claims
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	// An empty key would verify tokens anyone can sign
	if s.jwtSecret == "" {
		return nil, domain.ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.OperatorID == "" {
		return nil, domain.ErrInvalidToken
	}

	return claims, nil
}
