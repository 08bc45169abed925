package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iho/worldtycoon/internal/domain"
)

const issuer = "worldtycoon"

// Claims carries the player identity. Owner is the ledger key the caller acts as.
type Claims struct {
	Owner string      `json:"owner"`
	Email string      `json:"email,omitempty"`
	Role  domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// User converts verified claims into the request user.
func (c *Claims) User() *domain.User {
	role := c.Role
	if !role.IsValid() {
		role = domain.RolePlayer
	}
	return &domain.User{
		ID:    domain.NormalizeOwner(c.Owner),
		Email: c.Email,
		Role:  role,
	}
}

// JWTManager manages JWT token creation and validation
type JWTManager struct {
	secretKey     []byte
	tokenDuration time.Duration
	now           func() time.Time
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secretKey string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
		now:           time.Now,
	}
}

// Generate issues a token for user.
func (m *JWTManager) Generate(user *domain.User) (string, error) {
	if user == nil || user.Identity() == "" {
		return "", domain.ErrInvalidOwner
	}
	now := m.now()
	claims := Claims{
		Owner: user.Identity(),
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   user.Identity(),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// Verify verifies a JWT token and returns the claims
func (m *JWTManager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.secretKey, nil
		},
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrExpiredToken
		}
		return nil, domain.ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || domain.NormalizeOwner(claims.Owner) == "" {
		return nil, domain.ErrInvalidToken
	}

	return claims, nil
}
