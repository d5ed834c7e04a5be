// Package auth guards the operator endpoints of the status API. A single
// operator key (stored as a bcrypt hash) is exchanged for a short-lived
// JWT; the mutating routes require the token.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidKey   = errors.New("auth: invalid operator key")
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrTokenExpired = errors.New("auth: token expired")
)

// Claims are the operator token claims.
type Claims struct {
	jwt.RegisteredClaims
}

// Service issues and validates operator tokens.
type Service struct {
	keyHash       []byte
	secret        []byte
	tokenDuration time.Duration
}

// NewService creates an auth service. operatorKeyHash is the bcrypt hash
// of the operator key, from configuration.
func NewService(operatorKeyHash, jwtSecret string, tokenDuration time.Duration) *Service {
	if tokenDuration <= 0 {
		tokenDuration = 15 * time.Minute
	}
	return &Service{
		keyHash:       []byte(operatorKeyHash),
		secret:        []byte(jwtSecret),
		tokenDuration: tokenDuration,
	}
}

// HashKey produces a bcrypt hash for an operator key. Used by setup
// tooling, not the request path.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash key: %w", err)
	}
	return string(hash), nil
}

// Login exchanges the operator key for a signed token.
func (s *Service) Login(operatorKey string) (string, error) {
	if err := bcrypt.CompareHashAndPassword(s.keyHash, []byte(operatorKey)); err != nil {
		return "", ErrInvalidKey
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenDuration)),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "trading-tick-controller",
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Validate checks a token string.
func (s *Service) Validate(tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrInvalidToken
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

// Middleware creates a gin middleware requiring a valid operator token.
func Middleware(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}

		if err := s.Validate(parts[1]); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}
