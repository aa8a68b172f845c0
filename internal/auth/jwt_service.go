package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTService issues and parses HS256 access tokens.
type JWTService struct {
	secret    []byte
	expiresIn time.Duration
}

// NewJWTService builds the token service. An empty secret generates an
// ephemeral one, which invalidates all tokens on restart; fine for
// development, logged so it is not a surprise in production.
func NewJWTService(secret string, expiresIn time.Duration) (*JWTService, error) {
	if expiresIn <= 0 {
		return nil, errors.New("token expiry must be positive")
	}

	key := []byte(secret)
	if len(key) == 0 {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate ephemeral JWT secret: %w", err)
		}
		key = []byte(hex.EncodeToString(buf))
		log.Println("[auth] No JWT secret configured, generated an ephemeral one")
	}

	return &JWTService{secret: key, expiresIn: expiresIn}, nil
}

// GenerateToken issues a signed token for the identity.
func (s *JWTService) GenerateToken(id Identity) (string, time.Time, error) {
	now := time.Now()
	expiry := now.Add(s.expiresIn)

	claims := jwt.MapClaims{
		"user_id":  id.UserID,
		"username": id.Username,
		"role":     id.Role,
		"iat":      now.Unix(),
		"exp":      expiry.Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expiry, nil
}

// ParseToken verifies a token and extracts the identity.
func (s *JWTService) ParseToken(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, errors.New("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("invalid token claims")
	}

	userID, ok := claims["user_id"].(float64)
	if !ok {
		return Identity{}, errors.New("user_id missing from token claims")
	}
	username, _ := claims["username"].(string)
	role, _ := claims["role"].(string)

	return Identity{
		UserID:   uint(userID),
		Username: username,
		Role:     role,
	}, nil
}
