// Package auth issues and verifies the signed tokens used by the identity
// core. Access and refresh tokens are signed with distinct HMAC keys and
// distinct lifetimes so that leaking one does not compromise the other's
// validity window.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/carecircle/carecircle/internal/common"
)

// Claims carries the identity payload embedded in every token. Roles and
// permissions are deliberately absent: they are relation-scoped and
// re-resolved per request.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// GenerateToken signs a token for the given identity, valid for
// validityDuration from now.
func GenerateToken(userID, email, name string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		UserID: userID,
		Email:  email,
		Name:   name,
	})

	return token.SignedString(secretKey)
}

// ParseToken verifies a token against the given key and returns its claims.
// Verification failure is an explicit result, not a generic error: expired
// tokens map to common.ErrTokenExpired and every other failure (bad
// signature, malformed payload, wrong algorithm) to common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
