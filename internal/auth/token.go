package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidFormat     = errors.New("token does not parse")
	ErrSignatureMismatch = errors.New("token signature mismatch")
	ErrExpired           = errors.New("token expired")
)

// Identity is the claim set extracted from a verified token.
type Identity struct {
	UserID      string
	DisplayName string
	ExpiresAt   time.Time
}

// Verify validates an HS256 bearer token against the shared secret and
// extracts the identity claims. Pure: no I/O beyond the signature check.
func Verify(tokenString, secret string) (*Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrSignatureMismatch
		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
		}
	}
	if !token.Valid {
		return nil, ErrSignatureMismatch
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidFormat
	}

	identity := &Identity{}
	switch v := claims["user_id"].(type) {
	case float64:
		identity.UserID = fmt.Sprintf("%.0f", v)
	case string:
		identity.UserID = v
	default:
		return nil, fmt.Errorf("%w: missing user_id claim", ErrInvalidFormat)
	}
	if name, ok := claims["username"].(string); ok {
		identity.DisplayName = name
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		identity.ExpiresAt = exp.Time
	}
	return identity, nil
}

// Issue signs a token for a user. Used by the login handler; the coordinator
// only ever verifies.
func Issue(userID uint, username, secret string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id":  float64(userID),
		"username": username,
		"exp":      time.Now().Add(ttl).Unix(),
		"iat":      time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
