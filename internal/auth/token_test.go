package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestVerifyValidToken(t *testing.T) {
	token, err := Issue(7, "alice", testSecret, time.Hour)
	require.NoError(t, err)

	identity, err := Verify(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "7", identity.UserID)
	assert.Equal(t, "alice", identity.DisplayName)
	assert.WithinDuration(t, time.Now().Add(time.Hour), identity.ExpiresAt, time.Minute)
}

func TestVerifyFailures(t *testing.T) {
	t.Run("Garbage", func(t *testing.T) {
		_, err := Verify("not-a-jwt", testSecret)
		assert.True(t, errors.Is(err, ErrInvalidFormat), "got %v", err)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		token, err := Issue(7, "alice", "other-secret", time.Hour)
		require.NoError(t, err)
		_, err = Verify(token, testSecret)
		assert.ErrorIs(t, err, ErrSignatureMismatch)
	})

	t.Run("Expired", func(t *testing.T) {
		token, err := Issue(7, "alice", testSecret, -time.Minute)
		require.NoError(t, err)
		_, err = Verify(token, testSecret)
		assert.ErrorIs(t, err, ErrExpired)
	})

	t.Run("MissingUserID", func(t *testing.T) {
		raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"username": "alice",
			"exp":      time.Now().Add(time.Hour).Unix(),
		})
		token, err := raw.SignedString([]byte(testSecret))
		require.NoError(t, err)
		_, err = Verify(token, testSecret)
		assert.True(t, errors.Is(err, ErrInvalidFormat), "got %v", err)
	})

	t.Run("UnexpectedAlg", func(t *testing.T) {
		// alg=none tokens must never verify.
		raw := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			"user_id": float64(7),
			"exp":     time.Now().Add(time.Hour).Unix(),
		})
		token, err := raw.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = Verify(token, testSecret)
		assert.Error(t, err)
	})
}

func TestVerifyStringUserID(t *testing.T) {
	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  "abc-123",
		"username": "bob",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	token, err := raw.SignedString([]byte(testSecret))
	require.NoError(t, err)

	identity, err := Verify(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", identity.UserID)
}
