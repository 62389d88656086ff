package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestBuyerFromToken(t *testing.T) {
	raw := signedToken(t, jwt.MapClaims{
		"sub":        "user-1",
		"email":      "shop@example.com",
		"user_type":  "reseller",
		"privileged": false,
		"exp":        time.Now().Add(time.Hour).Unix(),
	})

	buyer, err := BuyerFromToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", buyer.ID)
	assert.Equal(t, "shop@example.com", buyer.Email)
	assert.True(t, buyer.IsReseller)
	assert.False(t, buyer.IsPrivileged)
}

func TestBuyerFromTokenDefaults(t *testing.T) {
	raw := signedToken(t, jwt.MapClaims{"sub": "user-2"})

	buyer, err := BuyerFromToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-2", buyer.ID)
	assert.False(t, buyer.IsReseller)
	assert.False(t, buyer.IsPrivileged)
}

func TestBuyerFromTokenRejectsGarbage(t *testing.T) {
	_, err := BuyerFromToken("")
	assert.Error(t, err)

	_, err = BuyerFromToken("not-a-jwt")
	assert.Error(t, err)

	_, err = BuyerFromToken(signedToken(t, jwt.MapClaims{"email": "nobody@example.com"}))
	assert.Error(t, err, "token without sub is rejected")
}
