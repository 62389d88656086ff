package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"ms-marketplace/internal/models"
)

// BuyerFromToken decodes a buyer from a JWT without verifying the
// signature. For trusted internal callers only (the gateway has already
// verified the token); HTTP requests go through Middleware instead.
func BuyerFromToken(tokenString string) (models.Buyer, error) {
	if tokenString == "" {
		return models.Buyer{}, errors.New("empty token")
	}

	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return models.Buyer{}, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Buyer{}, errors.New("invalid token claims")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return models.Buyer{}, errors.New("subject claim not found in token")
	}
	email, _ := claims["email"].(string)
	userType, _ := claims["user_type"].(string)
	privileged, _ := claims["privileged"].(bool)

	return models.Buyer{
		ID:           sub,
		Email:        email,
		IsReseller:   userType == "reseller",
		IsPrivileged: privileged,
	}, nil
}
