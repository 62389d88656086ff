// Package auth verifies buyer identity tokens and puts the resolved buyer
// on the request context.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"ms-marketplace/internal/models"
)

type contextKey string

const buyerKey contextKey = "buyer"

// Middleware verifies the bearer token against the OIDC issuer and stores
// the buyer in the context. SkipClientIDCheck because tokens are minted
// for the marketplace frontend client, not for this service.
func Middleware(issuer string) (func(http.Handler) http.Handler, error) {
	provider, err := oidc.NewProvider(context.Background(), issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to reach OIDC issuer %s: %w", issuer, err)
	}
	verifier := provider.Verifier(&oidc.Config{SkipClientIDCheck: true})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := bearerToken(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			idToken, err := verifier.Verify(r.Context(), raw)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			var claims struct {
				Sub        string `json:"sub"`
				Email      string `json:"email"`
				UserType   string `json:"user_type"`
				Privileged bool   `json:"privileged"`
			}
			if err := idToken.Claims(&claims); err != nil {
				http.Error(w, "failed to parse claims", http.StatusUnauthorized)
				return
			}

			buyer := models.Buyer{
				ID:           claims.Sub,
				Email:        claims.Email,
				IsReseller:   claims.UserType == "reseller",
				IsPrivileged: claims.Privileged,
			}
			next.ServeHTTP(w, r.WithContext(WithBuyer(r.Context(), buyer)))
		})
	}, nil
}

// WithBuyer stores the buyer on the context. Exposed for handler tests.
func WithBuyer(ctx context.Context, b models.Buyer) context.Context {
	return context.WithValue(ctx, buyerKey, b)
}

// BuyerFromContext returns the verified buyer placed by Middleware.
func BuyerFromContext(ctx context.Context) (models.Buyer, bool) {
	b, ok := ctx.Value(buyerKey).(models.Buyer)
	return b, ok
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("missing Authorization header")
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("authorization header format must be 'Bearer {token}'")
	}
	return parts[1], nil
}
