// Package auth resolves bearer tokens to user identities. Account management
// and login live elsewhere; this package only verifies what they issued.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/seika-app/seika-server/internal/domain"
)

type contextKey int

const userIDKey contextKey = iota

// Verifier validates HMAC-signed tokens and extracts the user identity.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for tokens signed with the given secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// UserIDFromToken verifies the token and returns its subject. Any parse,
// signature, or expiry failure maps to domain.ErrUnauthenticated.
func (v *Verifier) UserIDFromToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", domain.ErrUnauthenticated
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", domain.ErrUnauthenticated
	}
	return sub, nil
}

// IssueToken signs a token for the given user. Used by the development login
// helper and by tests; production tokens come from the account service.
func (v *Verifier) IssueToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// UserIDFromContext extracts the authenticated user ID from the request
// context. Empty if the request did not pass through Middleware.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// TokenFromRequest pulls the bearer token from the Authorization header, or
// from the token query parameter for transports that cannot set headers
// (the websocket upgrade).
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// Middleware rejects requests without a valid token and injects the user ID
// into the request context.
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := v.UserIDFromToken(TokenFromRequest(r))
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthenticated"}`))
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
