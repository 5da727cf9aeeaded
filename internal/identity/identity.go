// Package identity resolves credentials to user identities.
//
// Identity issuance lives outside this service; we only verify the signed
// token and map its subject to a stable user ID. An invalid or missing
// credential never produces an anonymous session.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/domain"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/store"
)

// ErrAuthRejected indicates a bad or missing credential. Connections and
// requests carrying one are rejected before any registration happens.
var ErrAuthRejected = errors.New("auth rejected")

type contextKey int

const userIDKey contextKey = iota

// Verifier resolves a credential to a user identity or fails.
type Verifier interface {
	Verify(token string) (userID string, err error)
}

// JWTVerifier verifies HS256 tokens with a shared secret. The token subject
// is the account email, which doubles as the stable user ID.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for the given shared secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses and validates the token and returns its subject.
func (v *JWTVerifier) Verify(token string) (string, error) {
	if token == "" {
		return "", ErrAuthRejected
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrAuthRejected, err)
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrAuthRejected)
	}
	return subject, nil
}

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// WithUserID returns a context carrying the resolved user ID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// EnsureUser creates a minimal user row on first contact so chat-initiated
// flows work without a separate signup step.
func EnsureUser(ctx context.Context, repo store.Repository, userID string) (*domain.User, error) {
	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	now := time.Now()
	user = &domain.User{
		UserID:     userID,
		Email:      userID,
		Name:       nameFromEmail(userID),
		Department: "unknown",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := repo.UpsertUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func nameFromEmail(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}

// Middleware authenticates HTTP requests with a Bearer token (or a token
// query parameter) and injects the resolved user ID into the context.
func Middleware(verifier Verifier, repo store.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			userID, err := verifier.Verify(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid or missing credential")
				return
			}

			if _, err := EnsureUser(r.Context(), repo, userID); err != nil {
				writeError(w, http.StatusInternalServerError, "failed to initialize user")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": msg}); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
