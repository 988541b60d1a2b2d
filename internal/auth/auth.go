// Package auth verifies bearer credentials on the admin API and resolves the
// caller's administrator capability from their player document.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/joshkautz/winter-league-rankings/internal/apperr"
	"github.com/joshkautz/winter-league-rankings/internal/model"
)

// Identity is the authenticated caller extracted from a bearer token.
type Identity struct {
	UserID        string
	EmailVerified bool
	Claims        map[string]any
}

// Claims is the token payload the platform issues: registered claims plus
// the email verification flag.
type Claims struct {
	EmailVerified bool `json:"email_verified"`
	jwt.RegisteredClaims
}

// Verifier validates HS256-signed platform tokens.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier. An empty secret disables authentication
// entirely: every call is rejected, which fails safe on misconfiguration.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a bearer token and returns the caller identity.
func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	if len(v.secret) == 0 {
		return nil, apperr.New(apperr.Unauthenticated, "authentication is not configured")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, apperr.New(apperr.Unauthenticated, "invalid credentials")
	}
	if claims.Subject == "" {
		return nil, apperr.New(apperr.Unauthenticated, "token has no subject")
	}

	return &Identity{
		UserID:        claims.Subject,
		EmailVerified: claims.EmailVerified,
		Claims:        map[string]any{"email_verified": claims.EmailVerified},
	}, nil
}

// PlayerLoader resolves a caller's player document.
type PlayerLoader interface {
	GetPlayer(ctx context.Context, playerID string) (*model.Player, error)
}

// RequireAdmin checks the administrator capability: the caller's email must
// be verified and their player document must carry admin = true.
func RequireAdmin(ctx context.Context, loader PlayerLoader, id *Identity) error {
	if !id.EmailVerified {
		return apperr.New(apperr.PermissionDenied, "email address is not verified")
	}
	player, err := loader.GetPlayer(ctx, id.UserID)
	if errors.Is(err, model.ErrNotFound) {
		return apperr.New(apperr.PermissionDenied, "caller has no player profile")
	}
	if err != nil {
		return fmt.Errorf("load caller player: %w", err)
	}
	if !player.Admin {
		return apperr.New(apperr.PermissionDenied, "administrator capability required")
	}
	return nil
}

// --------------------------------------------------------------------------
// HTTP middleware
// --------------------------------------------------------------------------

type contextKey struct{}

// WithIdentity returns a context carrying the identity. Middleware uses it;
// tests exercise handlers with it directly.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity stored by Middleware.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(*Identity)
	return id, ok
}

// Middleware authenticates the request's bearer token and stores the
// identity on the request context. Rejections use the error envelope via
// the provided reject func, keeping this package free of response shaping.
func (v *Verifier) Middleware(reject func(w http.ResponseWriter, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				reject(w, apperr.New(apperr.Unauthenticated, "missing bearer credentials"))
				return
			}
			tokenString := strings.TrimPrefix(header, "Bearer ")
			if tokenString == header {
				reject(w, apperr.New(apperr.Unauthenticated, "authorization header is not a bearer token"))
				return
			}

			id, err := v.Verify(tokenString)
			if err != nil {
				reject(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
