// Package identity resolves the calling founder from a bearer token, with an
// anonymous per-device fallback for local development.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/foundersync/internal/domain"
	"github.com/ashureev/foundersync/internal/store"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

const (
	AnonCookieName   = "foundersync_anon_id"
	TokenQueryParam  = "access_token"
	anonCookieMaxAge = 30 * 24 * time.Hour
	lastSeenInterval = 5 * time.Minute
)

type contextKey int

const (
	userIDKey contextKey = iota
	emailKey
)

var anonIDPattern = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)

// Options configures Middleware.
type Options struct {
	// JWTSecret verifies HS256 bearer tokens. Empty disables token auth.
	JWTSecret []byte
	// AllowAnonymous issues a device cookie identity when no token is sent.
	AllowAnonymous bool
	// IsDev relaxes cookie security for plain-HTTP local use.
	IsDev bool
}

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// EmailFromContext extracts the token email claim, if any.
func EmailFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(emailKey).(string); ok {
		return v
	}
	return ""
}

// WithUser returns a context carrying userID. It is used by tests and the CLI.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	// Browsers cannot set headers on WebSocket upgrades.
	return r.URL.Query().Get(TokenQueryParam)
}

// VerifyToken validates an HS256 token and returns its subject and email claim.
func VerifyToken(raw string, secret []byte) (userID, email string, err error) {
	tok, err := jwt.Parse([]byte(raw), jwt.WithKey(jwa.HS256(), secret))
	if err != nil {
		return "", "", fmt.Errorf("verify token: %w", err)
	}
	sub, ok := tok.Subject()
	if !ok || sub == "" {
		return "", "", fmt.Errorf("verify token: missing subject")
	}
	if err := tok.Get("email", &email); err != nil {
		email = ""
	}
	return sub, email, nil
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func getOrCreateAnonID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	id := ""
	if c, err := r.Cookie(AnonCookieName); err == nil && anonIDPattern.MatchString(c.Value) {
		id = c.Value
	} else {
		id, err = generateAnonID()
		if err != nil {
			return "", err
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
	return id, nil
}

func ensureUser(ctx context.Context, repo store.Repository, userID, email string) error {
	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	now := time.Now()
	if user == nil || (email != "" && user.Email != email) {
		return repo.UpsertUser(ctx, &domain.User{UserID: userID, Email: email, LastSeenAt: now})
	}
	if now.Sub(user.LastSeenAt) > lastSeenInterval {
		return repo.UpdateLastSeen(ctx, userID, now)
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q}`, msg)
}

// Middleware resolves the caller and records them in the user table.
// Requests without any identity pass through unauthenticated; handlers reject them.
func Middleware(repo store.Repository, opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var userID, email string

			if raw := bearerToken(r); raw != "" && len(opts.JWTSecret) > 0 {
				var err error
				userID, email, err = VerifyToken(raw, opts.JWTSecret)
				if err != nil {
					slog.Debug("Rejected bearer token", "error", err, "ip", IPFromRequest(r))
					writeError(w, http.StatusUnauthorized, "invalid token")
					return
				}
			} else if opts.AllowAnonymous {
				var err error
				userID, err = getOrCreateAnonID(w, r, opts.IsDev)
				if err != nil {
					writeError(w, http.StatusInternalServerError, "failed to establish anonymous identity")
					return
				}
			}

			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			if err := ensureUser(r.Context(), repo, userID, email); err != nil {
				slog.Error("Failed to record user", "user_id", userID, "error", err)
				writeError(w, http.StatusInternalServerError, "failed to initialize user")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			ctx = context.WithValue(ctx, emailKey, email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
