package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/tjfontaine/lambda-api/internal/domain"
)

// userContextKey is the context key for the signed-in user.
type userContextKey struct{}

// SessionResolver resolves a bearer session token to its user.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*domain.User, *domain.Session, error)
}

// SessionCookieName is the cookie set at sign-in.
const SessionCookieName = "session_token"

// SessionToken extracts the session token from an "Authorization: Bearer
// <token>" header, falling back to the session cookie. Returns "" when absent.
func SessionToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

// SessionMiddleware attaches the signed-in user to the context when the
// request carries a valid session token. Anonymous requests pass through;
// routes that require a user check GetUser themselves.
func SessionMiddleware(resolver SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionToken(r)
			if token == "" || resolver == nil {
				next.ServeHTTP(w, r)
				return
			}

			user, sess, err := resolver.ResolveSession(r.Context(), token)
			if err != nil || user == nil {
				next.ServeHTTP(w, r)
				return
			}

			AddLogField(r.Context(), "user_id", user.ID)
			ctx := WithUser(r.Context(), user, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type sessionInfo struct {
	user    *domain.User
	session *domain.Session
}

// WithUser returns a context carrying the user and session.
func WithUser(ctx context.Context, user *domain.User, sess *domain.Session) context.Context {
	return context.WithValue(ctx, userContextKey{}, &sessionInfo{user: user, session: sess})
}

// GetUser retrieves the signed-in user from context.
// Returns nil if no user is set.
func GetUser(ctx context.Context) *domain.User {
	if info, ok := ctx.Value(userContextKey{}).(*sessionInfo); ok {
		return info.user
	}
	return nil
}

// GetSession retrieves the current session from context.
// Returns nil if no session is set.
func GetSession(ctx context.Context) *domain.Session {
	if info, ok := ctx.Value(userContextKey{}).(*sessionInfo); ok {
		return info.session
	}
	return nil
}
