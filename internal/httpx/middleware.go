package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/thriftian/marketplace/internal/auth"
)

type Verifier interface {
	Verify(ctx context.Context, token string) (auth.Principal, error)
}

// Resolver loads the stored role for a verified principal.
type Resolver interface {
	Resolve(ctx context.Context, p auth.Principal) (auth.Identity, error)
}

type contextKey string

const identityKey contextKey = "identity"

func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey).(auth.Identity)
	return id, ok
}

// extractToken checks the Authorization header, then the access_token
// cookie, then ?token=.
func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie("access_token"); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

// socketToken skips the cookie: a browser attaches it to cross-site
// WebSocket upgrades, which the same-origin policy does not cover.
func socketToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

func Authenticate(v Verifier, res Resolver, log *slog.Logger) func(http.Handler) http.Handler {
	return authenticate(v, res, log, extractToken)
}

// AuthenticateSocket is Authenticate for WebSocket upgrades. The token must
// come from the Authorization header or ?token=.
func AuthenticateSocket(v Verifier, res Resolver, log *slog.Logger) func(http.Handler) http.Handler {
	return authenticate(v, res, log, socketToken)
}

func authenticate(v Verifier, res Resolver, log *slog.Logger, token func(*http.Request) string) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := token(r)
			if tok == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
				return
			}
			p, err := v.Verify(r.Context(), tok)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid token"})
				return
			}
			id, err := res.Resolve(r.Context(), p)
			if err != nil {
				writeError(w, r, log, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
				return
			}
			for _, role := range roles {
				if id.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
		})
	}
}

// actor is the zero identity on anonymous requests.
func actor(r *http.Request) auth.Identity {
	id, _ := IdentityFrom(r.Context())
	return id
}

// OptionalAuthenticate attaches the caller's identity when a valid token is
// present and lets anonymous requests through otherwise.
func OptionalAuthenticate(v Verifier, res Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := extractToken(r); token != "" {
				if p, err := v.Verify(r.Context(), token); err == nil {
					if id, err := res.Resolve(r.Context(), p); err == nil {
						r = r.WithContext(WithIdentity(r.Context(), id))
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
