package httpapi

import (
	"errors"
	"net/http"

	"akademi.org/internal/identity"
	"akademi.org/internal/token"
)

var publicPaths = []string{
	"/",
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
	"/v1/auth/login",
	"/v1/auth/refresh",
}

// withAuth gates every non-public path behind a bearer access token. The
// resolved identity and the raw token ride the request context so handlers
// and logout can reach them.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		raw := token.ExtractFromHeader(r.Header.Get("Authorization"))
		if raw == "" {
			writeError(w, r, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := a.login.ValidateAccessToken(r.Context(), raw)
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}

		id, err := a.login.Directory().FindByID(r.Context(), claims.Subject)
		if err != nil {
			// A subject that vanished between issue and use is simply an
			// invalid credential, not a 404.
			if errors.Is(err, identity.ErrNotFound) {
				writeError(w, r, http.StatusUnauthorized, identity.CodeAuthentication)
				return
			}
			handleIdentityError(w, r, err)
			return
		}
		if id.Status != "" && id.Status != identity.StatusActive {
			writeError(w, r, http.StatusUnauthorized, identity.CodeAuthentication)
			return
		}

		ctx := identity.ContextWithIdentity(r.Context(), *id)
		ctx = identity.ContextWithToken(ctx, raw)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
