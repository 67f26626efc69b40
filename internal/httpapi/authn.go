package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"gatepass.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withAuth attaches the authenticated principal when a bearer token is
// presented. Requests without a token proceed anonymously; each
// protected handler enforces its own permission, which is the one
// canonical policy for the whole surface.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		header := strings.TrimSpace(r.Header.Get(authHeader))
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(header)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			} else {
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := auth.ContextWithUser(r.Context(), claims.Subject, claims.Roles)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requirePermission writes the error response itself and reports
// whether the handler may proceed.
func (a *API) requirePermission(w http.ResponseWriter, r *http.Request, perm string) bool {
	if _, ok := auth.UserIDFromContext(r.Context()); !ok {
		w.Header().Set("WWW-Authenticate", `Bearer realm="gatepass"`)
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !auth.HasPermission(auth.RolesFromContext(r.Context()), perm) {
		w.Header().Set("WWW-Authenticate", `Bearer realm="gatepass"`)
		writeError(w, r, http.StatusForbidden, "insufficient permissions")
		return false
	}
	return true
}

func extractBearerToken(header string) (string, error) {
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
