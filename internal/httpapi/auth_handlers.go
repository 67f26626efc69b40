package httpapi

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"gatepass.org/internal/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token       string     `json:"token"`
	ExpiresAt   time.Time  `json:"expires_at"`
	User        *auth.User `json:"user"`
	Permissions []string   `json:"permissions"`
}

// grantedPermissions flattens the role capability set into a sorted
// list for the login response.
func grantedPermissions(roles []string) []string {
	set := auth.PermissionsForRoles(roles)
	perms := make([]string, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	return perms
}

const tokenTTL = 12 * time.Hour

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := a.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	token, err := auth.GenerateToken(user.ID, []string{user.Role}, tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	a.audit(r.Context(), "auth.login", map[string]any{
		"user_id": user.ID,
		"role":    user.Role,
	})
	writeJSON(w, http.StatusOK, loginResponse{
		Token:       token,
		ExpiresAt:   time.Now().UTC().Add(tokenTTL),
		User:        user,
		Permissions: grantedPermissions([]string{user.Role}),
	})
}
