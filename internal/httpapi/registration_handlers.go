package httpapi

import (
	"net/http"
	"strings"

	"gatepass.org/internal/auth"
)

// handleRegistrationResource routes /v1/registrations/{id} and the
// approve/reject transitions.
func (a *API) handleRegistrationResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/registrations/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if id, ok := strings.CutSuffix(path, "/approve"); ok {
		a.reviewRegistration(w, r, id, true)
		return
	}
	if id, ok := strings.CutSuffix(path, "/reject"); ok {
		a.reviewRegistration(w, r, id, false)
		return
	}
	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requirePermission(w, r, auth.PermRegistrationsReview) {
		return
	}
	reg, err := a.registrations.Get(r.Context(), path)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

func (a *API) reviewRegistration(w http.ResponseWriter, r *http.Request, id string, approve bool) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requirePermission(w, r, auth.PermRegistrationsReview) {
		return
	}

	actorID, _ := auth.UserIDFromContext(r.Context())
	var err error
	var reg any
	if approve {
		reg, err = a.registrations.Approve(r.Context(), id, actorID)
	} else {
		reg, err = a.registrations.Reject(r.Context(), id, actorID)
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}
