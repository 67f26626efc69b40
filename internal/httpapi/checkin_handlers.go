package httpapi

import (
	"net/http"
	"strings"

	"gatepass.org/internal/auth"
	"gatepass.org/internal/checkin"
)

type scanRequest struct {
	Payload string `json:"payload"`
}

func (a *API) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requirePermission(w, r, auth.PermAttendanceScan) {
		return
	}

	var req scanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Payload) == "" {
		writeError(w, r, http.StatusBadRequest, "payload is required")
		return
	}

	res, err := a.checkin.Scan(r.Context(), req.Payload)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	// A repeated scan is a success, not a conflict.
	code := http.StatusCreated
	if res.Status != checkin.ResultNewlyCheckedIn {
		code = http.StatusOK
	}
	writeJSON(w, code, res)
}

func (a *API) handleAttendanceList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requirePermission(w, r, auth.PermAttendanceRead) {
		return
	}

	page, err := parsePositiveInt(r.URL.Query().Get("page"), 1, 1, 1_000_000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 10, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 100")
		return
	}

	res, err := a.checkin.ListAttendance(r.Context(), strings.TrimSpace(r.URL.Query().Get("event_id")), page, limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type bankUpdateRequest struct {
	BankAccountNumber string `json:"bank_account_number"`
	BankName          string `json:"bank_name"`
}

// handleAttendanceResource routes /v1/attendance/{id}/bank.
func (a *API) handleAttendanceResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/attendance/")
	id, ok := strings.CutSuffix(path, "/bank")
	if !ok || id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.requirePermission(w, r, auth.PermBankUpdate) {
		return
	}

	var req bankUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := a.checkin.UpdateBankInfo(r.Context(), id, req.BankAccountNumber, req.BankName)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleBadgeDownload serves the rendered PDF for a registration.
func (a *API) handleBadgeDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requirePermission(w, r, auth.PermAttendanceRead) {
		return
	}

	registrationID := strings.TrimPrefix(r.URL.Path, "/v1/badges/")
	if registrationID == "" || strings.Contains(registrationID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	b, err := a.badges.Get(r.Context(), registrationID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="badge-`+registrationID+`.pdf"`)
	http.ServeFile(w, r, b.ArtifactPath)
}
