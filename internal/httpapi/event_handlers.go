package httpapi

import (
	"net/http"
	"strings"
	"time"

	"gatepass.org/internal/auth"
	"gatepass.org/internal/registration"
	"gatepass.org/internal/registry"
)

type eventRequest struct {
	Name             string    `json:"name"`
	EventType        string    `json:"event_type"`
	DateTime         time.Time `json:"date_time"`
	Location         string    `json:"location"`
	Description      string    `json:"description"`
	MaxCapacity      int       `json:"max_capacity"`
	FinancialSupport bool      `json:"financial_support"`
}

func (req *eventRequest) validate() string {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return "name is required"
	case strings.TrimSpace(req.Location) == "":
		return "location is required"
	case req.DateTime.IsZero():
		return "date_time is required"
	case req.MaxCapacity < 0:
		return "max_capacity must be >= 0"
	}
	return ""
}

func (a *API) handleEventsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listEvents(w, r)
	case http.MethodPost:
		a.createEvent(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleEventResource routes /v1/events/{id} and its two subresources.
func (a *API) handleEventResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/events/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if id, ok := strings.CutSuffix(path, "/registrations"); ok {
		a.handleEventRegistrations(w, r, id)
		return
	}
	if id, ok := strings.CutSuffix(path, "/attendance"); ok {
		a.handleEventAttendance(w, r, id)
		return
	}
	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getEvent(w, r, path)
	case http.MethodPut:
		a.updateEvent(w, r, path)
	case http.MethodDelete:
		a.deleteEvent(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) listEvents(w http.ResponseWriter, r *http.Request) {
	events, err := a.store.ListEvents(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if events == nil {
		events = []*registry.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": events})
}

func (a *API) getEvent(w http.ResponseWriter, r *http.Request, id string) {
	event, err := a.store.GetEvent(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (a *API) createEvent(w http.ResponseWriter, r *http.Request) {
	if !a.requirePermission(w, r, auth.PermEventsWrite) {
		return
	}
	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, r, http.StatusBadRequest, msg)
		return
	}

	adminID, _ := auth.UserIDFromContext(r.Context())
	event := &registry.Event{
		Name:             strings.TrimSpace(req.Name),
		EventType:        strings.TrimSpace(req.EventType),
		DateTime:         req.DateTime,
		Location:         strings.TrimSpace(req.Location),
		Description:      strings.TrimSpace(req.Description),
		MaxCapacity:      req.MaxCapacity,
		FinancialSupport: req.FinancialSupport,
		AdminID:          adminID,
	}
	if err := a.store.CreateEvent(r.Context(), event); err != nil {
		handleServiceError(w, r, err)
		return
	}

	a.audit(r.Context(), "event.create", map[string]any{
		"event_id": event.ID,
		"name":     event.Name,
	})
	w.Header().Set("Location", "/v1/events/"+event.ID)
	writeJSON(w, http.StatusCreated, event)
}

func (a *API) updateEvent(w http.ResponseWriter, r *http.Request, id string) {
	if !a.requirePermission(w, r, auth.PermEventsWrite) {
		return
	}
	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, r, http.StatusBadRequest, msg)
		return
	}

	current, err := a.store.GetEvent(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	current.Name = strings.TrimSpace(req.Name)
	current.EventType = strings.TrimSpace(req.EventType)
	current.DateTime = req.DateTime
	current.Location = strings.TrimSpace(req.Location)
	current.Description = strings.TrimSpace(req.Description)
	current.MaxCapacity = req.MaxCapacity
	current.FinancialSupport = req.FinancialSupport
	if err := a.store.UpdateEvent(r.Context(), current); err != nil {
		handleServiceError(w, r, err)
		return
	}

	a.audit(r.Context(), "event.update", map[string]any{"event_id": id})
	writeJSON(w, http.StatusOK, current)
}

func (a *API) deleteEvent(w http.ResponseWriter, r *http.Request, id string) {
	if !a.requirePermission(w, r, auth.PermEventsWrite) {
		return
	}
	if err := a.store.DeleteEvent(r.Context(), id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.audit(r.Context(), "event.delete", map[string]any{"event_id": id})
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// handleEventRegistrations: public submission, admin review listing.
func (a *API) handleEventRegistrations(w http.ResponseWriter, r *http.Request, eventID string) {
	switch r.Method {
	case http.MethodPost:
		a.submitRegistration(w, r, eventID)
	case http.MethodGet:
		a.listEventRegistrations(w, r, eventID)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) submitRegistration(w http.ResponseWriter, r *http.Request, eventID string) {
	var req registration.SubmitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.EventID = eventID

	reg, err := a.registrations.Submit(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/registrations/"+reg.ID)
	writeJSON(w, http.StatusCreated, reg)
}

func (a *API) listEventRegistrations(w http.ResponseWriter, r *http.Request, eventID string) {
	if !a.requirePermission(w, r, auth.PermRegistrationsReview) {
		return
	}
	status := registry.RegistrationStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	items, err := a.registrations.ListByEvent(r.Context(), eventID, status)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []*registry.Registration{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// handleEventAttendance: staff listing of who is in the room.
func (a *API) handleEventAttendance(w http.ResponseWriter, r *http.Request, eventID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requirePermission(w, r, auth.PermAttendanceRead) {
		return
	}
	items, err := a.checkin.ListEventAttendance(r.Context(), eventID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []*registry.Attendance{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
