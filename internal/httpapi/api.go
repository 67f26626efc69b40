// Package httpapi is the HTTP surface: routing, middleware, and the
// mapping from service errors to status codes.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gatepass.org/internal/audit"
	"gatepass.org/internal/auth"
	"gatepass.org/internal/badge"
	"gatepass.org/internal/checkin"
	"gatepass.org/internal/obs"
	"gatepass.org/internal/registration"
	"gatepass.org/internal/registry"
	"gatepass.org/internal/stream"
)

// ReadyProbe answers /readyz; with a DB it pings, without one it is
// always ready.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config carries the wired services into the HTTP layer.
type Config struct {
	Version       string
	Ready         ReadyProbe
	Auth          *auth.Service
	Store         registry.Store
	Registrations *registration.Service
	Checkin       *checkin.Service
	Badges        *badge.Issuer
	Feed          *stream.Stream
}

type API struct {
	mux           *http.ServeMux
	readyProbe    ReadyProbe
	version       string
	auth          *auth.Service
	store         registry.Store
	registrations *registration.Service
	checkin       *checkin.Service
	badges        *badge.Issuer
	feed          *stream.Stream

	rateBurst  int
	ratePerSec int
}

func New(cfg Config) *API {
	a := &API{
		mux:           http.NewServeMux(),
		readyProbe:    cfg.Ready,
		version:       cfg.Version,
		auth:          cfg.Auth,
		store:         cfg.Store,
		registrations: cfg.Registrations,
		checkin:       cfg.Checkin,
		badges:        cfg.Badges,
		feed:          cfg.Feed,
		rateBurst:     50,
		ratePerSec:    25,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)

	a.mux.HandleFunc("/v1/events", a.handleEventsCollection)
	a.mux.HandleFunc("/v1/events/", a.handleEventResource)
	// Review operations are admin-only across the board, so the whole
	// subtree is role-gated before the per-handler permission checks.
	a.mux.Handle("/v1/registrations/", RequireRole(auth.RoleAdmin)(http.HandlerFunc(a.handleRegistrationResource)))

	a.mux.HandleFunc("/v1/scan", a.handleScan)
	a.mux.HandleFunc("/v1/attendance", a.handleAttendanceList)
	a.mux.HandleFunc("/v1/attendance/", a.handleAttendanceResource)
	a.mux.HandleFunc("/v1/badges/", a.handleBadgeDownload)

	a.mux.HandleFunc("/v1/stream/checkins", a.Stream)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the mux wrapped in the full middleware chain.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

// --- baseline handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "gatepass-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "gatepass-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) audit(ctx context.Context, event string, fields map[string]any) {
	_ = audit.LogEvent(ctx, event, fields)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("value must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("value out of range")
	}
	return val, nil
}

// handleServiceError maps the service error taxonomy onto status codes.
// Idempotent conflicts never reach here; they resolve to success paths.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, checkin.ErrInvalidScan),
		errors.Is(err, checkin.ErrBankFieldsRequired),
		errors.Is(err, registration.ErrFullNameRequired),
		errors.Is(err, registration.ErrPhoneRequired),
		errors.Is(err, registration.ErrIdentityRequired),
		errors.Is(err, registration.ErrIdentityConflict),
		errors.Is(err, registration.ErrInvalidNationalID),
		errors.Is(err, registration.ErrInvalidPassport),
		errors.Is(err, registration.ErrInvalidStatusFilter):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, checkin.ErrExpiredScan):
		writeError(w, r, http.StatusGone, err.Error())
	case errors.Is(err, registration.ErrUnauthorizedActor):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, registration.ErrEventNotFound),
		errors.Is(err, registry.ErrNotFound),
		errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrDuplicateRegistration),
		errors.Is(err, registry.ErrInvalidTransition):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, checkin.ErrStorageUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "storage unavailable")
	case errors.Is(err, checkin.ErrScanTimedOut):
		writeError(w, r, http.StatusGatewayTimeout, "scan timed out, please re-scan")
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
