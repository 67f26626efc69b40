package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"gatepass.org/internal/auth"
	"gatepass.org/internal/badge"
	"gatepass.org/internal/checkin"
	"gatepass.org/internal/obs"
	"gatepass.org/internal/registration"
	"gatepass.org/internal/registry"
	"gatepass.org/internal/stream"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	store   *registry.InMemory
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	t.Setenv("GATEPASS_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()

	store := registry.NewInMemory()
	users := auth.NewInMemoryUsers()
	seedUser(t, users, "admin", "admin-secret", auth.RoleAdmin)
	seedUser(t, users, "door", "door-secret", auth.RoleStaff)
	authSvc := auth.NewService(users)

	feed := stream.New()
	issuer := badge.NewIssuer(store, t.TempDir())
	regSvc := registration.NewService(store, authSvc, issuer, nil)
	scanSvc := checkin.NewService(store, checkin.WithFeed(feed))

	api := New(Config{
		Version:       "test",
		Auth:          authSvc,
		Store:         store,
		Registrations: regSvc,
		Checkin:       scanSvc,
		Badges:        issuer,
		Feed:          feed,
	})
	api.rateBurst = 1000
	api.ratePerSec = 1000

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		store:   store,
		t:       t,
	}
}

func seedUser(t *testing.T, users *auth.InMemoryUsers, username, password, role string) {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if err := users.Create(context.Background(), &auth.User{
		Username:     username,
		FullName:     username,
		Role:         role,
		PasswordHash: hash,
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func (c *apiClient) login(username, password string) string {
	c.t.Helper()
	resp := c.post("/v1/auth/login", map[string]any{
		"username": username,
		"password": password,
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected login status: %d", resp.StatusCode)
	}
	var payload loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.t.Fatalf("decode login response: %v", err)
	}
	if payload.Token == "" {
		c.t.Fatal("empty token issued")
	}
	return payload.Token
}

func authed(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func (c *apiClient) createEvent(token string) *registry.Event {
	c.t.Helper()
	resp := c.post("/v1/events", map[string]any{
		"name":         "GopherConf",
		"event_type":   "conference",
		"date_time":    time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
		"location":     "Kigali",
		"max_capacity": 200,
	}, authed(token))
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("create event: unexpected status %d", resp.StatusCode)
	}
	event := decode[*registry.Event](c.t, resp)
	if event.ID == "" {
		c.t.Fatal("event id not assigned")
	}
	return event
}

func (c *apiClient) waitForBadge(registrationID string) *registry.Badge {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if b, err := c.store.GetBadgeByRegistration(context.Background(), registrationID); err == nil {
			return b
		}
		time.Sleep(20 * time.Millisecond)
	}
	c.t.Fatal("badge was not issued in time")
	return nil
}

func TestRegistrationToScanFlow(t *testing.T) {
	c := newTestAPI(t)
	adminToken := c.login("admin", "admin-secret")
	staffToken := c.login("door", "door-secret")

	event := c.createEvent(adminToken)

	// Public submission, no token.
	resp := c.post("/v1/events/"+event.ID+"/registrations", map[string]any{
		"full_name":    "Alice",
		"phone_number": "0788123456",
		"national_id":  "1234567890123456",
		"email":        "alice@example.com",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit: unexpected status %d", resp.StatusCode)
	}
	reg := decode[*registry.Registration](t, resp)
	if reg.Status != registry.StatusPending {
		t.Fatalf("expected pending registration, got %s", reg.Status)
	}

	// Admin review: one pending registration.
	resp = c.get("/v1/events/"+event.ID+"/registrations", url.Values{"status": {"pending"}}, authed(adminToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list registrations: unexpected status %d", resp.StatusCode)
	}
	listing := decode[struct {
		Items []*registry.Registration `json:"items"`
	}](t, resp)
	if len(listing.Items) != 1 || listing.Items[0].ID != reg.ID {
		t.Fatalf("unexpected pending listing: %+v", listing.Items)
	}

	// Approve; badge issuance is detached so poll for it.
	resp = c.post("/v1/registrations/"+reg.ID+"/approve", nil, authed(adminToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve: unexpected status %d", resp.StatusCode)
	}
	approved := decode[*registry.Registration](t, resp)
	if approved.Status != registry.StatusApproved {
		t.Fatalf("expected approved, got %s", approved.Status)
	}
	b := c.waitForBadge(reg.ID)

	// Second approval must be rejected.
	resp = c.post("/v1/registrations/"+reg.ID+"/approve", nil, authed(adminToken))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("re-approve: expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Staff scans the minted payload.
	resp = c.post("/v1/scan", map[string]any{"payload": b.Payload}, authed(staffToken))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("scan: unexpected status %d", resp.StatusCode)
	}
	first := decode[*checkin.Result](t, resp)
	if first.Status != checkin.ResultNewlyCheckedIn || first.Attendance.FullName != "Alice" {
		t.Fatalf("unexpected scan result: %+v", first)
	}

	// Re-scan is idempotent: same row, same check-in time.
	resp = c.post("/v1/scan", map[string]any{"payload": b.Payload}, authed(staffToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("re-scan: unexpected status %d", resp.StatusCode)
	}
	second := decode[*checkin.Result](t, resp)
	if second.Status != checkin.ResultAlreadyCheckedIn {
		t.Fatalf("expected already-checked-in, got %s", second.Status)
	}
	if !second.Attendance.CheckInTime.Equal(first.Attendance.CheckInTime) {
		t.Fatalf("re-scan changed check-in time: %v vs %v", second.Attendance.CheckInTime, first.Attendance.CheckInTime)
	}

	// The room listing shows Alice.
	resp = c.get("/v1/events/"+event.ID+"/attendance", nil, authed(staffToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("attendance listing: unexpected status %d", resp.StatusCode)
	}
	room := decode[struct {
		Items []*registry.Attendance `json:"items"`
	}](t, resp)
	if len(room.Items) != 1 || room.Items[0].FullName != "Alice" {
		t.Fatalf("unexpected attendance listing: %+v", room.Items)
	}

	// Attach payout details.
	resp = c.do(http.MethodPut, "/v1/attendance/"+first.Attendance.ID+"/bank", map[string]any{
		"bank_account_number": "000123",
		"bank_name":           "Bank of Kigali",
	}, authed(staffToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bank update: unexpected status %d", resp.StatusCode)
	}
	updated := decode[*registry.Attendance](t, resp)
	if updated.BankAccountNumber != "000123" {
		t.Fatalf("bank info not recorded: %+v", updated)
	}
}

func TestScanRequiresAuth(t *testing.T) {
	c := newTestAPI(t)

	resp := c.post("/v1/scan", map[string]any{"payload": "x"}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestStaffCannotReviewRegistrations(t *testing.T) {
	c := newTestAPI(t)
	adminToken := c.login("admin", "admin-secret")
	staffToken := c.login("door", "door-secret")
	event := c.createEvent(adminToken)

	resp := c.get("/v1/events/"+event.ID+"/registrations", nil, authed(staffToken))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.post("/v1/events", map[string]any{"name": "x"}, authed(staffToken))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("staff event create: expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The whole registrations subtree is admin-only.
	resp = c.post("/v1/registrations/any-id/approve", nil, authed(staffToken))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("staff approve: expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.post("/v1/registrations/any-id/approve", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous approve: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLoginReturnsPermissions(t *testing.T) {
	c := newTestAPI(t)

	perms := func(username, password string) map[string]bool {
		resp := c.post("/v1/auth/login", map[string]any{"username": username, "password": password}, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("login %s: unexpected status %d", username, resp.StatusCode)
		}
		payload := decode[loginResponse](t, resp)
		set := make(map[string]bool, len(payload.Permissions))
		for _, p := range payload.Permissions {
			set[p] = true
		}
		return set
	}

	admin := perms("admin", "admin-secret")
	if !admin[auth.PermEventsWrite] || !admin[auth.PermRegistrationsReview] {
		t.Fatalf("admin permissions incomplete: %v", admin)
	}

	staff := perms("door", "door-secret")
	if !staff[auth.PermAttendanceScan] {
		t.Fatalf("staff missing scan permission: %v", staff)
	}
	if staff[auth.PermEventsWrite] || staff[auth.PermRegistrationsReview] {
		t.Fatalf("staff granted admin permissions: %v", staff)
	}
}

func TestSubmitValidationOverHTTP(t *testing.T) {
	c := newTestAPI(t)
	adminToken := c.login("admin", "admin-secret")
	event := c.createEvent(adminToken)

	// Both identity documents.
	resp := c.post("/v1/events/"+event.ID+"/registrations", map[string]any{
		"full_name":    "Alice",
		"phone_number": "0788123456",
		"national_id":  "1234567890123456",
		"passport":     "PC123456",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("both ids: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Neither.
	resp = c.post("/v1/events/"+event.ID+"/registrations", map[string]any{
		"full_name":    "Alice",
		"phone_number": "0788123456",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("no ids: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Unknown event.
	resp = c.post("/v1/events/missing/registrations", map[string]any{
		"full_name":    "Alice",
		"phone_number": "0788123456",
		"national_id":  "1234567890123456",
	}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown event: expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestScanErrorMapping(t *testing.T) {
	c := newTestAPI(t)
	staffToken := c.login("door", "door-secret")

	resp := c.post("/v1/scan", map[string]any{"payload": "hello"}, authed(staffToken))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed payload: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	stale := time.Now().UTC().Add(-25 * time.Hour).Format(time.RFC3339)
	resp = c.post("/v1/scan", map[string]any{
		"payload": `{"registrationId":"R1","eventId":"E1","attendee":"Alice","timestamp":"` + stale + `"}`,
	}, authed(staffToken))
	if resp.StatusCode != http.StatusGone {
		t.Fatalf("expired payload: expected 410, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestEventCRUDAndCascade(t *testing.T) {
	c := newTestAPI(t)
	adminToken := c.login("admin", "admin-secret")
	event := c.createEvent(adminToken)

	resp := c.do(http.MethodPut, "/v1/events/"+event.ID, map[string]any{
		"name":         "GopherConf 2025",
		"event_type":   "conference",
		"date_time":    event.DateTime.Format(time.RFC3339),
		"location":     "Kigali Convention Centre",
		"max_capacity": 500,
	}, authed(adminToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update event: unexpected status %d", resp.StatusCode)
	}
	updated := decode[*registry.Event](t, resp)
	if updated.Name != "GopherConf 2025" || updated.MaxCapacity != 500 {
		t.Fatalf("event not updated: %+v", updated)
	}

	resp = c.post("/v1/events/"+event.ID+"/registrations", map[string]any{
		"full_name":    "Alice",
		"phone_number": "0788123456",
		"national_id":  "1234567890123456",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit: unexpected status %d", resp.StatusCode)
	}
	reg := decode[*registry.Registration](t, resp)

	resp = c.do(http.MethodDelete, "/v1/events/"+event.ID, nil, authed(adminToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete event: unexpected status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.get("/v1/registrations/"+reg.ID, nil, authed(adminToken))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("registration should cascade: expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHealthAndInfo(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: unexpected status %d", resp.StatusCode)
	}
	health := decode[map[string]any](t, resp)
	if health["service"] != "gatepass-api" {
		t.Fatalf("unexpected healthz body: %v", health)
	}

	resp = c.get("/readyz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz: unexpected status %d", resp.StatusCode)
	}
	resp.Body.Close()

	obs.InitBuildInfo("test", "deadbeef")
	resp = c.get("/metrics", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read metrics body: %v", err)
	}
	if !strings.Contains(string(body), "build_info") {
		t.Fatal("build_info gauge not exposed on /metrics")
	}
}
