// Command smoke-checkin drives a running API end to end: it registers an
// attendee, approves them, then scans the badge twice and verifies the
// second scan replays the first check-in instead of creating a new one.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"gatepass.org/internal/qr"
)

var base = "http://localhost:8080"

func main() {
	log.SetFlags(0)
	if v := os.Getenv("GATEPASS_SMOKE_URL"); v != "" {
		base = v
	}

	adminToken := login(envOr("GATEPASS_SMOKE_ADMIN", "admin"), envOr("GATEPASS_SMOKE_ADMIN_PASSWORD", "password"))
	staffToken := login(envOr("GATEPASS_SMOKE_STAFF", "door"), envOr("GATEPASS_SMOKE_STAFF_PASSWORD", "password"))

	suffix := time.Now().UnixNano()

	var event struct {
		ID string `json:"id"`
	}
	request("POST", "/v1/events", adminToken, map[string]any{
		"name":       fmt.Sprintf("Smoke Event %d", suffix),
		"event_type": "conference",
		"date_time":  time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
		"location":   "Kigali",
	}, http.StatusCreated, &event)

	var reg struct {
		ID string `json:"id"`
	}
	request("POST", "/v1/events/"+event.ID+"/registrations", "", map[string]any{
		"full_name":    "Smoke Tester",
		"phone_number": "+250788123456",
		"national_id":  fmt.Sprintf("%016d", suffix%1e16),
	}, http.StatusCreated, &reg)

	request("POST", "/v1/registrations/"+reg.ID+"/approve", adminToken, nil, http.StatusOK, nil)

	issued := time.Now().UTC()
	payload, err := qr.Encode(qr.Payload{
		RegistrationID: reg.ID,
		EventID:        event.ID,
		Attendee:       "Smoke Tester",
		IssuedAt:       &issued,
	})
	if err != nil {
		log.Fatalf("encode payload: %v", err)
	}

	var first struct {
		Status     string `json:"status"`
		Attendance struct {
			ID          string    `json:"id"`
			CheckInTime time.Time `json:"check_in_time"`
		} `json:"attendance"`
	}
	request("POST", "/v1/scan", staffToken, map[string]any{"payload": payload}, http.StatusCreated, &first)
	if first.Status != "newly-checked-in" {
		log.Fatalf("first scan: want newly-checked-in, got %q", first.Status)
	}

	var second struct {
		Status     string `json:"status"`
		Attendance struct {
			ID          string    `json:"id"`
			CheckInTime time.Time `json:"check_in_time"`
		} `json:"attendance"`
	}
	request("POST", "/v1/scan", staffToken, map[string]any{"payload": payload}, http.StatusOK, &second)
	if second.Status != "already-checked-in" {
		log.Fatalf("second scan: want already-checked-in, got %q", second.Status)
	}
	if second.Attendance.ID != first.Attendance.ID {
		log.Fatalf("re-scan produced a different record: %s vs %s", second.Attendance.ID, first.Attendance.ID)
	}
	if !second.Attendance.CheckInTime.Equal(first.Attendance.CheckInTime) {
		log.Fatalf("re-scan moved the check-in time: %s vs %s", second.Attendance.CheckInTime, first.Attendance.CheckInTime)
	}

	fmt.Printf("✅ check-in smoke test passed: event=%s registration=%s attendance=%s\n",
		event.ID, reg.ID, first.Attendance.ID)
}

func login(username, password string) string {
	var res struct {
		Token string `json:"token"`
	}
	request("POST", "/v1/auth/login", "", map[string]any{
		"username": username,
		"password": password,
	}, http.StatusOK, &res)
	return res.Token
}

func request(method, path, token string, body any, wantStatus int, out any) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			log.Fatalf("%s %s: encode body: %v", method, path, err)
		}
	}
	req, err := http.NewRequest(method, base+path, &buf)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		var errBody bytes.Buffer
		_, _ = errBody.ReadFrom(resp.Body)
		log.Fatalf("%s %s: status %d (want %d): %s", method, path, resp.StatusCode, wantStatus, errBody.String())
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("%s %s: decode response: %v", method, path, err)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
