// Package qr defines the badge scan payload contract: the compact JSON
// text embedded in every badge QR image and parsed back at the door.
package qr

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedPayload indicates the scanned text is not a payload at all.
var ErrMalformedPayload = errors.New("malformed scan payload")

// MissingFieldError indicates a structurally valid payload lacking a
// required field.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("scan payload missing %s", e.Field)
}

// Payload is the decoded content of a badge QR code. IssuedAt is
// optional; freshness policy belongs to the caller, not the codec.
type Payload struct {
	RegistrationID string
	EventID        string
	Attendee       string
	IssuedAt       *time.Time
}

type wirePayload struct {
	RegistrationID string `json:"registrationId"`
	EventID        string `json:"eventId"`
	Attendee       string `json:"attendee"`
	AttendeeName   string `json:"attendeeName,omitempty"`
	Timestamp      string `json:"timestamp,omitempty"`
	IssuedAt       string `json:"issuedAt,omitempty"`
}

// Encode serializes the payload into the canonical text form. The
// timestamp, when present, is carried as RFC 3339 UTC.
func Encode(p Payload) (string, error) {
	if strings.TrimSpace(p.RegistrationID) == "" {
		return "", &MissingFieldError{Field: "registrationId"}
	}
	if strings.TrimSpace(p.EventID) == "" {
		return "", &MissingFieldError{Field: "eventId"}
	}
	if strings.TrimSpace(p.Attendee) == "" {
		return "", &MissingFieldError{Field: "attendee"}
	}
	wire := wirePayload{
		RegistrationID: p.RegistrationID,
		EventID:        p.EventID,
		Attendee:       p.Attendee,
	}
	if p.IssuedAt != nil {
		wire.Timestamp = p.IssuedAt.UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Decode parses scanned text back into a Payload. Input is untrusted:
// anything that is not a JSON object with the expected fields fails with
// ErrMalformedPayload, and absent/empty required fields fail with
// MissingFieldError. Legacy badges used attendeeName and issuedAt for
// the attendee and timestamp fields; both spellings are accepted.
func Decode(raw string) (Payload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw[0] != '{' {
		return Payload{}, ErrMalformedPayload
	}
	var wire wirePayload
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return Payload{}, ErrMalformedPayload
	}

	p := Payload{
		RegistrationID: strings.TrimSpace(wire.RegistrationID),
		EventID:        strings.TrimSpace(wire.EventID),
		Attendee:       strings.TrimSpace(wire.Attendee),
	}
	if p.Attendee == "" {
		p.Attendee = strings.TrimSpace(wire.AttendeeName)
	}
	if p.RegistrationID == "" {
		return Payload{}, &MissingFieldError{Field: "registrationId"}
	}
	if p.EventID == "" {
		return Payload{}, &MissingFieldError{Field: "eventId"}
	}
	if p.Attendee == "" {
		return Payload{}, &MissingFieldError{Field: "attendee"}
	}

	ts := strings.TrimSpace(wire.Timestamp)
	if ts == "" {
		ts = strings.TrimSpace(wire.IssuedAt)
	}
	if ts != "" {
		issued, err := parseTimestamp(ts)
		if err != nil {
			return Payload{}, ErrMalformedPayload
		}
		p.IssuedAt = &issued
	}
	return p, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
