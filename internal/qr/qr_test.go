package qr

import (
	"errors"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	issued := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	encoded, err := Encode(Payload{
		RegistrationID: "R1",
		EventID:        "E1",
		Attendee:       "Alice",
		IssuedAt:       &issued,
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.RegistrationID != "R1" || decoded.EventID != "E1" || decoded.Attendee != "Alice" {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
	if decoded.IssuedAt == nil || !decoded.IssuedAt.Equal(issued) {
		t.Fatalf("timestamp not preserved: %v", decoded.IssuedAt)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, raw := range []string{
		"hello",
		"",
		"   ",
		"[1,2,3]",
		`{"registrationId": "R1", "eventId": "E1", "attendee": "Alice"`,
		`{"registrationId": "R1", "eventId": "E1", "attendee": "Alice", "timestamp": "yesterday"}`,
	} {
		if _, err := Decode(raw); !errors.Is(err, ErrMalformedPayload) {
			t.Fatalf("Decode(%q): expected ErrMalformedPayload, got %v", raw, err)
		}
	}
}

func TestDecodeMissingFields(t *testing.T) {
	cases := map[string]string{
		`{"eventId": "E1", "attendee": "Alice"}`:         "registrationId",
		`{"registrationId": "R1", "attendee": "Alice"}`:  "eventId",
		`{"registrationId": "R1", "eventId": "E1"}`:      "attendee",
		`{"registrationId": " ", "eventId": "E1", "attendee": "Alice"}`: "registrationId",
	}
	for raw, field := range cases {
		_, err := Decode(raw)
		var missing *MissingFieldError
		if !errors.As(err, &missing) {
			t.Fatalf("Decode(%q): expected MissingFieldError, got %v", raw, err)
		}
		if missing.Field != field {
			t.Fatalf("Decode(%q): expected missing %s, got %s", raw, field, missing.Field)
		}
	}
}

func TestDecodeLegacyFieldNames(t *testing.T) {
	decoded, err := Decode(`{"registrationId": "R1", "eventId": "E1", "attendeeName": "Bob", "issuedAt": "2025-03-14T09:30:00Z"}`)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Attendee != "Bob" {
		t.Fatalf("attendeeName alias not honored: %+v", decoded)
	}
	if decoded.IssuedAt == nil {
		t.Fatal("issuedAt alias not honored")
	}
}

func TestDecodeWithoutTimestamp(t *testing.T) {
	decoded, err := Decode(`{"registrationId": "R1", "eventId": "E1", "attendee": "Alice"}`)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.IssuedAt != nil {
		t.Fatalf("expected nil IssuedAt, got %v", decoded.IssuedAt)
	}
}

func TestEncodeRequiresFields(t *testing.T) {
	var missing *MissingFieldError
	_, err := Encode(Payload{EventID: "E1", Attendee: "Alice"})
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingFieldError, got %v", err)
	}
}
