package registry

import (
	"errors"
	"time"
)

// RegistrationStatus tracks the pending -> approved/rejected lifecycle.
// Approved and rejected are terminal.
type RegistrationStatus string

const (
	StatusPending  RegistrationStatus = "pending"
	StatusApproved RegistrationStatus = "approved"
	StatusRejected RegistrationStatus = "rejected"
)

var (
	ErrNotFound = errors.New("registry: not found")

	// ErrDuplicateRegistration fires on the (event, nationalId) or
	// (event, passport) uniqueness constraint.
	ErrDuplicateRegistration = errors.New("registry: already registered for this event")

	// ErrInvalidTransition fires when a status update targets a
	// registration that is no longer pending.
	ErrInvalidTransition = errors.New("registry: registration is not pending")
)

// Event is an admin-owned happening attendees register for.
type Event struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	EventType        string    `json:"event_type"`
	DateTime         time.Time `json:"date_time"`
	Location         string    `json:"location"`
	Description      string    `json:"description,omitempty"`
	MaxCapacity      int       `json:"max_capacity"`
	FinancialSupport bool      `json:"financial_support"`
	AdminID          string    `json:"admin_id"`
	CreatedAt        time.Time `json:"created_at"`
}

// Registration is one attendee's request to join one event. Exactly one
// of NationalID and Passport is set; the submission service enforces it.
type Registration struct {
	ID           string             `json:"id"`
	EventID      string             `json:"event_id"`
	FullName     string             `json:"full_name"`
	PhoneNumber  string             `json:"phone_number"`
	NationalID   string             `json:"national_id,omitempty"`
	Passport     string             `json:"passport,omitempty"`
	Email        string             `json:"email,omitempty"`
	Organization string             `json:"organization,omitempty"`
	Status       RegistrationStatus `json:"status"`
	RegisteredAt time.Time          `json:"registered_at"`
	ApprovedAt   *time.Time         `json:"approved_at,omitempty"`
	ApprovedBy   string             `json:"approved_by,omitempty"`
}

// Attendance is the durable fact that a badge was scanned at the door.
// Attendee fields are snapshots copied at scan time, not live joins.
// At most one row exists per (RegistrationID, EventID).
type Attendance struct {
	ID                string    `json:"id"`
	RegistrationID    string    `json:"registration_id"`
	EventID           string    `json:"event_id"`
	FullName          string    `json:"full_name"`
	PhoneNumber       string    `json:"phone_number,omitempty"`
	Email             string    `json:"email,omitempty"`
	Organization      string    `json:"organization,omitempty"`
	NationalID        string    `json:"national_id,omitempty"`
	CheckInTime       time.Time `json:"check_in_time"`
	BankAccountNumber string    `json:"bank_account_number,omitempty"`
	BankName          string    `json:"bank_name,omitempty"`
}

// Badge records the minted QR payload and where the rendered PDF lives.
// One per registration; reissuing overwrites.
type Badge struct {
	ID             string    `json:"id"`
	RegistrationID string    `json:"registration_id"`
	Payload        string    `json:"payload"`
	ArtifactPath   string    `json:"artifact_path"`
	IssuedAt       time.Time `json:"issued_at"`
}
