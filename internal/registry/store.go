package registry

import (
	"context"
	"time"
)

// Store is the single source of truth for events, registrations,
// attendance and badges. All cross-request coordination is delegated to
// its uniqueness guarantees; callers hold no locks of their own.
type Store interface {
	CreateEvent(ctx context.Context, e *Event) error
	GetEvent(ctx context.Context, id string) (*Event, error)
	ListEvents(ctx context.Context) ([]*Event, error)
	UpdateEvent(ctx context.Context, e *Event) error
	// DeleteEvent removes the event and cascades to its registrations,
	// attendance rows and badges.
	DeleteEvent(ctx context.Context, id string) error

	// CreateRegistration inserts a pending registration, enforcing the
	// (event, nationalId) and (event, passport) uniqueness invariants.
	CreateRegistration(ctx context.Context, r *Registration) error
	GetRegistration(ctx context.Context, id string) (*Registration, error)
	// ListRegistrationsByEvent filters by status when status is non-empty.
	ListRegistrationsByEvent(ctx context.Context, eventID string, status RegistrationStatus) ([]*Registration, error)
	// UpdateRegistrationStatus is a guarded compare-and-set: it succeeds
	// only while the registration is still pending and returns
	// ErrInvalidTransition otherwise.
	UpdateRegistrationStatus(ctx context.Context, id string, status RegistrationStatus, actorID string, at time.Time) (*Registration, error)

	GetAttendanceByKey(ctx context.Context, registrationID, eventID string) (*Attendance, error)
	// InsertAttendanceIfAbsent atomically inserts rec keyed by
	// (RegistrationID, EventID). When a row already exists it returns
	// that row and inserted=false; a conflict is never an error.
	InsertAttendanceIfAbsent(ctx context.Context, rec *Attendance) (*Attendance, bool, error)
	ListAttendanceByEvent(ctx context.Context, eventID string) ([]*Attendance, error)
	// ListAttendance pages through scanned attendees, most recent first.
	// An empty eventID means all events. Returns the page and the total
	// row count for the filter.
	ListAttendance(ctx context.Context, eventID string, limit, offset int) ([]*Attendance, int, error)
	UpdateAttendanceBank(ctx context.Context, attendanceID, accountNumber, bankName string) (*Attendance, error)

	// SaveBadge upserts the badge for rec.RegistrationID.
	SaveBadge(ctx context.Context, b *Badge) error
	GetBadgeByRegistration(ctx context.Context, registrationID string) (*Badge, error)
}
