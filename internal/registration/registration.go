// Package registration handles attendee sign-up and the pending ->
// approved/rejected review state machine that gates badge issuance.
package registration

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"gatepass.org/internal/audit"
	"gatepass.org/internal/obs"
	"gatepass.org/internal/registry"
)

var (
	ErrFullNameRequired = errors.New("registration: full name is required")
	ErrPhoneRequired    = errors.New("registration: phone number is required")

	// ErrIdentityRequired fires when neither a national id nor a passport
	// was provided.
	ErrIdentityRequired = errors.New("registration: a national id or passport is required")

	// ErrIdentityConflict fires when both identity documents were
	// provided; exactly one is allowed.
	ErrIdentityConflict = errors.New("registration: provide either a national id or a passport, not both")

	ErrInvalidNationalID = errors.New("registration: national id must be 16 digits")
	ErrInvalidPassport   = errors.New("registration: passport must be alphanumeric")

	ErrEventNotFound = errors.New("registration: event not found")

	// ErrUnauthorizedActor fires when the reviewing identity is not a
	// known admin.
	ErrUnauthorizedActor = errors.New("registration: actor is not an admin")

	ErrInvalidStatusFilter = errors.New("registration: unknown status filter")
)

var (
	nationalIDPattern = regexp.MustCompile(`^\d{16}$`)
	passportPattern   = regexp.MustCompile(`^[A-Za-z0-9]+$`)
)

// ActorDirectory answers whether a reviewing identity is an admin.
type ActorDirectory interface {
	IsAdmin(ctx context.Context, actorID string) (bool, error)
}

// BadgeIssuer mints the QR badge once a registration is approved.
type BadgeIssuer interface {
	Issue(ctx context.Context, reg *registry.Registration, event *registry.Event) (*registry.Badge, error)
}

// Notifier delivers status-change messages. Implementations are
// best-effort; the lifecycle never inspects delivery results beyond
// logging.
type Notifier interface {
	Notify(ctx context.Context, reg *registry.Registration, event *registry.Event, outcome string) error
}

const (
	OutcomeApproved = "approved"
	OutcomeRejected = "rejected"

	sideEffectBudget = 30 * time.Second
)

type Service struct {
	store    registry.Store
	actors   ActorDirectory
	issuer   BadgeIssuer
	notifier Notifier
	now      func() time.Time
}

// NewService wires the lifecycle. issuer and notifier may be nil; the
// corresponding side effects are then skipped.
func NewService(store registry.Store, actors ActorDirectory, issuer BadgeIssuer, notifier Notifier) *Service {
	return &Service{store: store, actors: actors, issuer: issuer, notifier: notifier, now: time.Now}
}

// SubmitRequest is the public sign-up form for one event.
type SubmitRequest struct {
	EventID      string `json:"event_id"`
	FullName     string `json:"full_name"`
	PhoneNumber  string `json:"phone_number"`
	NationalID   string `json:"national_id,omitempty"`
	Passport     string `json:"passport,omitempty"`
	Email        string `json:"email,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// Submit validates the identity invariant and inserts a pending
// registration. Exactly one of national id and passport must be given.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*registry.Registration, error) {
	fullName := strings.TrimSpace(req.FullName)
	phone := strings.TrimSpace(req.PhoneNumber)
	nationalID := strings.TrimSpace(req.NationalID)
	passport := strings.TrimSpace(req.Passport)

	if fullName == "" {
		return nil, ErrFullNameRequired
	}
	if phone == "" {
		return nil, ErrPhoneRequired
	}
	switch {
	case nationalID == "" && passport == "":
		return nil, ErrIdentityRequired
	case nationalID != "" && passport != "":
		return nil, ErrIdentityConflict
	case nationalID != "" && !nationalIDPattern.MatchString(nationalID):
		return nil, ErrInvalidNationalID
	case passport != "" && !passportPattern.MatchString(passport):
		return nil, ErrInvalidPassport
	}

	if _, err := s.store.GetEvent(ctx, req.EventID); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}

	reg := &registry.Registration{
		EventID:      req.EventID,
		FullName:     fullName,
		PhoneNumber:  phone,
		NationalID:   nationalID,
		Passport:     strings.ToUpper(passport),
		Email:        strings.TrimSpace(req.Email),
		Organization: strings.TrimSpace(req.Organization),
		Status:       registry.StatusPending,
		RegisteredAt: s.now().UTC(),
	}
	if err := s.store.CreateRegistration(ctx, reg); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	audit.LogEvent(ctx, "registration.submitted", map[string]any{
		"registration_id": reg.ID,
		"event_id":        reg.EventID,
	})
	return reg, nil
}

// Approve moves a pending registration to approved and kicks off badge
// issuance and notifications in the background. The transition is the
// source of truth; side-effect failures are logged, never propagated.
func (s *Service) Approve(ctx context.Context, registrationID, actorID string) (*registry.Registration, error) {
	return s.decide(ctx, registrationID, actorID, registry.StatusApproved)
}

// Reject moves a pending registration to rejected. Notifications only,
// no badge.
func (s *Service) Reject(ctx context.Context, registrationID, actorID string) (*registry.Registration, error) {
	return s.decide(ctx, registrationID, actorID, registry.StatusRejected)
}

func (s *Service) decide(ctx context.Context, registrationID, actorID string, status registry.RegistrationStatus) (*registry.Registration, error) {
	ok, err := s.actors.IsAdmin(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnauthorizedActor
	}

	reg, err := s.store.UpdateRegistrationStatus(ctx, registrationID, status, actorID, s.now().UTC())
	if err != nil {
		return nil, err
	}

	outcome := OutcomeApproved
	if status == registry.StatusRejected {
		outcome = OutcomeRejected
	}
	audit.LogEvent(ctx, "registration."+outcome, map[string]any{
		"registration_id": reg.ID,
		"event_id":        reg.EventID,
		"actor_id":        actorID,
	})

	// Detached from the request: the transition has already committed.
	go s.runSideEffects(reg, outcome)
	return reg, nil
}

func (s *Service) runSideEffects(reg *registry.Registration, outcome string) {
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectBudget)
	defer cancel()

	event, err := s.store.GetEvent(ctx, reg.EventID)
	if err != nil {
		obs.Warn("registration: side effects skipped, event lookup failed", map[string]any{
			"registration_id": reg.ID,
			"event_id":        reg.EventID,
			"error":           err.Error(),
		})
		return
	}

	if outcome == OutcomeApproved && s.issuer != nil {
		if _, err := s.issuer.Issue(ctx, reg, event); err != nil {
			obs.Error("registration: badge issuance failed", map[string]any{
				"registration_id": reg.ID,
				"error":           err.Error(),
			})
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, reg, event, outcome); err != nil {
			obs.Warn("registration: notification failed", map[string]any{
				"registration_id": reg.ID,
				"outcome":         outcome,
				"error":           err.Error(),
			})
		}
	}
}

// Get returns one registration by id.
func (s *Service) Get(ctx context.Context, id string) (*registry.Registration, error) {
	return s.store.GetRegistration(ctx, id)
}

// ListByEvent returns an event's registrations, optionally filtered by
// status ("" means all).
func (s *Service) ListByEvent(ctx context.Context, eventID string, status registry.RegistrationStatus) ([]*registry.Registration, error) {
	switch status {
	case "", registry.StatusPending, registry.StatusApproved, registry.StatusRejected:
	default:
		return nil, ErrInvalidStatusFilter
	}
	return s.store.ListRegistrationsByEvent(ctx, eventID, status)
}
