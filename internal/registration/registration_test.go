package registration

import (
	"context"
	"errors"
	"testing"
	"time"

	"gatepass.org/internal/registry"
)

type fakeActors struct {
	admins map[string]bool
}

func (f fakeActors) IsAdmin(ctx context.Context, actorID string) (bool, error) {
	return f.admins[actorID], nil
}

type fakeIssuer struct {
	issued chan string
	err    error
}

func (f *fakeIssuer) Issue(ctx context.Context, reg *registry.Registration, event *registry.Event) (*registry.Badge, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.issued <- reg.ID
	return &registry.Badge{RegistrationID: reg.ID}, nil
}

type fakeNotifier struct {
	notified chan string
	err      error
}

func (f *fakeNotifier) Notify(ctx context.Context, reg *registry.Registration, event *registry.Event, outcome string) error {
	if f.err != nil {
		return f.err
	}
	f.notified <- outcome
	return nil
}

func newFixture(t *testing.T) (*Service, *registry.InMemory, *registry.Event, *fakeIssuer, *fakeNotifier) {
	t.Helper()
	store := registry.NewInMemory()
	event := &registry.Event{Name: "GopherConf", EventType: "conference", DateTime: time.Now().Add(72 * time.Hour), Location: "Kigali", MaxCapacity: 100, AdminID: "admin-1"}
	if err := store.CreateEvent(context.Background(), event); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	issuer := &fakeIssuer{issued: make(chan string, 1)}
	notifier := &fakeNotifier{notified: make(chan string, 2)}
	actors := fakeActors{admins: map[string]bool{"admin-1": true}}
	return NewService(store, actors, issuer, notifier), store, event, issuer, notifier
}

func validSubmit(eventID string) SubmitRequest {
	return SubmitRequest{
		EventID:     eventID,
		FullName:    "Alice",
		PhoneNumber: "0788000001",
		NationalID:  "1234567890123456",
		Email:       "alice@example.com",
	}
}

func TestSubmitValidation(t *testing.T) {
	svc, _, event, _, _ := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		mod  func(*SubmitRequest)
		want error
	}{
		{"missing name", func(r *SubmitRequest) { r.FullName = "  " }, ErrFullNameRequired},
		{"missing phone", func(r *SubmitRequest) { r.PhoneNumber = "" }, ErrPhoneRequired},
		{"no identity", func(r *SubmitRequest) { r.NationalID = "" }, ErrIdentityRequired},
		{"both identities", func(r *SubmitRequest) { r.Passport = "PC123456" }, ErrIdentityConflict},
		{"short national id", func(r *SubmitRequest) { r.NationalID = "12345" }, ErrInvalidNationalID},
		{"alpha national id", func(r *SubmitRequest) { r.NationalID = "12345678901234ab" }, ErrInvalidNationalID},
		{"bad passport", func(r *SubmitRequest) { r.NationalID = ""; r.Passport = "PC-123!" }, ErrInvalidPassport},
		{"unknown event", func(r *SubmitRequest) { r.EventID = "missing" }, ErrEventNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validSubmit(event.ID)
			tc.mod(&req)
			if _, err := svc.Submit(ctx, req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestSubmitCreatesPending(t *testing.T) {
	svc, _, event, _, _ := newFixture(t)
	ctx := context.Background()

	reg, err := svc.Submit(ctx, validSubmit(event.ID))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if reg.ID == "" || reg.Status != registry.StatusPending {
		t.Fatalf("unexpected registration: %+v", reg)
	}
	if reg.RegisteredAt.IsZero() {
		t.Fatal("registered_at not set")
	}

	if _, err := svc.Submit(ctx, validSubmit(event.ID)); !errors.Is(err, registry.ErrDuplicateRegistration) {
		t.Fatalf("expected ErrDuplicateRegistration, got %v", err)
	}
}

func TestSubmitWithPassport(t *testing.T) {
	svc, _, event, _, _ := newFixture(t)
	req := SubmitRequest{EventID: event.ID, FullName: "Bob", PhoneNumber: "0788000002", Passport: "pc123456"}
	reg, err := svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if reg.Passport != "PC123456" {
		t.Fatalf("passport not normalized: %q", reg.Passport)
	}
}

func TestApproveTriggersSideEffects(t *testing.T) {
	svc, _, event, issuer, notifier := newFixture(t)
	ctx := context.Background()
	reg, err := svc.Submit(ctx, validSubmit(event.ID))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	approved, err := svc.Approve(ctx, reg.ID, "admin-1")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Status != registry.StatusApproved || approved.ApprovedBy != "admin-1" || approved.ApprovedAt == nil {
		t.Fatalf("unexpected state after approval: %+v", approved)
	}

	select {
	case id := <-issuer.issued:
		if id != reg.ID {
			t.Fatalf("badge issued for wrong registration: %s", id)
		}
	case <-time.After(time.Second):
		t.Fatal("badge was not issued")
	}
	select {
	case outcome := <-notifier.notified:
		if outcome != OutcomeApproved {
			t.Fatalf("unexpected notification outcome: %s", outcome)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification sent")
	}
}

func TestRejectNotifiesWithoutBadge(t *testing.T) {
	svc, _, event, issuer, notifier := newFixture(t)
	ctx := context.Background()
	reg, err := svc.Submit(ctx, validSubmit(event.ID))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	rejected, err := svc.Reject(ctx, reg.ID, "admin-1")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rejected.Status != registry.StatusRejected {
		t.Fatalf("expected rejected, got %s", rejected.Status)
	}

	select {
	case outcome := <-notifier.notified:
		if outcome != OutcomeRejected {
			t.Fatalf("unexpected outcome: %s", outcome)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification sent")
	}
	select {
	case <-issuer.issued:
		t.Fatal("badge must not be issued on rejection")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestApproveByNonAdmin(t *testing.T) {
	svc, store, event, _, _ := newFixture(t)
	ctx := context.Background()
	reg, err := svc.Submit(ctx, validSubmit(event.ID))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, err := svc.Approve(ctx, reg.ID, "staff-1"); !errors.Is(err, ErrUnauthorizedActor) {
		t.Fatalf("expected ErrUnauthorizedActor, got %v", err)
	}
	got, err := store.GetRegistration(ctx, reg.ID)
	if err != nil {
		t.Fatalf("GetRegistration: %v", err)
	}
	if got.Status != registry.StatusPending {
		t.Fatalf("status changed despite unauthorized actor: %s", got.Status)
	}
}

func TestApproveIsSingleShot(t *testing.T) {
	svc, _, event, _, _ := newFixture(t)
	ctx := context.Background()
	reg, err := svc.Submit(ctx, validSubmit(event.ID))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := svc.Approve(ctx, reg.ID, "admin-1"); err != nil {
		t.Fatalf("first approve: %v", err)
	}
	if _, err := svc.Approve(ctx, reg.ID, "admin-1"); !errors.Is(err, registry.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := svc.Reject(ctx, reg.ID, "admin-1"); !errors.Is(err, registry.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on reject-after-approve, got %v", err)
	}
}

func TestSideEffectFailureDoesNotRollBack(t *testing.T) {
	store := registry.NewInMemory()
	event := &registry.Event{Name: "GopherConf", EventType: "conference", DateTime: time.Now().Add(72 * time.Hour), Location: "Kigali", MaxCapacity: 100, AdminID: "admin-1"}
	if err := store.CreateEvent(context.Background(), event); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	issuer := &fakeIssuer{err: errors.New("renderer down")}
	notifier := &fakeNotifier{err: errors.New("gateway down")}
	svc := NewService(store, fakeActors{admins: map[string]bool{"admin-1": true}}, issuer, notifier)

	reg, err := svc.Submit(context.Background(), validSubmit(event.ID))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	approved, err := svc.Approve(context.Background(), reg.ID, "admin-1")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Status != registry.StatusApproved {
		t.Fatalf("transition must commit regardless of side effects: %s", approved.Status)
	}
}

func TestListByEventStatusFilter(t *testing.T) {
	svc, _, event, _, _ := newFixture(t)
	ctx := context.Background()
	if _, err := svc.Submit(ctx, validSubmit(event.ID)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	other := SubmitRequest{EventID: event.ID, FullName: "Bob", PhoneNumber: "0788000002", Passport: "PC123456"}
	reg2, err := svc.Submit(ctx, other)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := svc.Approve(ctx, reg2.ID, "admin-1"); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	pending, err := svc.ListByEvent(ctx, event.ID, registry.StatusPending)
	if err != nil {
		t.Fatalf("ListByEvent: %v", err)
	}
	if len(pending) != 1 || pending[0].FullName != "Alice" {
		t.Fatalf("unexpected pending list: %+v", pending)
	}

	all, err := svc.ListByEvent(ctx, event.ID, "")
	if err != nil {
		t.Fatalf("ListByEvent all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 registrations, got %d", len(all))
	}

	if _, err := svc.ListByEvent(ctx, event.ID, "bogus"); !errors.Is(err, ErrInvalidStatusFilter) {
		t.Fatalf("expected ErrInvalidStatusFilter, got %v", err)
	}
}
