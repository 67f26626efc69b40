// Package checkin turns raw QR scans into durable attendance facts.
// The reconciler enforces at-most-once semantics per (registration,
// event) pair: scanning a badge twice, from any number of devices, never
// produces a second row.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"gatepass.org/internal/audit"
	"gatepass.org/internal/obs"
	"gatepass.org/internal/qr"
	"gatepass.org/internal/registry"
	"gatepass.org/internal/stream"
)

var (
	// ErrInvalidScan covers payloads that do not decode to the expected
	// structure. Client error, never retried.
	ErrInvalidScan = errors.New("checkin: invalid scan payload")

	// ErrExpiredScan fires when the payload's issuance timestamp is older
	// than the freshness window.
	ErrExpiredScan = errors.New("checkin: scan payload expired")

	// ErrStorageUnavailable means the store could not be reached. The
	// reconciler does not retry; the caller decides.
	ErrStorageUnavailable = errors.New("checkin: storage unavailable")

	// ErrScanTimedOut means the scan deadline expired with the outcome
	// unknown. The caller must re-scan; idempotence makes that safe.
	ErrScanTimedOut = errors.New("checkin: scan timed out")

	// ErrBankFieldsRequired fires when a bank update omits the account
	// number or the bank name.
	ErrBankFieldsRequired = errors.New("checkin: account number and bank name are required")
)

const (
	ResultNewlyCheckedIn   = "newly-checked-in"
	ResultAlreadyCheckedIn = "already-checked-in"

	defaultFreshnessWindow = 24 * time.Hour
	defaultScanDeadline    = 10 * time.Second
)

// Result is the outcome of a successful scan. Status discriminates a
// first check-in from an idempotent repeat; Attendance is the durable
// snapshot either way.
type Result struct {
	Status     string               `json:"status"`
	Attendance *registry.Attendance `json:"attendance"`
}

// Page is one slice of the attendance listing.
type Page struct {
	Items      []*registry.Attendance `json:"items"`
	Total      int                    `json:"total"`
	Page       int                    `json:"page"`
	Limit      int                    `json:"limit"`
	TotalPages int                    `json:"total_pages"`
}

type Option func(*Service)

// WithFreshnessWindow overrides the maximum payload age (default 24h).
func WithFreshnessWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithScanDeadline overrides the per-scan time budget (default 10s).
func WithScanDeadline(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.deadline = d
		}
	}
}

// WithFeed wires a live event feed; every processed scan is published.
func WithFeed(f *stream.Stream) Option {
	return func(s *Service) { s.feed = f }
}

// WithClock fixes the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type Service struct {
	store    registry.Store
	feed     *stream.Stream
	window   time.Duration
	deadline time.Duration
	now      func() time.Time
}

func NewService(store registry.Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		window:   defaultFreshnessWindow,
		deadline: defaultScanDeadline,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Scan reconciles one raw QR payload against the store. The payload is
// untrusted input: it is decoded, checked for freshness, then resolved
// to exactly one attendance row. Re-scanning returns the prior row
// verbatim, original check-in time included.
func (s *Service) Scan(ctx context.Context, raw string) (*Result, error) {
	start := s.now()

	payload, err := qr.Decode(raw)
	if err != nil {
		obs.ObserveScan("invalid", s.now().Sub(start))
		return nil, fmt.Errorf("%w: %w", ErrInvalidScan, err)
	}
	if payload.IssuedAt != nil && start.Sub(*payload.IssuedAt) > s.window {
		obs.ObserveScan("expired", s.now().Sub(start))
		return nil, fmt.Errorf("%w: issued %s ago", ErrExpiredScan, start.Sub(*payload.IssuedAt).Round(time.Minute))
	}

	ctx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	// Fast idempotent path: the badge was scanned before.
	existing, err := s.store.GetAttendanceByKey(ctx, payload.RegistrationID, payload.EventID)
	if err == nil {
		obs.ObserveScan("duplicate", s.now().Sub(start))
		s.publish(existing, true)
		return &Result{Status: ResultAlreadyCheckedIn, Attendance: existing}, nil
	}
	if !errors.Is(err, registry.ErrNotFound) {
		return nil, s.classify(ctx, err, start)
	}

	rec := s.snapshot(ctx, payload)
	rec.CheckInTime = start.UTC()

	// The store's uniqueness constraint is the arbiter of the race: the
	// loser gets the winner's row back instead of an error.
	out, inserted, err := s.store.InsertAttendanceIfAbsent(ctx, rec)
	if err != nil {
		return nil, s.classify(ctx, err, start)
	}

	status := ResultNewlyCheckedIn
	metric := "new"
	if !inserted {
		status = ResultAlreadyCheckedIn
		metric = "duplicate"
	}
	obs.ObserveScan(metric, s.now().Sub(start))
	audit.LogEvent(ctx, "checkin.scan", map[string]any{
		"registration_id": out.RegistrationID,
		"event_id":        out.EventID,
		"result":          status,
	})
	s.publish(out, !inserted)
	return &Result{Status: status, Attendance: out}, nil
}

// snapshot builds the attendance row, enriched from the registration
// when it still exists. When it does not (data drift), the scan must
// still succeed on payload fields alone: the badge was physically
// verified at the door.
func (s *Service) snapshot(ctx context.Context, p qr.Payload) *registry.Attendance {
	rec := &registry.Attendance{
		RegistrationID: p.RegistrationID,
		EventID:        p.EventID,
		FullName:       p.Attendee,
	}
	reg, err := s.store.GetRegistration(ctx, p.RegistrationID)
	if err != nil {
		if !errors.Is(err, registry.ErrNotFound) {
			obs.Warn("checkin: enrichment lookup failed", map[string]any{
				"registration_id": p.RegistrationID,
				"error":           err.Error(),
			})
		}
		return rec
	}
	if reg.FullName != "" {
		rec.FullName = reg.FullName
	}
	rec.PhoneNumber = reg.PhoneNumber
	rec.Email = reg.Email
	rec.Organization = reg.Organization
	rec.NationalID = reg.NationalID
	return rec
}

func (s *Service) classify(ctx context.Context, err error, start time.Time) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		obs.ObserveScan("timeout", s.now().Sub(start))
		return ErrScanTimedOut
	}
	obs.ObserveScan("storage_error", s.now().Sub(start))
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}

func (s *Service) publish(rec *registry.Attendance, alreadyPresent bool) {
	if s.feed == nil {
		return
	}
	s.feed.Publish(stream.CheckinEvent{
		AttendanceID:   rec.ID,
		RegistrationID: rec.RegistrationID,
		EventID:        rec.EventID,
		FullName:       rec.FullName,
		Organization:   rec.Organization,
		CheckInTime:    rec.CheckInTime,
		AlreadyPresent: alreadyPresent,
	})
}

// ListEventAttendance returns everyone checked in for one event, newest
// first.
func (s *Service) ListEventAttendance(ctx context.Context, eventID string) ([]*registry.Attendance, error) {
	if strings.TrimSpace(eventID) == "" {
		return nil, registry.ErrNotFound
	}
	return s.store.ListAttendanceByEvent(ctx, eventID)
}

// ListAttendance pages through all scanned attendees. Page numbers are
// 1-based; eventID narrows to one event when non-empty.
func (s *Service) ListAttendance(ctx context.Context, eventID string, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	items, total, err := s.store.ListAttendance(ctx, eventID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*registry.Attendance{}
	}
	return &Page{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: int(math.Ceil(float64(total) / float64(limit))),
	}, nil
}

// UpdateBankInfo attaches payout details to a recorded attendance.
func (s *Service) UpdateBankInfo(ctx context.Context, attendanceID, accountNumber, bankName string) (*registry.Attendance, error) {
	accountNumber = strings.TrimSpace(accountNumber)
	bankName = strings.TrimSpace(bankName)
	if accountNumber == "" || bankName == "" {
		return nil, ErrBankFieldsRequired
	}
	rec, err := s.store.UpdateAttendanceBank(ctx, attendanceID, accountNumber, bankName)
	if err != nil {
		return nil, err
	}
	audit.LogEvent(ctx, "checkin.bank_update", map[string]any{
		"attendance_id": rec.ID,
		"event_id":      rec.EventID,
	})
	return rec, nil
}
