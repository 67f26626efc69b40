package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"gatepass.org/internal/ids"
)

var _ Store = (*InMemory)(nil)

// InMemory implements Store with in-process concurrency safety. It is
// authoritative for tests and usable for single-node runs without a
// database; pg.Store is the durable implementation.
type InMemory struct {
	mu            sync.RWMutex
	events        map[string]*Event
	registrations map[string]*Registration
	attendance    map[string]*Attendance // keyed by attendanceKey
	badges        map[string]*Badge      // keyed by registration id
	identityIdx   map[string]string      // (event, document) -> registration id
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		events:        make(map[string]*Event),
		registrations: make(map[string]*Registration),
		attendance:    make(map[string]*Attendance),
		badges:        make(map[string]*Badge),
		identityIdx:   make(map[string]string),
	}
}

func attendanceKey(registrationID, eventID string) string {
	return registrationID + "\x00" + eventID
}

func identityKey(eventID, kind, document string) string {
	return eventID + "\x00" + kind + "\x00" + strings.ToUpper(document)
}

// Events --------------------------------------------------------------

func (s *InMemory) CreateEvent(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	cp := *e
	s.events[e.ID] = &cp
	return nil
}

func (s *InMemory) GetEvent(_ context.Context, id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *InMemory) ListEvents(_ context.Context) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]*Event, 0, len(s.events))
	for _, e := range s.events {
		cp := *e
		res = append(res, &cp)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (s *InMemory) UpdateEvent(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.events[e.ID]
	if !ok {
		return ErrNotFound
	}
	cp := *e
	cp.CreatedAt = existing.CreatedAt
	s.events[e.ID] = &cp
	return nil
}

func (s *InMemory) DeleteEvent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return ErrNotFound
	}
	delete(s.events, id)
	for rid, r := range s.registrations {
		if r.EventID != id {
			continue
		}
		if r.NationalID != "" {
			delete(s.identityIdx, identityKey(id, "nid", r.NationalID))
		}
		if r.Passport != "" {
			delete(s.identityIdx, identityKey(id, "passport", r.Passport))
		}
		delete(s.badges, rid)
		delete(s.registrations, rid)
	}
	for key, a := range s.attendance {
		if a.EventID == id {
			delete(s.attendance, key)
		}
	}
	return nil
}

// Registrations -------------------------------------------------------

func (s *InMemory) CreateRegistration(_ context.Context, r *Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[r.EventID]; !ok {
		return ErrNotFound
	}
	var keys []string
	if r.NationalID != "" {
		keys = append(keys, identityKey(r.EventID, "nid", r.NationalID))
	}
	if r.Passport != "" {
		keys = append(keys, identityKey(r.EventID, "passport", r.Passport))
	}
	for _, k := range keys {
		if _, taken := s.identityIdx[k]; taken {
			return ErrDuplicateRegistration
		}
	}
	if r.ID == "" {
		r.ID = ids.New()
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	if r.RegisteredAt.IsZero() {
		r.RegisteredAt = time.Now().UTC()
	}
	cp := *r
	s.registrations[r.ID] = &cp
	for _, k := range keys {
		s.identityIdx[k] = r.ID
	}
	return nil
}

func (s *InMemory) GetRegistration(_ context.Context, id string) (*Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.registrations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *InMemory) ListRegistrationsByEvent(_ context.Context, eventID string, status RegistrationStatus) ([]*Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []*Registration
	for _, r := range s.registrations {
		if r.EventID != eventID {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		cp := *r
		res = append(res, &cp)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].RegisteredAt.Before(res[j].RegisteredAt) })
	return res, nil
}

func (s *InMemory) UpdateRegistrationStatus(_ context.Context, id string, status RegistrationStatus, actorID string, at time.Time) (*Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.registrations[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != StatusPending {
		return nil, ErrInvalidTransition
	}
	r.Status = status
	r.ApprovedBy = actorID
	ts := at.UTC()
	r.ApprovedAt = &ts
	cp := *r
	return &cp, nil
}

// Attendance ----------------------------------------------------------

func (s *InMemory) GetAttendanceByKey(_ context.Context, registrationID, eventID string) (*Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attendance[attendanceKey(registrationID, eventID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *InMemory) InsertAttendanceIfAbsent(_ context.Context, rec *Attendance) (*Attendance, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := attendanceKey(rec.RegistrationID, rec.EventID)
	if existing, ok := s.attendance[key]; ok {
		cp := *existing
		return &cp, false, nil
	}
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	if rec.CheckInTime.IsZero() {
		rec.CheckInTime = time.Now().UTC()
	}
	cp := *rec
	s.attendance[key] = &cp
	out := cp
	return &out, true, nil
}

func (s *InMemory) ListAttendanceByEvent(_ context.Context, eventID string) ([]*Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []*Attendance
	for _, a := range s.attendance {
		if a.EventID != eventID {
			continue
		}
		cp := *a
		res = append(res, &cp)
	}
	sortAttendance(res)
	return res, nil
}

func (s *InMemory) ListAttendance(_ context.Context, eventID string, limit, offset int) ([]*Attendance, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []*Attendance
	for _, a := range s.attendance {
		if eventID != "" && a.EventID != eventID {
			continue
		}
		cp := *a
		all = append(all, &cp)
	}
	sortAttendance(all)
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *InMemory) UpdateAttendanceBank(_ context.Context, attendanceID, accountNumber, bankName string) (*Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attendance {
		if a.ID == attendanceID {
			a.BankAccountNumber = accountNumber
			a.BankName = bankName
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// Badges --------------------------------------------------------------

func (s *InMemory) SaveBadge(_ context.Context, b *Badge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.registrations[b.RegistrationID]; !ok {
		return ErrNotFound
	}
	if b.ID == "" {
		b.ID = ids.New()
	}
	if b.IssuedAt.IsZero() {
		b.IssuedAt = time.Now().UTC()
	}
	cp := *b
	s.badges[b.RegistrationID] = &cp
	return nil
}

func (s *InMemory) GetBadgeByRegistration(_ context.Context, registrationID string) (*Badge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.badges[registrationID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// newest first, id as a stable tiebreaker
func sortAttendance(rows []*Attendance) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CheckInTime.Equal(rows[j].CheckInTime) {
			return rows[i].ID > rows[j].ID
		}
		return rows[i].CheckInTime.After(rows[j].CheckInTime)
	})
}
