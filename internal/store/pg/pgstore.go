package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"gatepass.org/internal/ids"
	"gatepass.org/internal/registry"
)

type Store struct {
	db *sql.DB
}

var _ registry.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing pool, mainly for tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// --- events ---

func (s *Store) CreateEvent(ctx context.Context, e *registry.Event) error {
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into events(id, name, event_type, date_time, location, description, max_capacity, financial_support, admin_id, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, e.ID, e.Name, e.EventType, e.DateTime, e.Location, e.Description, e.MaxCapacity, e.FinancialSupport, e.AdminID, e.CreatedAt)
	return err
}

func (s *Store) GetEvent(ctx context.Context, id string) (*registry.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, name, event_type, date_time, location, description, max_capacity, financial_support, admin_id, created_at
		from events where id=$1
	`, id)
	return scanEvent(row)
}

func (s *Store) ListEvents(ctx context.Context) ([]*registry.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, event_type, date_time, location, description, max_capacity, financial_support, admin_id, created_at
		from events order by date_time asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*registry.Event
	for rows.Next() {
		var e registry.Event
		if err := rows.Scan(&e.ID, &e.Name, &e.EventType, &e.DateTime, &e.Location, &e.Description, &e.MaxCapacity, &e.FinancialSupport, &e.AdminID, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, &e)
	}
	return res, rows.Err()
}

func (s *Store) UpdateEvent(ctx context.Context, e *registry.Event) error {
	res, err := s.db.ExecContext(ctx, `
		update events
		set name=$2, event_type=$3, date_time=$4, location=$5, description=$6, max_capacity=$7, financial_support=$8
		where id=$1
	`, e.ID, e.Name, e.EventType, e.DateTime, e.Location, e.Description, e.MaxCapacity, e.FinancialSupport)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return registry.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		delete from badges where registration_id in (select id from registrations where event_id=$1)
	`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from attendance where event_id=$1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from registrations where event_id=$1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `delete from events where id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return registry.ErrNotFound
	}
	return tx.Commit()
}

// --- registrations ---

func (s *Store) CreateRegistration(ctx context.Context, r *registry.Registration) error {
	if r.ID == "" {
		r.ID = ids.New()
	}
	if r.Status == "" {
		r.Status = registry.StatusPending
	}
	if r.RegisteredAt.IsZero() {
		r.RegisteredAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into registrations(id, event_id, full_name, phone_number, national_id, passport, email, organization, status, registered_at)
		values ($1,$2,$3,nullif($4,''),nullif($5,''),nullif($6,''),nullif($7,''),nullif($8,''),$9,$10)
	`, r.ID, r.EventID, r.FullName, r.PhoneNumber, r.NationalID, strings.ToUpper(r.Passport), r.Email, r.Organization, r.Status, r.RegisteredAt)
	if err != nil {
		if isUniqueViolation(err) {
			return registry.ErrDuplicateRegistration
		}
		if isForeignKeyViolation(err) {
			return registry.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) GetRegistration(ctx context.Context, id string) (*registry.Registration, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, event_id, full_name, coalesce(phone_number,''), coalesce(national_id,''), coalesce(passport,''),
		       coalesce(email,''), coalesce(organization,''), status, registered_at, approved_at, coalesce(approved_by,'')
		from registrations where id=$1
	`, id)
	return scanRegistration(row)
}

func (s *Store) ListRegistrationsByEvent(ctx context.Context, eventID string, status registry.RegistrationStatus) ([]*registry.Registration, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, event_id, full_name, coalesce(phone_number,''), coalesce(national_id,''), coalesce(passport,''),
		       coalesce(email,''), coalesce(organization,''), status, registered_at, approved_at, coalesce(approved_by,'')
		from registrations
		where event_id=$1 and ($2='' or status=$2)
		order by registered_at asc
	`, eventID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*registry.Registration
	for rows.Next() {
		r, err := scanRegistrationRows(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func (s *Store) UpdateRegistrationStatus(ctx context.Context, id string, status registry.RegistrationStatus, actorID string, at time.Time) (*registry.Registration, error) {
	// Guarded update: only a pending row transitions. Losing the race is
	// reported as an invalid transition, same as a plain re-review.
	row := s.db.QueryRowContext(ctx, `
		update registrations
		set status=$2, approved_at=$3, approved_by=$4
		where id=$1 and status='pending'
		returning id, event_id, full_name, coalesce(phone_number,''), coalesce(national_id,''), coalesce(passport,''),
		          coalesce(email,''), coalesce(organization,''), status, registered_at, approved_at, coalesce(approved_by,'')
	`, id, string(status), at.UTC(), actorID)
	r, err := scanRegistration(row)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, registry.ErrNotFound) {
		return nil, err
	}
	// No pending row matched: distinguish missing from already decided.
	var dummy int
	err = s.db.QueryRowContext(ctx, `select 1 from registrations where id=$1`, id).Scan(&dummy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, registry.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return nil, registry.ErrInvalidTransition
}

// --- attendance ---

func (s *Store) GetAttendanceByKey(ctx context.Context, registrationID, eventID string) (*registry.Attendance, error) {
	row := s.db.QueryRowContext(ctx, attendanceSelect+` where registration_id=$1 and event_id=$2`, registrationID, eventID)
	return scanAttendance(row)
}

func (s *Store) InsertAttendanceIfAbsent(ctx context.Context, rec *registry.Attendance) (*registry.Attendance, bool, error) {
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	if rec.CheckInTime.IsZero() {
		rec.CheckInTime = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		insert into attendance(id, registration_id, event_id, full_name, phone_number, email, organization, national_id, check_in_time)
		values ($1,$2,$3,$4,nullif($5,''),nullif($6,''),nullif($7,''),nullif($8,''),$9)
		on conflict (registration_id, event_id) do nothing
	`, rec.ID, rec.RegistrationID, rec.EventID, rec.FullName, rec.PhoneNumber, rec.Email, rec.Organization, rec.NationalID, rec.CheckInTime)
	if err != nil {
		return nil, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	// Read back whichever row is now durable, ours or the winner's.
	row := tx.QueryRowContext(ctx, attendanceSelect+` where registration_id=$1 and event_id=$2`, rec.RegistrationID, rec.EventID)
	out, err := scanAttendance(row)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return out, n == 1, nil
}

func (s *Store) ListAttendanceByEvent(ctx context.Context, eventID string) ([]*registry.Attendance, error) {
	rows, err := s.db.QueryContext(ctx, attendanceSelect+` where event_id=$1 order by check_in_time desc, id desc`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttendance(rows)
}

func (s *Store) ListAttendance(ctx context.Context, eventID string, limit, offset int) ([]*registry.Attendance, int, error) {
	if limit <= 0 || limit > 1000 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `
		select count(*) from attendance where ($1='' or event_id=$1)
	`, eventID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, attendanceSelect+`
		where ($1='' or event_id=$1)
		order by check_in_time desc, id desc
		limit $2 offset $3
	`, eventID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	res, err := collectAttendance(rows)
	if err != nil {
		return nil, 0, err
	}
	return res, total, nil
}

func (s *Store) UpdateAttendanceBank(ctx context.Context, attendanceID, accountNumber, bankName string) (*registry.Attendance, error) {
	row := s.db.QueryRowContext(ctx, `
		update attendance set bank_account_number=$2, bank_name=$3
		where id=$1
		returning id, registration_id, event_id, full_name, coalesce(phone_number,''), coalesce(email,''),
		          coalesce(organization,''), coalesce(national_id,''), check_in_time,
		          coalesce(bank_account_number,''), coalesce(bank_name,'')
	`, attendanceID, accountNumber, bankName)
	return scanAttendance(row)
}

// --- badges ---

func (s *Store) SaveBadge(ctx context.Context, b *registry.Badge) error {
	if b.ID == "" {
		b.ID = ids.New()
	}
	if b.IssuedAt.IsZero() {
		b.IssuedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into badges(id, registration_id, payload, artifact_path, issued_at)
		values ($1,$2,$3,$4,$5)
		on conflict (registration_id) do update
		set payload=excluded.payload, artifact_path=excluded.artifact_path, issued_at=excluded.issued_at
	`, b.ID, b.RegistrationID, b.Payload, b.ArtifactPath, b.IssuedAt)
	return err
}

func (s *Store) GetBadgeByRegistration(ctx context.Context, registrationID string) (*registry.Badge, error) {
	var b registry.Badge
	err := s.db.QueryRowContext(ctx, `
		select id, registration_id, payload, artifact_path, issued_at
		from badges where registration_id=$1
	`, registrationID).Scan(&b.ID, &b.RegistrationID, &b.Payload, &b.ArtifactPath, &b.IssuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, registry.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// --- helpers ---

const attendanceSelect = `
	select id, registration_id, event_id, full_name, coalesce(phone_number,''), coalesce(email,''),
	       coalesce(organization,''), coalesce(national_id,''), check_in_time,
	       coalesce(bank_account_number,''), coalesce(bank_name,'')
	from attendance`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*registry.Event, error) {
	var e registry.Event
	err := row.Scan(&e.ID, &e.Name, &e.EventType, &e.DateTime, &e.Location, &e.Description, &e.MaxCapacity, &e.FinancialSupport, &e.AdminID, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, registry.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanRegistration(row rowScanner) (*registry.Registration, error) {
	r, err := scanRegistrationRows(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, registry.ErrNotFound
	}
	return r, err
}

func scanRegistrationRows(row rowScanner) (*registry.Registration, error) {
	var r registry.Registration
	var approvedAt sql.NullTime
	if err := row.Scan(&r.ID, &r.EventID, &r.FullName, &r.PhoneNumber, &r.NationalID, &r.Passport,
		&r.Email, &r.Organization, &r.Status, &r.RegisteredAt, &approvedAt, &r.ApprovedBy); err != nil {
		return nil, err
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		r.ApprovedAt = &t
	}
	return &r, nil
}

func scanAttendance(row rowScanner) (*registry.Attendance, error) {
	var a registry.Attendance
	err := row.Scan(&a.ID, &a.RegistrationID, &a.EventID, &a.FullName, &a.PhoneNumber, &a.Email,
		&a.Organization, &a.NationalID, &a.CheckInTime, &a.BankAccountNumber, &a.BankName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, registry.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAttendance(rows *sql.Rows) ([]*registry.Attendance, error) {
	var res []*registry.Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
