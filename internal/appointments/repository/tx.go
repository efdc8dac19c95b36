package repository

import (
	"context"
	"errors"
	"fmt"

	"clinic_booking_backend/internal/appointments/domain"

	"github.com/jackc/pgx/v5"
)

const (
	opPatientByEmail    = "appointments.patient_by_email"
	opInsertPatient     = "appointments.insert_patient"
	opFirstAvailable    = "appointments.first_available"
	opLock              = "appointments.lock"
	opRelease           = "appointments.release"
	opExistsOverlap     = "appointments.exists_overlap"
	opInsertAppointment = "appointments.insert"
	opCommit            = "appointments.commit"
)

type resourceKey struct {
	kind domain.ResourceKind
	id   int64
}

// resourceTables maps a kind to its table and the appointments column that
// references it.
var resourceTables = map[domain.ResourceKind]struct{ table, column string }{
	domain.KindDoctor: {table: "doctors", column: "doctor_id"},
	domain.KindRoom:   {table: "rooms", column: "room_id"},
}

// Tx is a booking transaction. Each resource lock is taken inside its own
// savepoint so that Release can drop it without touching earlier work.
type Tx struct {
	tx         pgx.Tx
	savepoints map[resourceKey]pgx.Tx
}

func tableFor(kind domain.ResourceKind) (string, string, error) {
	t, ok := resourceTables[kind]
	if !ok {
		return "", "", fmt.Errorf("unknown resource kind %q", kind)
	}
	return t.table, t.column, nil
}

// PatientByEmail returns nil, nil when the email is unknown.
func (t *Tx) PatientByEmail(ctx context.Context, email string) (*domain.Patient, error) {
	var p domain.Patient
	err := t.tx.QueryRow(ctx,
		`SELECT id, name, email, phone, created_at FROM patients WHERE email = $1`, email,
	).Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classify(opPatientByEmail, err)
	}
	return &p, nil
}

// InsertPatientIfAbsent relies on the unique email index: a concurrent
// insert of the same email makes this statement wait, then do nothing.
func (t *Tx) InsertPatientIfAbsent(ctx context.Context, p domain.Patient) (*domain.Patient, error) {
	query := `INSERT INTO patients (name, email, phone) VALUES ($1, $2, $3)
		ON CONFLICT (email) DO NOTHING
		RETURNING id, name, email, phone, created_at`

	var created domain.Patient
	err := t.tx.QueryRow(ctx, query, p.Name, p.Email, p.Phone).
		Scan(&created.ID, &created.Name, &created.Email, &created.Phone, &created.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classify(opInsertPatient, err)
	}
	return &created, nil
}

// FirstAvailable ignores row locks: a locked but unbooked resource is still
// a candidate, and the lock step decides who gets it.
func (t *Tx) FirstAvailable(ctx context.Context, q domain.CandidateQuery) (*domain.Resource, error) {
	var (
		query string
		args  []interface{}
	)
	switch q.Kind {
	case domain.KindDoctor:
		query = `SELECT d.id, d.name FROM doctors d
			WHERE d.specialty = $1
			  AND NOT EXISTS (
				SELECT 1 FROM appointments a
				WHERE a.doctor_id = d.id AND a.start_time < $3 AND a.end_time > $2
			  )
			ORDER BY d.id
			LIMIT 1`
		args = []interface{}{q.Specialty, q.Window.Start, q.Window.End}
	case domain.KindRoom:
		query = `SELECT r.id, r.name FROM rooms r
			WHERE NOT EXISTS (
				SELECT 1 FROM appointments a
				WHERE a.room_id = r.id AND a.start_time < $2 AND a.end_time > $1
			)
			ORDER BY r.id
			LIMIT 1`
		args = []interface{}{q.Window.Start, q.Window.End}
	default:
		return nil, classify(opFirstAvailable, fmt.Errorf("unknown resource kind %q", q.Kind))
	}

	res := domain.Resource{Kind: q.Kind}
	if err := t.tx.QueryRow(ctx, query, args...).Scan(&res.ID, &res.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classify(opFirstAvailable, err)
	}
	return &res, nil
}

// Lock takes FOR UPDATE on the resource row. lock_timeout turns a long
// wait into SQLSTATE 55P03.
func (t *Tx) Lock(ctx context.Context, kind domain.ResourceKind, id int64) (*domain.Resource, error) {
	table, _, err := tableFor(kind)
	if err != nil {
		return nil, classify(opLock, err)
	}
	key := resourceKey{kind: kind, id: id}

	sp, held := t.savepoints[key]
	if !held {
		sp, err = t.tx.Begin(ctx)
		if err != nil {
			return nil, classify(opLock, err)
		}
	}

	res := domain.Resource{Kind: kind}
	query := fmt.Sprintf(`SELECT id, name FROM %s WHERE id = $1 FOR UPDATE`, table)
	if err := sp.QueryRow(ctx, query, id).Scan(&res.ID, &res.Name); err != nil {
		if !held {
			_ = sp.Rollback(ctx)
		}
		return nil, classify(opLock, err)
	}

	t.savepoints[key] = sp
	return &res, nil
}

// Release rolls back to the savepoint taken by Lock, dropping the row lock.
func (t *Tx) Release(ctx context.Context, kind domain.ResourceKind, id int64) error {
	key := resourceKey{kind: kind, id: id}
	sp, ok := t.savepoints[key]
	if !ok {
		return nil
	}
	delete(t.savepoints, key)
	if err := sp.Rollback(ctx); err != nil {
		return classify(opRelease, err)
	}
	return nil
}

// ExistsOverlap runs after the lock is held, so under READ COMMITTED it
// sees every appointment committed by the previous lock holder.
func (t *Tx) ExistsOverlap(ctx context.Context, kind domain.ResourceKind, id int64, w domain.Window) (bool, error) {
	_, column, err := tableFor(kind)
	if err != nil {
		return false, classify(opExistsOverlap, err)
	}

	query := fmt.Sprintf(`SELECT EXISTS (
		SELECT 1 FROM appointments
		WHERE %s = $1 AND start_time < $3 AND end_time > $2
	)`, column)

	var exists bool
	if err := t.tx.QueryRow(ctx, query, id, w.Start, w.End).Scan(&exists); err != nil {
		return false, classify(opExistsOverlap, err)
	}
	return exists, nil
}

// InsertAppointment persists the appointment; the exclusion constraints
// reject any overlap that slipped past the locks.
func (t *Tx) InsertAppointment(ctx context.Context, a *domain.Appointment) error {
	query := `INSERT INTO appointments (doctor_id, room_id, patient_id, start_time, end_time, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := t.tx.QueryRow(ctx, query,
		a.DoctorID, a.RoomID, a.PatientID, a.StartTime, a.EndTime, string(a.Status),
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return classify(opInsertAppointment, err)
	}
	return nil
}

// Commit commits the transaction; open savepoints are committed with it.
func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return classify(opCommit, err)
	}
	return nil
}

// Rollback aborts the transaction. Calling it after Commit is a no-op.
func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}
