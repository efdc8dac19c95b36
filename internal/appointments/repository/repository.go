package repository

import (
	"context"
	"fmt"
	"time"

	"clinic_booking_backend/internal/appointments/domain"
	"clinic_booking_backend/internal/appointments/service"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both the pool and an open transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Repository provides database operations for bookings
type Repository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

const (
	opBegin            = "appointments.begin"
	opListAppointments = "appointments.list"
	opListDoctors      = "appointments.list_doctors"
	opListRooms        = "appointments.list_rooms"
	opUpsertDoctor     = "appointments.upsert_doctor"
	opUpsertRoom       = "appointments.upsert_room"
)

// New creates a new appointments repository. lockTimeout bounds every row
// lock wait inside a booking transaction.
func New(pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	return &Repository{pool: pool, lockTimeout: lockTimeout}
}

// Begin opens a READ COMMITTED transaction with a local lock_timeout.
func (r *Repository) Begin(ctx context.Context) (service.Tx, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, classify(opBegin, err)
	}

	if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, lockTimeoutSetting(r.lockTimeout)); err != nil {
		_ = tx.Rollback(ctx)
		return nil, classify(opBegin, err)
	}

	return &Tx{tx: tx, savepoints: make(map[resourceKey]pgx.Tx)}, nil
}

// lockTimeoutSetting renders d for lock_timeout, rounding up to whole
// milliseconds. Postgres reads 0 as no timeout, so the result is at least 1ms.
func lockTimeoutSetting(d time.Duration) string {
	ms := int64((d + time.Millisecond - 1) / time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	return fmt.Sprintf("%dms", ms)
}

// ListAppointments returns one page ordered by start time.
func (r *Repository) ListAppointments(ctx context.Context, offset, limit int) ([]domain.Appointment, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM appointments`).Scan(&total); err != nil {
		return nil, 0, classify(opListAppointments, err)
	}

	query := `SELECT id, doctor_id, room_id, patient_id, start_time, end_time, status, created_at
		FROM appointments
		ORDER BY start_time ASC, id ASC
		LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, classify(opListAppointments, err)
	}
	defer rows.Close()

	items := make([]domain.Appointment, 0, limit)
	for rows.Next() {
		var a domain.Appointment
		var status string
		if err := rows.Scan(&a.ID, &a.DoctorID, &a.RoomID, &a.PatientID, &a.StartTime, &a.EndTime, &status, &a.CreatedAt); err != nil {
			return nil, 0, classify(opListAppointments, err)
		}
		a.Status = domain.AppointmentStatus(status)
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classify(opListAppointments, err)
	}

	return items, total, nil
}

// ListDoctors returns doctors by id, filtered by exact specialty when given.
func (r *Repository) ListDoctors(ctx context.Context, specialty string) ([]domain.Doctor, error) {
	query := `SELECT id, name, specialty FROM doctors
		WHERE ($1::text = '' OR specialty = $1)
		ORDER BY id`

	rows, err := r.pool.Query(ctx, query, specialty)
	if err != nil {
		return nil, classify(opListDoctors, err)
	}
	defer rows.Close()

	var doctors []domain.Doctor
	for rows.Next() {
		var d domain.Doctor
		if err := rows.Scan(&d.ID, &d.Name, &d.Specialty); err != nil {
			return nil, classify(opListDoctors, err)
		}
		doctors = append(doctors, d)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(opListDoctors, err)
	}
	return doctors, nil
}

// ListRooms returns rooms by id.
func (r *Repository) ListRooms(ctx context.Context) ([]domain.Room, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, location FROM rooms ORDER BY id`)
	if err != nil {
		return nil, classify(opListRooms, err)
	}
	defer rows.Close()

	var rooms []domain.Room
	for rows.Next() {
		var rm domain.Room
		if err := rows.Scan(&rm.ID, &rm.Name, &rm.Location); err != nil {
			return nil, classify(opListRooms, err)
		}
		rooms = append(rooms, rm)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(opListRooms, err)
	}
	return rooms, nil
}

// UpsertDoctor inserts or updates a doctor. An explicit ID is kept and the
// id sequence is moved past it.
func (r *Repository) UpsertDoctor(ctx context.Context, d domain.Doctor) (domain.Doctor, error) {
	if d.ID == 0 {
		err := r.pool.QueryRow(ctx,
			`INSERT INTO doctors (name, specialty) VALUES ($1, $2) RETURNING id`,
			d.Name, d.Specialty,
		).Scan(&d.ID)
		if err != nil {
			return domain.Doctor{}, classify(opUpsertDoctor, err)
		}
		return d, nil
	}

	query := `INSERT INTO doctors (id, name, specialty) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, specialty = EXCLUDED.specialty`
	if _, err := r.pool.Exec(ctx, query, d.ID, d.Name, d.Specialty); err != nil {
		return domain.Doctor{}, classify(opUpsertDoctor, err)
	}
	if err := syncSequence(ctx, r.pool, "doctors"); err != nil {
		return domain.Doctor{}, classify(opUpsertDoctor, err)
	}
	return d, nil
}

// UpsertRoom inserts or updates a room, like UpsertDoctor.
func (r *Repository) UpsertRoom(ctx context.Context, rm domain.Room) (domain.Room, error) {
	if rm.ID == 0 {
		err := r.pool.QueryRow(ctx,
			`INSERT INTO rooms (name, location) VALUES ($1, $2) RETURNING id`,
			rm.Name, rm.Location,
		).Scan(&rm.ID)
		if err != nil {
			return domain.Room{}, classify(opUpsertRoom, err)
		}
		return rm, nil
	}

	query := `INSERT INTO rooms (id, name, location) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, location = EXCLUDED.location`
	if _, err := r.pool.Exec(ctx, query, rm.ID, rm.Name, rm.Location); err != nil {
		return domain.Room{}, classify(opUpsertRoom, err)
	}
	if err := syncSequence(ctx, r.pool, "rooms"); err != nil {
		return domain.Room{}, classify(opUpsertRoom, err)
	}
	return rm, nil
}

// syncSequence moves the table's id sequence past explicitly inserted ids.
// table is always a package constant.
func syncSequence(ctx context.Context, q DBTX, table string) error {
	query := fmt.Sprintf(
		`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), GREATEST((SELECT MAX(id) FROM %[1]s), 1))`,
		table,
	)
	_, err := q.Exec(ctx, query)
	return err
}

var _ service.Store = (*Repository)(nil)
