package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const (
	slotColumns        = `id, doctor_id, start_time, end_time, booked, created_at, updated_at`
	appointmentColumns = `id, patient_id, doctor_id, slot_id, status, payment_status, transaction_id, symptoms, created_at, updated_at`
	detailSelect       = `
		SELECT a.id, a.patient_id, a.doctor_id, a.slot_id, a.status, a.payment_status, a.transaction_id, a.symptoms, a.created_at, a.updated_at,
		       s.id, s.doctor_id, s.start_time, s.end_time, s.booked, s.created_at, s.updated_at,
		       d.id, d.name, d.specialty, d.available_days, d.available_hours, d.slot_duration_minutes, d.created_at, d.updated_at
		FROM appointments a
		JOIN doctor_slots s ON s.id = a.slot_id
		JOIN doctors d ON d.id = a.doctor_id`
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialty,
		&d.AvailableDays,
		&d.AvailableHours,
		&d.SlotDurationMinutes,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	return &d, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.StartTime,
		&s.EndTime,
		&s.Booked,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.SlotID,
		&a.Status,
		&a.PaymentStatus,
		&a.TransactionID,
		&a.Symptoms,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanDetail(row pgx.Row) (*AppointmentDetail, error) {
	var (
		d    AppointmentDetail
		slot Slot
		doc  Doctor
	)

	err := row.Scan(
		&d.ID, &d.PatientID, &d.DoctorID, &d.SlotID, &d.Status, &d.PaymentStatus, &d.TransactionID, &d.Symptoms, &d.CreatedAt, &d.UpdatedAt,
		&slot.ID, &slot.DoctorID, &slot.StartTime, &slot.EndTime, &slot.Booked, &slot.CreatedAt, &slot.UpdatedAt,
		&doc.ID, &doc.Name, &doc.Specialty, &doc.AvailableDays, &doc.AvailableHours, &doc.SlotDurationMinutes, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	d.Slot = &slot
	d.Doctor = &doc
	return &d, nil
}

func collectSlots(rows pgx.Rows) ([]Slot, error) {
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func collectDetails(rows pgx.Rows) ([]AppointmentDetail, error) {
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func insertEvent(ctx context.Context, q querier, ev EventLog) error {
	_, err := q.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, description, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, ev.Description, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, available_days, available_hours, slot_duration_minutes, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+slotColumns+` FROM doctor_slots WHERE id = $1`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListSlotsByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time, onlyFree bool) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM doctor_slots
		WHERE doctor_id = $1
		  AND start_time >= $2
		  AND start_time < $3
		  AND (NOT $4 OR booked = false)
		ORDER BY start_time, id
	`, doctorID, from, to, onlyFree)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

// CreateSlots copies the whole batch inside one transaction.
func (r *PgRepository) CreateSlots(ctx context.Context, slots []Slot) ([]Slot, error) {
	if len(slots) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	created := make([]Slot, len(slots))
	rows := make([][]any, len(slots))
	for i, s := range slots {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		s.Booked = false
		s.CreatedAt = now
		s.UpdatedAt = now
		created[i] = s
		rows[i] = []any{s.ID, s.DoctorID, s.StartTime, s.EndTime, s.Booked, s.CreatedAt, s.UpdatedAt}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"doctor_slots"},
		[]string{"id", "doctor_id", "start_time", "end_time", "booked", "created_at", "updated_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return nil, fmt.Errorf("copy slots: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit slots: %w", err)
	}

	return created, nil
}

func (r *PgRepository) UpdateUnbookedSlot(ctx context.Context, id uuid.UUID, start, end time.Time) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE doctor_slots
		SET start_time = $2,
		    end_time = $3,
		    updated_at = now()
		WHERE id = $1
		  AND booked = false
		RETURNING `+slotColumns, id, start, end)

	slot, err := scanSlot(row)
	if errors.Is(err, ErrSlotNotFound) {
		return nil, r.explainSlotMiss(ctx, id)
	}
	return slot, err
}

// DeleteUnbookedSlot keeps slots that any appointment, cancelled ones
// included, still references.
func (r *PgRepository) DeleteUnbookedSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM doctor_slots s
		WHERE s.id = $1
		  AND s.booked = false
		  AND NOT EXISTS (SELECT 1 FROM appointments a WHERE a.slot_id = s.id)
	`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return ErrSlotHasHistory
		}
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	slot, err := r.GetSlotByID(ctx, id)
	if err != nil {
		return err
	}
	if slot.Booked {
		return ErrSlotUnavailable
	}
	return ErrSlotHasHistory
}

// explainSlotMiss tells apart a missing slot from a booked one after a
// conditional statement matched no rows.
func (r *PgRepository) explainSlotMiss(ctx context.Context, id uuid.UUID) error {
	if _, err := r.GetSlotByID(ctx, id); err != nil {
		return err
	}
	return ErrSlotUnavailable
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	row := r.pool.QueryRow(ctx, detailSelect+` WHERE a.id = $1`, id)
	return scanDetail(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, detailSelect+`
		WHERE a.patient_id = $1
		ORDER BY s.start_time DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectDetails(rows)
}

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, detailSelect+`
		WHERE a.doctor_id = $1
		ORDER BY s.start_time DESC
		LIMIT $2 OFFSET $3
	`, doctorID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectDetails(rows)
}

func (r *PgRepository) FindStalePending(ctx context.Context, createdBefore time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'pending'
		  AND payment_status = 'unpaid'
		  AND created_at < $1
	`, createdBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	return insertEvent(ctx, r.pool, ev)
}

// pgTx implements Tx on top of a pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+slotColumns+` FROM doctor_slots WHERE id = $1 FOR UPDATE`, id)
	return scanSlot(row)
}

func (t *pgTx) LockPatient(ctx context.Context, patientID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, "patient:"+patientID.String())
	if err != nil {
		return fmt.Errorf("lock patient: %w", err)
	}
	return nil
}

func (t *pgTx) LockDoctor(ctx context.Context, doctorID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, "doctor:"+doctorID.String())
	if err != nil {
		return fmt.Errorf("lock doctor: %w", err)
	}
	return nil
}

func (t *pgTx) ListActiveBookings(ctx context.Context, patientID uuid.UUID) ([]ActiveBooking, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT a.id, a.doctor_id, d.name, s.start_time, s.end_time
		FROM appointments a
		JOIN doctor_slots s ON s.id = a.slot_id
		JOIN doctors d ON d.id = a.doctor_id
		WHERE a.patient_id = $1
		  AND a.status IN ('pending', 'confirmed')
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ActiveBooking
	for rows.Next() {
		var b ActiveBooking
		if err := rows.Scan(&b.AppointmentID, &b.DoctorID, &b.DoctorName, &b.Slot.Start, &b.Slot.End); err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (t *pgTx) FindDoctorOverlap(ctx context.Context, doctorID, excludeSlotID uuid.UUID, iv Interval) (*Slot, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM doctor_slots
		WHERE doctor_id = $1
		  AND id <> $2
		  AND booked = true
		  AND start_time < $4
		  AND $3 < end_time
		ORDER BY start_time
		LIMIT 1
	`, doctorID, excludeSlotID, iv.Start, iv.End)

	slot, err := scanSlot(row)
	if errors.Is(err, ErrSlotNotFound) {
		return nil, nil
	}
	return slot, err
}

func (t *pgTx) MarkSlotBooked(ctx context.Context, id uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE doctor_slots
		SET booked = true,
		    updated_at = now()
		WHERE id = $1
		  AND booked = false
	`, id)
	if err != nil {
		return fmt.Errorf("mark slot booked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotUnavailable
	}
	return nil
}

func (t *pgTx) ReleaseSlot(ctx context.Context, id uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE doctor_slots
		SET booked = false,
		    updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

func (t *pgTx) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := t.tx.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, slot_id, status, payment_status, transaction_id, symptoms, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.PatientID, a.DoctorID, a.SlotID, a.Status, a.PaymentStatus, a.TransactionID, a.Symptoms)

	created, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return created, nil
}

func (t *pgTx) LockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
	return scanAppointment(row)
}

func (t *pgTx) UpdateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    payment_status = $3,
		    transaction_id = $4,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		a.ID, a.Status, a.PaymentStatus, a.TransactionID)
	return scanAppointment(row)
}

func (t *pgTx) InsertEvent(ctx context.Context, ev EventLog) error {
	return insertEvent(ctx, t.tx, ev)
}
