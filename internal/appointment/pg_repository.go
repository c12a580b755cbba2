package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/clinic-slot-booking/internal/db"
	"github.com/hackgods/clinic-slot-booking/internal/slot"
)

// Pool is the slice of *pgxpool.Pool the store uses.
type Pool interface {
	db.Querier
	db.Beginner
}

type PgStore struct {
	pool   Pool
	ledger slot.Ledger
	txOpts db.TxOptions
}

func NewPgStore(pool Pool, txOpts db.TxOptions) *PgStore {
	return &PgStore{pool: pool, ledger: slot.NewLedger(), txOpts: txOpts}
}

// Helpers

const appointmentColumns = `id, patient_id, doctor_id, slot_id, status, created_at, updated_at, canceled_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var canceledAt *time.Time

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.SlotID,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
		&canceledAt,
	)
	if err != nil {
		return nil, err
	}
	if a.Status, err = ParseStatus(string(a.Status)); err != nil {
		return nil, fmt.Errorf("appointment %s: %w", a.ID, err)
	}

	a.CanceledAt = canceledAt
	return &a, nil
}

const bookingColumns = `a.id, a.patient_id, a.doctor_id, a.slot_id, a.status,
		a.created_at, a.updated_at, a.canceled_at,
		s.schedule_date, to_char(s.start_time, 'HH24:MI'), to_char(s.end_time, 'HH24:MI')`

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var canceledAt *time.Time

	err := row.Scan(
		&b.ID,
		&b.PatientID,
		&b.DoctorID,
		&b.SlotID,
		&b.Status,
		&b.CreatedAt,
		&b.UpdatedAt,
		&canceledAt,
		&b.Date,
		&b.StartTime,
		&b.EndTime,
	)
	if err != nil {
		return nil, err
	}
	if b.Status, err = ParseStatus(string(b.Status)); err != nil {
		return nil, fmt.Errorf("appointment %s: %w", b.ID, err)
	}

	b.CanceledAt = canceledAt
	return &b, nil
}

func collectBookings(rows pgx.Rows, err error) ([]Booking, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Store

func (s *PgStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	return db.WithTx(ctx, s.pool, s.txOpts, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx, ledger: s.ledger})
	})
}

func (s *PgStore) GetAppointment(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM appointments a
		JOIN time_slots s ON s.id = a.slot_id
		WHERE a.id = $1
	`, id)

	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *PgStore) ListUpcomingForPatient(ctx context.Context, patientID uuid.UUID, from time.Time) ([]Booking, error) {
	return collectBookings(s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM appointments a
		JOIN time_slots s ON s.id = a.slot_id
		WHERE a.patient_id = $1
		  AND a.status = 'Booked'
		  AND s.schedule_date >= $2::date
		ORDER BY s.schedule_date, s.start_time
	`, patientID, from))
}

func (s *PgStore) ListHistoryForPatient(ctx context.Context, patientID uuid.UUID) ([]Booking, error) {
	return collectBookings(s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM appointments a
		JOIN time_slots s ON s.id = a.slot_id
		WHERE a.patient_id = $1
		ORDER BY s.schedule_date DESC, s.start_time DESC, a.created_at DESC
	`, patientID))
}

func (s *PgStore) ListUpcomingForDoctor(ctx context.Context, doctorID uuid.UUID, from time.Time) ([]Booking, error) {
	return collectBookings(s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM appointments a
		JOIN time_slots s ON s.id = a.slot_id
		WHERE a.doctor_id = $1
		  AND a.status = 'Booked'
		  AND s.schedule_date >= $2::date
		ORDER BY s.schedule_date, s.start_time
	`, doctorID, from))
}

func (s *PgStore) ListOpenSlots(ctx context.Context, doctorID uuid.UUID, from time.Time) ([]slot.TimeSlot, error) {
	return s.ledger.ListOpen(ctx, s.pool, doctorID, from)
}

// Tx

type pgTx struct {
	tx     pgx.Tx
	ledger slot.Ledger
}

func (t *pgTx) ClaimSlot(ctx context.Context, slotID uuid.UUID) (*slot.TimeSlot, error) {
	return t.ledger.ClaimSlot(ctx, t.tx, slotID)
}

func (t *pgTx) ReleaseSlot(ctx context.Context, slotID uuid.UUID) error {
	return t.ledger.ReleaseSlot(ctx, t.tx, slotID)
}

func (t *pgTx) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := t.tx.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, slot_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'Booked', now(), now())
		RETURNING `+appointmentColumns, a.ID, a.PatientID, a.DoctorID, a.SlotID)

	created, err := scanAppointment(row)
	switch {
	case err == nil:
		return created, nil
	case db.IsUniqueViolation(err):
		// Another Booked row for this slot; the row lock should make this unreachable.
		return nil, newError(CodeSlotUnavailable, ErrSlotUnavailable.Message, err)
	case db.IsForeignKeyViolation(err):
		return nil, newError(CodeNotFound, "patient not found", err)
	default:
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
}

// MarkCanceled only matches Booked rows, so two racing cancels serialize on the
// row and the loser sees no row.
func (t *pgTx) MarkCanceled(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'Canceled',
		    canceled_at = now(),
		    updated_at = now()
		WHERE id = $1
		  AND status = 'Booked'
		RETURNING `+appointmentColumns, id)

	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlreadyCanceled
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}
	return a, nil
}

func (t *pgTx) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
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
