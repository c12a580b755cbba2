// Package slot owns the time_slots table: claiming a slot for a booking,
// releasing it on cancel, and listing what is still open.
package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/clinic-slot-booking/internal/db"
)

// Ledger has no state of its own. Every call runs on the querier it is given,
// which for ClaimSlot and ReleaseSlot must be the caller's open transaction.
type Ledger struct{}

func NewLedger() Ledger { return Ledger{} }

const slotColumns = `id, doctor_id, schedule_date,
		to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), is_available`

func scanSlot(row pgx.Row) (*TimeSlot, error) {
	var s TimeSlot
	if err := row.Scan(&s.ID, &s.DoctorID, &s.Date, &s.StartTime, &s.EndTime, &s.Available); err != nil {
		return nil, err
	}
	return &s, nil
}

// ClaimSlot locks the slot row and flips it to unavailable. A concurrent claim on the
// same slot blocks on the row lock until this transaction ends, then re-evaluates
// is_available and finds nothing, so exactly one claimer wins.
func (Ledger) ClaimSlot(ctx context.Context, q db.Querier, slotID uuid.UUID) (*TimeSlot, error) {
	row := q.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE id = $1
		  AND is_available
		FOR UPDATE
	`, slotID)

	s, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnavailable
		}
		return nil, fmt.Errorf("lock slot %s: %w", slotID, err)
	}

	tag, err := q.Exec(ctx, `
		UPDATE time_slots
		SET is_available = false,
		    updated_at = now()
		WHERE id = $1
	`, slotID)
	if err != nil {
		return nil, fmt.Errorf("mark slot %s unavailable: %w", slotID, err)
	}
	if tag.RowsAffected() != 1 {
		return nil, fmt.Errorf("mark slot %s unavailable: %d rows affected", slotID, tag.RowsAffected())
	}

	s.Available = false
	return s, nil
}

// ReleaseSlot makes the slot bookable again. Releasing an already available slot is
// not an error; a slot that does not exist is.
func (Ledger) ReleaseSlot(ctx context.Context, q db.Querier, slotID uuid.UUID) error {
	tag, err := q.Exec(ctx, `
		UPDATE time_slots
		SET is_available = true,
		    updated_at = now()
		WHERE id = $1
	`, slotID)
	if err != nil {
		return fmt.Errorf("release slot %s: %w", slotID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOpen returns the doctor's available slots on or after from, earliest first.
// The result is a snapshot; a listed slot may be gone by the time it is claimed.
func (Ledger) ListOpen(ctx context.Context, q db.Querier, doctorID uuid.UUID, from time.Time) ([]TimeSlot, error) {
	rows, err := q.Query(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE doctor_id = $1
		  AND is_available
		  AND schedule_date >= $2::date
		ORDER BY schedule_date, start_time
	`, doctorID, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TimeSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}
