package slot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var slotCols = []string{"id", "doctor_id", "schedule_date", "start_time", "end_time", "is_available"}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestClaimSlot_LocksAndMarksUnavailable(t *testing.T) {
	mock := newMock(t)
	slotID, doctorID := uuid.New(), uuid.New()
	day := time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM time_slots\s+WHERE id = \$1\s+AND is_available\s+FOR UPDATE`).
		WithArgs(slotID).
		WillReturnRows(pgxmock.NewRows(slotCols).AddRow(slotID, doctorID, day, "09:00", "09:30", true))
	mock.ExpectExec(`UPDATE time_slots\s+SET is_available = false`).
		WithArgs(slotID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	s, err := NewLedger().ClaimSlot(context.Background(), mock, slotID)
	require.NoError(t, err)

	assert.Equal(t, doctorID, s.DoctorID)
	assert.Equal(t, "09:00", s.StartTime)
	assert.Equal(t, "09:30", s.EndTime)
	assert.False(t, s.Available)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimSlot_TakenOrMissingIsUnavailable(t *testing.T) {
	mock := newMock(t)
	slotID := uuid.New()

	mock.ExpectQuery(`FOR UPDATE`).WithArgs(slotID).WillReturnRows(pgxmock.NewRows(slotCols))

	_, err := NewLedger().ClaimSlot(context.Background(), mock, slotID)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimSlot_PropagatesLockErrors(t *testing.T) {
	mock := newMock(t)
	slotID := uuid.New()
	lockErr := errors.New("canceling statement due to lock timeout")

	mock.ExpectQuery(`FOR UPDATE`).WithArgs(slotID).WillReturnError(lockErr)

	_, err := NewLedger().ClaimSlot(context.Background(), mock, slotID)
	require.ErrorIs(t, err, lockErr)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestReleaseSlot(t *testing.T) {
	mock := newMock(t)
	slotID := uuid.New()

	mock.ExpectExec(`SET is_available = true`).WithArgs(slotID).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, NewLedger().ReleaseSlot(context.Background(), mock, slotID))

	mock.ExpectExec(`SET is_available = true`).WithArgs(slotID).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, NewLedger().ReleaseSlot(context.Background(), mock, slotID), ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOpen(t *testing.T) {
	mock := newMock(t)
	doctorID := uuid.New()
	from := time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`ORDER BY schedule_date, start_time`).
		WithArgs(doctorID, from).
		WillReturnRows(pgxmock.NewRows(slotCols).
			AddRow(uuid.New(), doctorID, from, "09:00", "09:30", true).
			AddRow(uuid.New(), doctorID, from, "10:00", "10:30", true))

	slots, err := NewLedger().ListOpen(context.Background(), mock, doctorID, from)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "10:00", slots[1].StartTime)
}
