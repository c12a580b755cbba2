package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-booking/internal/slot"
)

// Store is everything the service needs from persistence. Writes only happen
// through WithinTx, which commits when fn returns nil and rolls back otherwise.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// GetAppointment returns ErrNotFound when id does not exist.
	GetAppointment(ctx context.Context, id uuid.UUID) (*Booking, error)

	ListUpcomingForPatient(ctx context.Context, patientID uuid.UUID, from time.Time) ([]Booking, error)
	ListHistoryForPatient(ctx context.Context, patientID uuid.UUID) ([]Booking, error)
	ListUpcomingForDoctor(ctx context.Context, doctorID uuid.UUID, from time.Time) ([]Booking, error)
	ListOpenSlots(ctx context.Context, doctorID uuid.UUID, from time.Time) ([]slot.TimeSlot, error)
}

// Tx is one open transaction.
type Tx interface {
	// ClaimSlot returns slot.ErrUnavailable when the slot is taken or missing.
	ClaimSlot(ctx context.Context, slotID uuid.UUID) (*slot.TimeSlot, error)
	ReleaseSlot(ctx context.Context, slotID uuid.UUID) error

	InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	// MarkCanceled moves a Booked appointment to Canceled and returns
	// ErrAlreadyCanceled when it is no longer Booked.
	MarkCanceled(ctx context.Context, id uuid.UUID) (*Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
