package slot

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUnavailable covers both a missing slot and one already taken.
	// Callers cannot tell the two apart, and should not need to.
	ErrUnavailable = errors.New("slot unavailable")
	ErrNotFound    = errors.New("slot not found")
)

type TimeSlot struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Date      time.Time // calendar date, time part is zero
	StartTime string    // HH:MM
	EndTime   string    // HH:MM
	Available bool
}
