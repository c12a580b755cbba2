package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusBooked   Status = "Booked"
	StatusCanceled Status = "Canceled"
)

func (s Status) Valid() bool {
	return s == StatusBooked || s == StatusCanceled
}

func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown appointment status %q", raw)
	}
	return s, nil
}

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

func (r Role) Valid() bool {
	return r == RolePatient || r == RoleDoctor
}

func ParseRole(raw string) (Role, error) {
	r := Role(raw)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return r, nil
}

// Requester is the already verified identity behind a call.
type Requester struct {
	ID   uuid.UUID
	Role Role
}

// Owns reports whether the requester is the appointment's own patient or its
// own doctor. Any other doctor is not.
func (r Requester) Owns(a *Appointment) bool {
	switch r.Role {
	case RolePatient:
		return r.ID == a.PatientID
	case RoleDoctor:
		return r.ID == a.DoctorID
	default:
		return false
	}
}

type Appointment struct {
	ID         uuid.UUID
	PatientID  uuid.UUID
	DoctorID   uuid.UUID
	SlotID     uuid.UUID
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
	CanceledAt *time.Time
}

// Booking is an appointment together with the time it is for.
type Booking struct {
	Appointment
	Date      time.Time
	StartTime string
	EndTime   string
}

const (
	EventAppointmentBooked   = "APPOINTMENT_BOOKED"
	EventAppointmentCanceled = "APPOINTMENT_CANCELED"
)

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
