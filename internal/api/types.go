package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-booking/internal/appointment"
	"github.com/hackgods/clinic-slot-booking/internal/slot"
)

type BookRequest struct {
	SlotID string `json:"slot_id" validate:"required,uuid"`
}

type AppointmentResponse struct {
	AppointmentID uuid.UUID  `json:"appointment_id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	SlotID        uuid.UUID  `json:"slot_id"`
	Date          string     `json:"date"`
	StartTime     string     `json:"start_time"`
	EndTime       string     `json:"end_time"`
	Status        string     `json:"status"`
	CanceledAt    *time.Time `json:"canceled_at,omitempty"`
}

type SlotResponse struct {
	SlotID    uuid.UUID `json:"slot_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
}

type DoctorLoadResponse struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Booked   int64     `json:"booked"`
}

type ListResponse[T any] struct {
	Items []T `json:"items"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func toAppointmentResponse(b appointment.Booking) AppointmentResponse {
	return AppointmentResponse{
		AppointmentID: b.ID,
		PatientID:     b.PatientID,
		DoctorID:      b.DoctorID,
		SlotID:        b.SlotID,
		Date:          b.Date.Format(time.DateOnly),
		StartTime:     b.StartTime,
		EndTime:       b.EndTime,
		Status:        string(b.Status),
		CanceledAt:    b.CanceledAt,
	}
}

func toAppointmentList(list []appointment.Booking) ListResponse[AppointmentResponse] {
	items := make([]AppointmentResponse, 0, len(list))
	for _, b := range list {
		items = append(items, toAppointmentResponse(b))
	}
	return ListResponse[AppointmentResponse]{Items: items}
}

func toSlotList(list []slot.TimeSlot) ListResponse[SlotResponse] {
	items := make([]SlotResponse, 0, len(list))
	for _, s := range list {
		items = append(items, SlotResponse{
			SlotID:    s.ID,
			DoctorID:  s.DoctorID,
			Date:      s.Date.Format(time.DateOnly),
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
		})
	}
	return ListResponse[SlotResponse]{Items: items}
}
