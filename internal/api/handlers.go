package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-booking/internal/appointment"
	"github.com/hackgods/clinic-slot-booking/internal/slot"
)

type AppointmentService interface {
	BookAppointment(ctx context.Context, patientID, slotID uuid.UUID) (*appointment.Booking, error)
	CancelAppointment(ctx context.Context, id uuid.UUID, by appointment.Requester) error
	GetAppointment(ctx context.Context, id uuid.UUID, by appointment.Requester) (*appointment.Booking, error)
	UpcomingForPatient(ctx context.Context, patientID uuid.UUID, by appointment.Requester) ([]appointment.Booking, error)
	HistoryForPatient(ctx context.Context, patientID uuid.UUID, by appointment.Requester) ([]appointment.Booking, error)
	UpcomingForDoctor(ctx context.Context, doctorID uuid.UUID, by appointment.Requester) ([]appointment.Booking, error)
	OpenSlots(ctx context.Context, doctorID uuid.UUID) ([]slot.TimeSlot, error)
	DoctorLoad(ctx context.Context, doctorID uuid.UUID, by appointment.Requester) (int64, error)
}

// A booking body is a single slot id.
const maxBookBodyBytes = 1 << 10

type handlers struct {
	svc      AppointmentService
	validate *validator.Validate
	log      zerolog.Logger
}

func newHandlers(svc AppointmentService, log zerolog.Logger) *handlers {
	return &handlers{svc: svc, validate: validator.New(), log: log}
}

// requester is always present behind the authenticator.
func requester(r *http.Request) appointment.Requester {
	req, _ := RequesterFrom(r.Context())
	return req
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *handlers) book(w http.ResponseWriter, r *http.Request) {
	by := requester(r)
	if by.Role != appointment.RolePatient {
		writeError(w, http.StatusForbidden, string(appointment.CodeForbidden), "only patients can book appointments")
		return
	}

	var req BookRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBookBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body must not exceed 1 KiB")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
		return
	}
	slotID := uuid.MustParse(req.SlotID)

	booking, err := h.svc.BookAppointment(r.Context(), by.ID, slotID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(*booking))
}

func (h *handlers) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.svc.CancelAppointment(r.Context(), id, requester(r)); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

func (h *handlers) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	booking, err := h.svc.GetAppointment(r.Context(), id, requester(r))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(*booking))
}

type listFunc func(ctx context.Context, id uuid.UUID, by appointment.Requester) ([]appointment.Booking, error)

func (h *handlers) list(fn listFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		list, err := fn(r.Context(), id, requester(r))
		if err != nil {
			writeServiceError(w, r, h.log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentList(list))
	}
}

func (h *handlers) openSlots(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	list, err := h.svc.OpenSlots(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, toSlotList(list))
}

func (h *handlers) doctorLoad(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	n, err := h.svc.DoctorLoad(r.Context(), id, requester(r))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, DoctorLoadResponse{DoctorID: id, Booked: n})
}
