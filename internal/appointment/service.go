package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/clinic-slot-booking/internal/slot"
)

// CapacityNotifier is told about each committed booking. It is never part of the
// booking transaction and its errors never reach the caller.
type CapacityNotifier interface {
	DoctorBooked(ctx context.Context, doctorID uuid.UUID) error
}

// CapacityReader reports how many bookings a doctor has taken, as counted by
// the CapacityNotifier.
type CapacityReader interface {
	Load(ctx context.Context, doctorID uuid.UUID) (int64, error)
}

// Book books and cancels appointments. It keeps no per-slot state in process;
// all coordination happens on the store's row locks, so any number of Book
// instances may share one database.
type Book struct {
	store         Store
	notifier      CapacityNotifier
	capacity      CapacityReader
	notifyTimeout time.Duration
	metrics       *Metrics
	log           zerolog.Logger
	tracer        trace.Tracer
	now           func() time.Time

	notifications sync.WaitGroup
}

type Option func(*Book)

func WithCapacityNotifier(n CapacityNotifier, timeout time.Duration) Option {
	return func(b *Book) {
		b.notifier = n
		b.notifyTimeout = timeout
	}
}

func WithCapacityReader(r CapacityReader) Option { return func(b *Book) { b.capacity = r } }

func WithMetrics(m *Metrics) Option { return func(b *Book) { b.metrics = m } }

func WithLogger(l zerolog.Logger) Option { return func(b *Book) { b.log = l } }

func WithClock(now func() time.Time) Option { return func(b *Book) { b.now = now } }

func NewBook(store Store, opts ...Option) *Book {
	b := &Book{
		store:         store,
		notifyTimeout: 2 * time.Second,
		log:           zerolog.Nop(),
		tracer:        otel.Tracer("github.com/hackgods/clinic-slot-booking/internal/appointment"),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type bookedPayload struct {
	SlotID    uuid.UUID `json:"slot_id"`
	PatientID uuid.UUID `json:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
}

type canceledPayload struct {
	SlotID     uuid.UUID `json:"slot_id"`
	CanceledBy uuid.UUID `json:"canceled_by"`
	Role       Role      `json:"role"`
}

// BookAppointment claims the slot and records a Booked appointment for the patient in
// one transaction. Losing the race for the slot, or naming a slot that does not
// exist, fails with ErrSlotUnavailable and leaves nothing written.
func (b *Book) BookAppointment(ctx context.Context, patientID, slotID uuid.UUID) (_ *Booking, err error) {
	start := time.Now()
	ctx, span := b.tracer.Start(ctx, "appointment.book", trace.WithAttributes(
		attribute.String("slot.id", slotID.String()),
		attribute.String("patient.id", patientID.String()),
	))
	defer func() {
		b.metrics.observe(opBook, start, err)
		endSpan(span, err)
	}()

	var booking *Booking
	err = b.store.WithinTx(ctx, func(tx Tx) error {
		claimed, err := tx.ClaimSlot(ctx, slotID)
		if err != nil {
			return err
		}

		appt, err := tx.InsertAppointment(ctx, Appointment{
			PatientID: patientID,
			DoctorID:  claimed.DoctorID,
			SlotID:    claimed.ID,
			Status:    StatusBooked,
		})
		if err != nil {
			return err
		}

		if err := b.logEvent(ctx, tx, appt.ID, EventAppointmentBooked, bookedPayload{
			SlotID:    claimed.ID,
			PatientID: patientID,
			DoctorID:  claimed.DoctorID,
			Date:      claimed.Date.Format(time.DateOnly),
			StartTime: claimed.StartTime,
			EndTime:   claimed.EndTime,
		}); err != nil {
			return err
		}

		booking = &Booking{
			Appointment: *appt,
			Date:        claimed.Date,
			StartTime:   claimed.StartTime,
			EndTime:     claimed.EndTime,
		}
		return nil
	})
	if err != nil {
		err = classify("book appointment", err)
		b.logFailure(err).
			Str("slot_id", slotID.String()).
			Str("patient_id", patientID.String()).
			Msg("booking failed")
		return nil, err
	}

	b.log.Info().
		Str("appointment_id", booking.ID.String()).
		Str("slot_id", slotID.String()).
		Str("doctor_id", booking.DoctorID.String()).
		Msg("appointment booked")

	b.notifyCapacity(ctx, booking.DoctorID)
	return booking, nil
}

// CancelAppointment cancels a Booked appointment on behalf of its own patient or its
// own doctor and makes the slot bookable again. The checks before the transaction
// read without locks; the status update itself only matches Booked rows, so of two
// racing cancels exactly one releases the slot and the other gets ErrAlreadyCanceled.
func (b *Book) CancelAppointment(ctx context.Context, appointmentID uuid.UUID, by Requester) (err error) {
	start := time.Now()
	ctx, span := b.tracer.Start(ctx, "appointment.cancel", trace.WithAttributes(
		attribute.String("appointment.id", appointmentID.String()),
		attribute.String("requester.role", string(by.Role)),
	))
	defer func() {
		b.metrics.observe(opCancel, start, err)
		endSpan(span, err)
	}()

	current, err := b.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return classify("load appointment", err)
	}
	if current.Status == StatusCanceled {
		return ErrAlreadyCanceled
	}
	if !by.Owns(&current.Appointment) {
		b.log.Warn().
			Str("appointment_id", appointmentID.String()).
			Str("requester_id", by.ID.String()).
			Str("role", string(by.Role)).
			Msg("cancel refused")
		return ErrForbidden
	}

	err = b.store.WithinTx(ctx, func(tx Tx) error {
		canceled, err := tx.MarkCanceled(ctx, appointmentID)
		if err != nil {
			return err
		}
		if err := tx.ReleaseSlot(ctx, canceled.SlotID); err != nil {
			return err
		}
		return b.logEvent(ctx, tx, canceled.ID, EventAppointmentCanceled, canceledPayload{
			SlotID:     canceled.SlotID,
			CanceledBy: by.ID,
			Role:       by.Role,
		})
	})
	if err != nil {
		err = classify("cancel appointment", err)
		b.logFailure(err).
			Str("appointment_id", appointmentID.String()).
			Msg("cancel failed")
		return err
	}

	b.log.Info().
		Str("appointment_id", appointmentID.String()).
		Str("slot_id", current.SlotID.String()).
		Msg("appointment canceled")
	return nil
}

// GetAppointment is visible to the appointment's patient and doctor only.
func (b *Book) GetAppointment(ctx context.Context, id uuid.UUID, by Requester) (*Booking, error) {
	booking, err := b.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, classify("get appointment", err)
	}
	if !by.Owns(&booking.Appointment) {
		return nil, ErrForbidden
	}
	return booking, nil
}

func (b *Book) UpcomingForPatient(ctx context.Context, patientID uuid.UUID, by Requester) ([]Booking, error) {
	if by.Role != RolePatient || by.ID != patientID {
		return nil, ErrForbidden
	}
	list, err := b.store.ListUpcomingForPatient(ctx, patientID, b.today())
	if err != nil {
		return nil, classify("list upcoming appointments", err)
	}
	return list, nil
}

func (b *Book) HistoryForPatient(ctx context.Context, patientID uuid.UUID, by Requester) ([]Booking, error) {
	if by.Role != RolePatient || by.ID != patientID {
		return nil, ErrForbidden
	}
	list, err := b.store.ListHistoryForPatient(ctx, patientID)
	if err != nil {
		return nil, classify("list appointment history", err)
	}
	return list, nil
}

func (b *Book) UpcomingForDoctor(ctx context.Context, doctorID uuid.UUID, by Requester) ([]Booking, error) {
	if by.Role != RoleDoctor || by.ID != doctorID {
		return nil, ErrForbidden
	}
	list, err := b.store.ListUpcomingForDoctor(ctx, doctorID, b.today())
	if err != nil {
		return nil, classify("list doctor appointments", err)
	}
	return list, nil
}

// OpenSlots lists the doctor's bookable slots from today on. Any authenticated
// requester may read it.
func (b *Book) OpenSlots(ctx context.Context, doctorID uuid.UUID) ([]slot.TimeSlot, error) {
	list, err := b.store.ListOpenSlots(ctx, doctorID, b.today())
	if err != nil {
		return nil, classify("list open slots", err)
	}
	return list, nil
}

// DoctorLoad returns the doctor's booking counter. Only the doctor may read it.
func (b *Book) DoctorLoad(ctx context.Context, doctorID uuid.UUID, by Requester) (int64, error) {
	if by.Role != RoleDoctor || by.ID != doctorID {
		return 0, ErrForbidden
	}
	if b.capacity == nil {
		return 0, newError(CodeTransient, "capacity counters unavailable", nil)
	}
	n, err := b.capacity.Load(ctx, doctorID)
	if err != nil {
		// The counter store is optional infrastructure; a failed read is retryable.
		return 0, newError(CodeTransient, "read doctor load", err)
	}
	return n, nil
}

// Wait blocks until in-flight capacity notifications finish.
func (b *Book) Wait() {
	b.notifications.Wait()
}

func (b *Book) today() time.Time {
	now := b.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func (b *Book) notifyCapacity(ctx context.Context, doctorID uuid.UUID) {
	if b.notifier == nil {
		return
	}

	// The request may end the moment we return; the update must not.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.notifyTimeout)
	b.notifications.Add(1)
	go func() {
		defer b.notifications.Done()
		defer cancel()

		if err := b.notifier.DoctorBooked(ctx, doctorID); err != nil {
			b.metrics.capacityFailed()
			b.log.Warn().Err(err).
				Str("doctor_id", doctorID.String()).
				Msg("capacity update failed")
		}
	}()
}

func (b *Book) logEvent(ctx context.Context, tx Tx, appointmentID uuid.UUID, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	return tx.InsertEvent(ctx, EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		Payload:       data,
		CreatedAt:     b.now(),
	})
}

// logFailure logs expected outcomes (lost race, bad id, forbidden) at debug and
// infrastructure failures at error.
func (b *Book) logFailure(err error) *zerolog.Event {
	switch CodeOf(err) {
	case CodeTransient:
		return b.log.Warn().Err(err)
	case CodeFatal:
		return b.log.Error().Err(err)
	default:
		return b.log.Debug().Err(err)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			span.SetAttributes(attribute.String("error.code", string(e.Code)))
		}
		if code := CodeOf(err); code == CodeTransient || code == CodeFatal {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
