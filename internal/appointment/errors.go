package appointment

import (
	"errors"
	"fmt"

	"github.com/hackgods/clinic-slot-booking/internal/db"
	"github.com/hackgods/clinic-slot-booking/internal/slot"
)

// Code classifies every error the booking operations return.
type Code string

const (
	CodeSlotUnavailable Code = "slot_unavailable"
	CodeNotFound        Code = "not_found"
	CodeAlreadyCanceled Code = "already_canceled"
	CodeForbidden       Code = "forbidden"
	CodeTransient       Code = "temporarily_unavailable"
	CodeFatal           Code = "internal_error"
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on code, so errors.Is(err, ErrNotFound) holds for any NotFound error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrSlotUnavailable = &Error{Code: CodeSlotUnavailable, Message: "slot no longer available"}
	ErrNotFound        = &Error{Code: CodeNotFound, Message: "appointment not found"}
	ErrAlreadyCanceled = &Error{Code: CodeAlreadyCanceled, Message: "appointment already canceled"}
	ErrForbidden       = &Error{Code: CodeForbidden, Message: "not allowed to act on this appointment"}
	ErrTransient       = &Error{Code: CodeTransient, Message: "temporarily unavailable, retry"}
	ErrFatal           = &Error{Code: CodeFatal, Message: "internal error"}
)

func newError(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the code carried by err. Unclassified errors are Fatal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeFatal
}

// classify turns a storage error into the taxonomy. Errors that already carry a
// code pass through untouched.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, slot.ErrUnavailable):
		return newError(CodeSlotUnavailable, ErrSlotUnavailable.Message, err)
	case errors.Is(err, slot.ErrNotFound):
		return newError(CodeFatal, op+": slot referenced by appointment is missing", err)
	case db.IsTransient(err):
		return newError(CodeTransient, op, err)
	case db.IsIntegrityViolation(err):
		return newError(CodeFatal, op+": integrity constraint violated", err)
	default:
		return newError(CodeFatal, op, err)
	}
}
