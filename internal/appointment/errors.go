package appointment

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

var (
	ErrSlotUnavailable         = errors.New("slot is already booked")
	ErrSlotBeingBooked         = fmt.Errorf("slot is currently being booked: %w", ErrSlotUnavailable)
	ErrSlotHasHistory          = fmt.Errorf("slot has appointment history: %w", ErrSlotUnavailable)
	ErrScheduleConflict        = errors.New("schedule conflict")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// IsNotFound reports whether err is one of the not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSlotNotFound) ||
		errors.Is(err, ErrAppointmentNotFound) ||
		errors.Is(err, ErrPatientNotFound) ||
		errors.Is(err, ErrDoctorNotFound)
}

// ScheduleConflictError names the booking that collides with the requested slot.
// PatientSide is false when the collision is another booked slot of the same doctor.
type ScheduleConflictError struct {
	DoctorID    uuid.UUID
	DoctorName  string
	Start       time.Time
	End         time.Time
	PatientSide bool
}

func (e *ScheduleConflictError) Error() string {
	who := e.DoctorName
	if who == "" {
		who = e.DoctorID.String()
	}
	if e.PatientSide {
		return fmt.Sprintf("you already have an appointment with Dr. %s at this time (%s-%s)",
			who, e.Start.Format("15:04"), e.End.Format("15:04"))
	}
	return fmt.Sprintf("Dr. %s already has a booking at this time (%s-%s)",
		who, e.Start.Format("15:04"), e.End.Format("15:04"))
}

func (e *ScheduleConflictError) Is(target error) bool {
	return target == ErrScheduleConflict
}
