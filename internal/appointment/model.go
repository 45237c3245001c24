package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Active reports whether the appointment still holds its slot for conflict purposes.
func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Doctor carries the availability configuration owned by the profile service.
// AvailableDays looks like "Mon,Wed,Fri" and AvailableHours like "09:00-12:00,14:00-18:00".
type Doctor struct {
	ID                  uuid.UUID
	Name                string
	Specialty           *string
	AvailableDays       string
	AvailableHours      string
	SlotDurationMinutes int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type Slot struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	Booked    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s Slot) Interval() Interval {
	return Interval{Start: s.StartTime, End: s.EndTime}
}

type Appointment struct {
	ID            uuid.UUID
	PatientID     uuid.UUID
	DoctorID      uuid.UUID
	SlotID        uuid.UUID
	Status        AppointmentStatus
	PaymentStatus PaymentStatus
	TransactionID *string
	Symptoms      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ActiveBooking is one of a patient's active appointments joined with its slot
// and doctor, as needed by the overlap check.
type ActiveBooking struct {
	AppointmentID uuid.UUID
	DoctorID      uuid.UUID
	DoctorName    string
	Slot          Interval
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Description   string
	Payload       []byte
	CreatedAt     time.Time
}

type AppointmentDetail struct {
	Appointment
	Slot   *Slot
	Doctor *Doctor
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps uses half-open semantics, so back-to-back intervals do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

func (i Interval) Valid() bool {
	return i.Start.Before(i.End)
}
