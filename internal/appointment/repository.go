package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the booking engine and the slot generator.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)

	// Slots
	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	ListSlotsByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time, onlyFree bool) ([]Slot, error)
	// CreateSlots inserts all slots or none of them.
	CreateSlots(ctx context.Context, slots []Slot) ([]Slot, error)
	// UpdateUnbookedSlot and DeleteUnbookedSlot only touch rows with booked = false.
	// A booked row yields ErrSlotUnavailable. DeleteUnbookedSlot also refuses a
	// slot that any appointment references with ErrSlotHasHistory.
	UpdateUnbookedSlot(ctx context.Context, id uuid.UUID, start, end time.Time) (*Slot, error)
	DeleteUnbookedSlot(ctx context.Context, id uuid.UUID) error

	// Appointments
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]AppointmentDetail, error)

	// Expiry worker
	FindStalePending(ctx context.Context, createdBefore time.Time) ([]Appointment, error)

	// InTx runs fn inside one storage transaction. If fn returns an error
	// nothing it wrote is visible afterwards.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// Tx is the transactional view used for every read-check-write sequence.
type Tx interface {
	// LockSlot reads the slot and holds an exclusive lock on it until the transaction ends.
	LockSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	// LockPatient serialises concurrent transactions of one patient.
	LockPatient(ctx context.Context, patientID uuid.UUID) error
	// LockDoctor serialises concurrent bookings with one doctor. Taken after
	// LockPatient.
	LockDoctor(ctx context.Context, doctorID uuid.UUID) error

	ListActiveBookings(ctx context.Context, patientID uuid.UUID) ([]ActiveBooking, error)
	// FindDoctorOverlap returns a booked slot of the doctor, other than excludeSlotID,
	// overlapping iv, or nil when there is none.
	FindDoctorOverlap(ctx context.Context, doctorID, excludeSlotID uuid.UUID, iv Interval) (*Slot, error)

	// MarkSlotBooked flips booked from false to true and fails with ErrSlotUnavailable
	// when the slot was already booked.
	MarkSlotBooked(ctx context.Context, id uuid.UUID) error
	ReleaseSlot(ctx context.Context, id uuid.UUID) error

	InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	LockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateAppointment(ctx context.Context, a Appointment) (*Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
