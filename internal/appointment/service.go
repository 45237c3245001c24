package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-booking/internal/config"
	"github.com/hackgods/clinic-slot-booking/internal/metrics"
	redisclient "github.com/hackgods/clinic-slot-booking/internal/redis"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventBookingRejected      = "BOOKING_REJECTED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentReleased  = "APPOINTMENT_RELEASED"
)

const txnAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

type BookRequest struct {
	PatientID uuid.UUID
	SlotID    uuid.UUID
	Symptoms  string
}

type Service struct {
	repo    Repository
	locker  redisclient.Locker
	cfg     config.Config
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, log zerolog.Logger, m *metrics.Metrics) *Service {
	if locker == nil {
		locker = redisclient.NopLocker{}
	}
	return &Service{
		repo:    repo,
		locker:  locker,
		cfg:     cfg,
		log:     log.With().Str("component", "booking").Logger(),
		metrics: m,
	}
}

// Book reserves a free slot for a patient. The availability check, the
// overlap checks and the booked-flag flip run in a single store transaction
// that holds the slot row lock, so two concurrent requests for the same slot
// cannot both succeed. The Redis lock in front only sheds contention early.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	started := time.Now()

	appt, err := s.book(ctx, req)
	s.metrics.ObserveBooking(bookingOutcome(err), time.Since(started))

	if err != nil {
		s.logEvent(ctx, nil, EventBookingRejected, fmt.Sprintf("booking of slot %s by patient %s rejected: %v", req.SlotID, req.PatientID, err), map[string]any{
			"slot_id":    req.SlotID.String(),
			"patient_id": req.PatientID.String(),
			"reason":     err.Error(),
		})
		return nil, err
	}

	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("slot_id", appt.SlotID.String()).
		Str("patient_id", appt.PatientID.String()).
		Msg("appointment booked")

	s.logEvent(ctx, &appt.ID, EventAppointmentBooked, fmt.Sprintf("patient %s booked slot %s with doctor %s", appt.PatientID, appt.SlotID, appt.DoctorID), map[string]any{
		"slot_id":    appt.SlotID.String(),
		"patient_id": appt.PatientID.String(),
		"doctor_id":  appt.DoctorID.String(),
	})
	return appt, nil
}

func (s *Service) book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	var created *Appointment

	err := s.locker.WithSlotLock(ctx, req.SlotID, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(ctx context.Context, tx Tx) error {
			slot, err := tx.LockSlot(ctx, req.SlotID)
			if err != nil {
				if errors.Is(err, ErrSlotNotFound) {
					return err
				}
				return fmt.Errorf("load slot: %w", err)
			}
			if slot.Booked {
				return ErrSlotUnavailable
			}

			if err := tx.LockPatient(ctx, req.PatientID); err != nil {
				return err
			}

			if err := s.checkOverlaps(ctx, tx, req.PatientID, slot); err != nil {
				return err
			}

			if err := tx.MarkSlotBooked(ctx, slot.ID); err != nil {
				return err
			}

			appt, err := tx.InsertAppointment(ctx, Appointment{
				PatientID:     req.PatientID,
				DoctorID:      slot.DoctorID,
				SlotID:        slot.ID,
				Status:        StatusPending,
				PaymentStatus: PaymentUnpaid,
				Symptoms:      req.Symptoms,
			})
			if err != nil {
				return err
			}

			created = appt
			return nil
		})
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		var conflict *ScheduleConflictError
		if errors.As(err, &conflict) && conflict.DoctorName == "" {
			if doc, derr := s.repo.GetDoctorByID(ctx, conflict.DoctorID); derr == nil {
				conflict.DoctorName = doc.Name
			}
		}
		return nil, err
	}

	return created, nil
}

func (s *Service) checkOverlaps(ctx context.Context, tx Tx, patientID uuid.UUID, slot *Slot) error {
	candidate := slot.Interval()

	active, err := tx.ListActiveBookings(ctx, patientID)
	if err != nil {
		return fmt.Errorf("load active appointments: %w", err)
	}
	for _, b := range active {
		if b.Slot.Overlaps(candidate) {
			return &ScheduleConflictError{
				DoctorID:    b.DoctorID,
				DoctorName:  b.DoctorName,
				Start:       b.Slot.Start,
				End:         b.Slot.End,
				PatientSide: true,
			}
		}
	}

	if !s.cfg.PreventDoctorOverlap {
		return nil
	}

	// duplicate slots of one doctor have different row locks
	if err := tx.LockDoctor(ctx, slot.DoctorID); err != nil {
		return err
	}
	other, err := tx.FindDoctorOverlap(ctx, slot.DoctorID, slot.ID, candidate)
	if err != nil {
		return fmt.Errorf("check doctor overlap: %w", err)
	}
	if other != nil {
		return &ScheduleConflictError{
			DoctorID: other.DoctorID,
			Start:    other.StartTime,
			End:      other.EndTime,
		}
	}
	return nil
}

// Cancel frees the slot of a pending or confirmed appointment.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	updated, err := s.transition(ctx, id, true,
		func(a Appointment) bool { return a.Status.Active() },
		func(a *Appointment) { a.Status = StatusCancelled },
	)
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(string(StatusCancelled))
	desc := fmt.Sprintf("appointment %s cancelled, slot %s released", updated.ID, updated.SlotID)
	if reason != "" {
		desc += ": " + reason
	}
	s.logEvent(ctx, &updated.ID, EventAppointmentCancelled, desc, map[string]any{
		"slot_id": updated.SlotID.String(),
		"reason":  reason,
	})
	return updated, nil
}

// ConfirmPayment is called by the payment collaborator once the consultation is paid.
func (s *Service) ConfirmPayment(ctx context.Context, id uuid.UUID, transactionID string) (*Appointment, error) {
	if transactionID == "" {
		generated, err := gonanoid.Generate(txnAlphabet, 10)
		if err != nil {
			return nil, fmt.Errorf("generate transaction id: %w", err)
		}
		transactionID = "TXN-" + generated
	}

	updated, err := s.transition(ctx, id, false,
		func(a Appointment) bool { return a.Status == StatusPending },
		func(a *Appointment) {
			a.Status = StatusConfirmed
			a.PaymentStatus = PaymentPaid
			a.TransactionID = &transactionID
		},
	)
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(string(StatusConfirmed))
	s.logEvent(ctx, &updated.ID, EventAppointmentConfirmed, fmt.Sprintf("appointment %s paid with transaction %s", updated.ID, transactionID), map[string]any{
		"transaction_id": transactionID,
	})
	return updated, nil
}

// Complete marks the visit as done. The slot stays booked.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	updated, err := s.transition(ctx, id, false,
		func(a Appointment) bool { return a.Status.Active() },
		func(a *Appointment) { a.Status = StatusCompleted },
	)
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(string(StatusCompleted))
	s.logEvent(ctx, &updated.ID, EventAppointmentCompleted, fmt.Sprintf("appointment %s completed by doctor %s", updated.ID, updated.DoctorID), map[string]any{})
	return updated, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, releaseSlot bool, allowed func(Appointment) bool, apply func(*Appointment)) (*Appointment, error) {
	var updated *Appointment

	err := s.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		appt, err := tx.LockAppointment(ctx, id)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return err
			}
			return fmt.Errorf("load appointment: %w", err)
		}
		if !allowed(*appt) {
			return fmt.Errorf("%w: appointment is %s", ErrInvalidStatusTransition, appt.Status)
		}

		apply(appt)
		u, err := tx.UpdateAppointment(ctx, *appt)
		if err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}

		if releaseSlot {
			if err := tx.ReleaseSlot(ctx, appt.SlotID); err != nil {
				return err
			}
		}

		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ReleaseStalePending is intended to be called by the worker periodically. It
// cancels unpaid pending appointments older than AppointmentTTL and frees their slots.
func (s *Service) ReleaseStalePending(ctx context.Context) (int, error) {
	if s.cfg.AppointmentTTL <= 0 {
		return 0, nil
	}

	cutoff := time.Now().Add(-s.cfg.AppointmentTTL)
	candidates, err := s.repo.FindStalePending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find stale pending appointments: %w", err)
	}

	released := 0
	for _, appt := range candidates {
		updated, err := s.transition(ctx, appt.ID, true,
			func(a Appointment) bool { return a.Status == StatusPending && a.PaymentStatus == PaymentUnpaid },
			func(a *Appointment) { a.Status = StatusCancelled },
		)
		if err != nil {
			if !errors.Is(err, ErrInvalidStatusTransition) && !errors.Is(err, ErrAppointmentNotFound) {
				s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to release stale appointment")
			}
			continue
		}

		released++
		s.logEvent(ctx, &updated.ID, EventAppointmentReleased, fmt.Sprintf("unpaid appointment %s released after %s", updated.ID, s.cfg.AppointmentTTL), map[string]any{
			"reason":  "worker",
			"slot_id": updated.SlotID.String(),
		})
	}

	s.metrics.Released(released)
	return released, nil
}

// GetAppointment retrieves a fully hydrated appointment by ID
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return detail, nil
}

// ListAppointmentsByPatient retrieves appointments for a specific patient
func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	limit, offset = normalizePage(limit, offset)
	appointments, err := s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

// ListAppointmentsByDoctor retrieves appointments for a specific doctor
func (s *Service) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	limit, offset = normalizePage(limit, offset)
	appointments, err := s.repo.ListAppointmentsByDoctor(ctx, doctorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return appointments, nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func bookingOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeBooked
	case errors.Is(err, ErrSlotUnavailable):
		return metrics.OutcomeUnavailable
	case errors.Is(err, ErrScheduleConflict):
		return metrics.OutcomeConflict
	case IsNotFound(err):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeError
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID *uuid.UUID, eventType, description string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		Description:   description,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("failed to insert event log")
	}
}
