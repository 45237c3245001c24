package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-booking/internal/appointment"
	"github.com/hackgods/clinic-slot-booking/internal/config"
	"github.com/hackgods/clinic-slot-booking/internal/metrics"
)

const (
	EventSlotsGenerated = "SLOTS_GENERATED"
	EventSlotAdded      = "SLOT_ADDED"
	EventSlotUpdated    = "SLOT_UPDATED"
	EventSlotDeleted    = "SLOT_DELETED"
)

// maxAvailabilityDays bounds a single availability expansion.
const maxAvailabilityDays = 92

// Store is the slice of the appointment repository the slot generator needs.
type Store interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*appointment.Doctor, error)
	GetSlotByID(ctx context.Context, id uuid.UUID) (*appointment.Slot, error)
	ListSlotsByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time, onlyFree bool) ([]appointment.Slot, error)
	CreateSlots(ctx context.Context, slots []appointment.Slot) ([]appointment.Slot, error)
	UpdateUnbookedSlot(ctx context.Context, id uuid.UUID, start, end time.Time) (*appointment.Slot, error)
	DeleteUnbookedSlot(ctx context.Context, id uuid.UUID) error
	InsertEvent(ctx context.Context, ev appointment.EventLog) error
}

type GenerateRequest struct {
	DoctorID        uuid.UUID
	Date            string // YYYY-MM-DD
	DurationMinutes int
	TimeRanges      []string // HH:MM-HH:MM
}

type AvailabilityRequest struct {
	DoctorID uuid.UUID
	From     string // YYYY-MM-DD, inclusive
	To       string // YYYY-MM-DD, inclusive
}

type Service struct {
	store   Store
	loc     *time.Location
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func NewService(store Store, cfg config.Config, log zerolog.Logger, m *metrics.Metrics) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store:   store,
		loc:     loc,
		log:     log.With().Str("component", "schedule").Logger(),
		metrics: m,
	}
}

// Generate expands the given ranges on one date and persists every slot, or none.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) ([]appointment.Slot, error) {
	if req.DurationMinutes <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidConfiguration)
	}
	date, err := ParseDate(req.Date, s.loc)
	if err != nil {
		return nil, err
	}
	ranges, err := ParseTimeRanges(req.TimeRanges)
	if err != nil {
		return nil, err
	}

	if err := s.ensureDoctor(ctx, req.DoctorID); err != nil {
		return nil, err
	}

	slots := Expand(req.DoctorID, date, time.Duration(req.DurationMinutes)*time.Minute, ranges, s.loc)
	created, err := s.persist(ctx, slots)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, EventSlotsGenerated, fmt.Sprintf("generated %d slots for doctor %s on %s", len(created), req.DoctorID, req.Date), map[string]any{
		"doctor_id":   req.DoctorID.String(),
		"date":        req.Date,
		"duration":    req.DurationMinutes,
		"time_ranges": req.TimeRanges,
		"count":       len(created),
	})
	return created, nil
}

// GenerateFromAvailability runs the same expansion for every date in [From, To]
// whose weekday is in the doctor's available days, using the doctor's stored
// hours and slot duration.
func (s *Service) GenerateFromAvailability(ctx context.Context, req AvailabilityRequest) ([]appointment.Slot, error) {
	from, err := ParseDate(req.From, s.loc)
	if err != nil {
		return nil, err
	}
	to, err := ParseDate(req.To, s.loc)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range ends before it starts", ErrInvalidConfiguration)
	}
	if to.Sub(from) > maxAvailabilityDays*24*time.Hour {
		return nil, fmt.Errorf("%w: range longer than %d days", ErrInvalidConfiguration, maxAvailabilityDays)
	}

	doc, err := s.store.GetDoctorByID(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if doc.SlotDurationMinutes <= 0 {
		return nil, fmt.Errorf("%w: doctor has no slot duration", ErrInvalidConfiguration)
	}
	ranges, err := ParseAvailableHours(doc.AvailableHours)
	if err != nil {
		return nil, err
	}
	days, err := ParseWeekdays(doc.AvailableDays)
	if err != nil {
		return nil, err
	}

	duration := time.Duration(doc.SlotDurationMinutes) * time.Minute
	var slots []appointment.Slot
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if len(days) > 0 && !days[d.Weekday()] {
			continue
		}
		slots = append(slots, Expand(doc.ID, d, duration, ranges, s.loc)...)
	}

	created, err := s.persist(ctx, slots)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, EventSlotsGenerated, fmt.Sprintf("generated %d slots for doctor %s from %s to %s", len(created), doc.ID, req.From, req.To), map[string]any{
		"doctor_id": doc.ID.String(),
		"from":      req.From,
		"to":        req.To,
		"days":      doc.AvailableDays,
		"hours":     doc.AvailableHours,
		"count":     len(created),
	})
	return created, nil
}

// AddSlot creates a single slot. A zero duration falls back to the doctor's default.
func (s *Service) AddSlot(ctx context.Context, doctorID uuid.UUID, start time.Time, durationMinutes int) (*appointment.Slot, error) {
	doc, err := s.store.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if durationMinutes == 0 {
		durationMinutes = doc.SlotDurationMinutes
	}
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidConfiguration)
	}
	if start.IsZero() {
		return nil, fmt.Errorf("%w: start time required", ErrInvalidConfiguration)
	}

	created, err := s.persist(ctx, []appointment.Slot{{
		DoctorID:  doctorID,
		StartTime: start,
		EndTime:   start.Add(time.Duration(durationMinutes) * time.Minute),
	}})
	if err != nil {
		return nil, err
	}
	slot := created[0]

	s.logEvent(ctx, EventSlotAdded, fmt.Sprintf("doctor %s added slot %s at %s", doctorID, slot.ID, slot.StartTime.Format(time.RFC3339)), map[string]any{
		"slot_id": slot.ID.String(),
	})
	return &slot, nil
}

// UpdateSlot moves an unbooked slot. A zero duration keeps the current length.
func (s *Service) UpdateSlot(ctx context.Context, slotID uuid.UUID, start time.Time, durationMinutes int) (*appointment.Slot, error) {
	if durationMinutes < 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidConfiguration)
	}
	if start.IsZero() {
		return nil, fmt.Errorf("%w: start time required", ErrInvalidConfiguration)
	}

	length := time.Duration(durationMinutes) * time.Minute
	if durationMinutes == 0 {
		current, err := s.store.GetSlotByID(ctx, slotID)
		if err != nil {
			return nil, err
		}
		length = current.EndTime.Sub(current.StartTime)
	}

	slot, err := s.store.UpdateUnbookedSlot(ctx, slotID, start, start.Add(length))
	if err != nil {
		if errors.Is(err, appointment.ErrSlotUnavailable) || errors.Is(err, appointment.ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update slot: %w", err)
	}

	s.logEvent(ctx, EventSlotUpdated, fmt.Sprintf("slot %s moved to %s", slot.ID, slot.StartTime.Format(time.RFC3339)), map[string]any{
		"slot_id": slot.ID.String(),
	})
	return slot, nil
}

// DeleteSlot removes an unbooked slot.
func (s *Service) DeleteSlot(ctx context.Context, slotID uuid.UUID) error {
	if err := s.store.DeleteUnbookedSlot(ctx, slotID); err != nil {
		if errors.Is(err, appointment.ErrSlotUnavailable) || errors.Is(err, appointment.ErrSlotNotFound) {
			return err
		}
		return fmt.Errorf("delete slot: %w", err)
	}

	s.logEvent(ctx, EventSlotDeleted, fmt.Sprintf("slot %s deleted", slotID), map[string]any{
		"slot_id": slotID.String(),
	})
	return nil
}

// ListSlots returns the doctor's slots starting in [from, to), ordered by start.
func (s *Service) ListSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time, onlyFree bool) ([]appointment.Slot, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: empty time window", ErrInvalidConfiguration)
	}
	if err := s.ensureDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	slots, err := s.store.ListSlotsByDoctor(ctx, doctorID, from, to, onlyFree)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

// Location is the clinic time zone clock times are read in.
func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) ensureDoctor(ctx context.Context, doctorID uuid.UUID) error {
	if _, err := s.store.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, appointment.ErrDoctorNotFound) {
			return err
		}
		return fmt.Errorf("load doctor: %w", err)
	}
	return nil
}

func (s *Service) persist(ctx context.Context, slots []appointment.Slot) ([]appointment.Slot, error) {
	if len(slots) == 0 {
		return []appointment.Slot{}, nil
	}
	created, err := s.store.CreateSlots(ctx, slots)
	if err != nil {
		return nil, fmt.Errorf("create slots: %w", err)
	}
	s.metrics.AddSlots(len(created))
	return created, nil
}

func (s *Service) logEvent(ctx context.Context, eventType, description string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	ev := appointment.EventLog{
		EventType:   eventType,
		Description: description,
		Payload:     data,
		CreatedAt:   time.Now(),
	}
	if err := s.store.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("failed to insert event log")
	}
}
