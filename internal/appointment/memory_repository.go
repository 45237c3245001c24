package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps everything in process memory. InTx holds one mutex for
// the whole transaction and restores a snapshot when fn fails, so it offers the
// same atomicity as the Postgres repository within a single process.
type MemoryRepository struct {
	mu           sync.Mutex
	patients     map[uuid.UUID]Patient
	doctors      map[uuid.UUID]Doctor
	slots        map[uuid.UUID]Slot
	appointments map[uuid.UUID]Appointment
	events       []EventLog
	nextEventID  int64
	now          func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		patients:     make(map[uuid.UUID]Patient),
		doctors:      make(map[uuid.UUID]Doctor),
		slots:        make(map[uuid.UUID]Slot),
		appointments: make(map[uuid.UUID]Appointment),
		now:          time.Now,
	}
}

// SetClock replaces the time source used for created/updated timestamps.
func (r *MemoryRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *MemoryRepository) AddPatient(p Patient) Patient {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt, p.UpdatedAt = r.now(), r.now()
	r.patients[p.ID] = p
	return p
}

func (r *MemoryRepository) AddDoctor(d Doctor) Doctor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt, d.UpdatedAt = r.now(), r.now()
	r.doctors[d.ID] = d
	return d
}

// Events returns a copy of the event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventLog, len(r.events))
	copy(out, r.events)
	return out
}

func (r *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (r *MemoryRepository) GetSlotByID(_ context.Context, id uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &s, nil
}

func (r *MemoryRepository) ListSlotsByDoctor(_ context.Context, doctorID uuid.UUID, from, to time.Time, onlyFree bool) ([]Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Slot
	for _, s := range r.slots {
		if s.DoctorID != doctorID || s.StartTime.Before(from) || !s.StartTime.Before(to) {
			continue
		}
		if onlyFree && s.Booked {
			continue
		}
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartTime.Equal(result[j].StartTime) {
			return result[i].ID.String() < result[j].ID.String()
		}
		return result[i].StartTime.Before(result[j].StartTime)
	})
	return result, nil
}

func (r *MemoryRepository) CreateSlots(_ context.Context, slots []Slot) ([]Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	created := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		s.Booked = false
		s.CreatedAt, s.UpdatedAt = now, now
		created = append(created, s)
	}
	for _, s := range created {
		r.slots[s.ID] = s
	}
	return created, nil
}

func (r *MemoryRepository) UpdateUnbookedSlot(_ context.Context, id uuid.UUID, start, end time.Time) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.Booked {
		return nil, ErrSlotUnavailable
	}
	s.StartTime, s.EndTime, s.UpdatedAt = start, end, r.now()
	r.slots[id] = s
	return &s, nil
}

func (r *MemoryRepository) DeleteUnbookedSlot(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok {
		return ErrSlotNotFound
	}
	if s.Booked {
		return ErrSlotUnavailable
	}
	for _, a := range r.appointments {
		if a.SlotID == id {
			return ErrSlotHasHistory
		}
	}
	delete(r.slots, id)
	return nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) GetAppointmentDetail(_ context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	d := r.detailLocked(a)
	return &d, nil
}

func (r *MemoryRepository) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	return r.listDetails(func(a Appointment) bool { return a.PatientID == patientID }, limit, offset), nil
}

func (r *MemoryRepository) ListAppointmentsByDoctor(_ context.Context, doctorID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	return r.listDetails(func(a Appointment) bool { return a.DoctorID == doctorID }, limit, offset), nil
}

func (r *MemoryRepository) listDetails(match func(Appointment) bool, limit, offset int) []AppointmentDetail {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []AppointmentDetail
	for _, a := range r.appointments {
		if match(a) {
			all = append(all, r.detailLocked(a))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Slot.StartTime.After(all[j].Slot.StartTime)
	})

	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all
}

func (r *MemoryRepository) detailLocked(a Appointment) AppointmentDetail {
	d := AppointmentDetail{Appointment: a}
	if s, ok := r.slots[a.SlotID]; ok {
		d.Slot = &s
	} else {
		d.Slot = &Slot{ID: a.SlotID}
	}
	if doc, ok := r.doctors[a.DoctorID]; ok {
		d.Doctor = &doc
	}
	return d
}

func (r *MemoryRepository) FindStalePending(_ context.Context, createdBefore time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appointments {
		if a.Status == StatusPending && a.PaymentStatus == PaymentUnpaid && a.CreatedAt.Before(createdBefore) {
			result = append(result, a)
		}
	}
	return result, nil
}

func (r *MemoryRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.snapshotLocked()
	if err := fn(ctx, &memoryTx{r: r}); err != nil {
		r.restoreLocked(snap)
		return err
	}
	return nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendEventLocked(ev)
	return nil
}

func (r *MemoryRepository) appendEventLocked(ev EventLog) {
	r.nextEventID++
	ev.ID = r.nextEventID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now()
	}
	r.events = append(r.events, ev)
}

type memorySnapshot struct {
	slots        map[uuid.UUID]Slot
	appointments map[uuid.UUID]Appointment
	events       int
	nextEventID  int64
}

func (r *MemoryRepository) snapshotLocked() memorySnapshot {
	snap := memorySnapshot{
		slots:        make(map[uuid.UUID]Slot, len(r.slots)),
		appointments: make(map[uuid.UUID]Appointment, len(r.appointments)),
		events:       len(r.events),
		nextEventID:  r.nextEventID,
	}
	for k, v := range r.slots {
		snap.slots[k] = v
	}
	for k, v := range r.appointments {
		snap.appointments[k] = v
	}
	return snap
}

func (r *MemoryRepository) restoreLocked(snap memorySnapshot) {
	r.slots = snap.slots
	r.appointments = snap.appointments
	r.events = r.events[:snap.events]
	r.nextEventID = snap.nextEventID
}

// memoryTx runs with MemoryRepository.mu already held.
type memoryTx struct {
	r *MemoryRepository
}

func (t *memoryTx) LockSlot(_ context.Context, id uuid.UUID) (*Slot, error) {
	s, ok := t.r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &s, nil
}

func (t *memoryTx) LockPatient(context.Context, uuid.UUID) error {
	return nil
}

func (t *memoryTx) LockDoctor(context.Context, uuid.UUID) error {
	return nil
}

func (t *memoryTx) ListActiveBookings(_ context.Context, patientID uuid.UUID) ([]ActiveBooking, error) {
	var result []ActiveBooking
	for _, a := range t.r.appointments {
		if a.PatientID != patientID || !a.Status.Active() {
			continue
		}
		s, ok := t.r.slots[a.SlotID]
		if !ok {
			continue
		}
		result = append(result, ActiveBooking{
			AppointmentID: a.ID,
			DoctorID:      a.DoctorID,
			DoctorName:    t.r.doctors[a.DoctorID].Name,
			Slot:          s.Interval(),
		})
	}
	return result, nil
}

func (t *memoryTx) FindDoctorOverlap(_ context.Context, doctorID, excludeSlotID uuid.UUID, iv Interval) (*Slot, error) {
	for _, s := range t.r.slots {
		if s.DoctorID == doctorID && s.ID != excludeSlotID && s.Booked && s.Interval().Overlaps(iv) {
			return &s, nil
		}
	}
	return nil, nil
}

func (t *memoryTx) MarkSlotBooked(_ context.Context, id uuid.UUID) error {
	s, ok := t.r.slots[id]
	if !ok {
		return ErrSlotNotFound
	}
	if s.Booked {
		return ErrSlotUnavailable
	}
	s.Booked = true
	s.UpdatedAt = t.r.now()
	t.r.slots[id] = s
	return nil
}

func (t *memoryTx) ReleaseSlot(_ context.Context, id uuid.UUID) error {
	s, ok := t.r.slots[id]
	if !ok {
		return nil
	}
	s.Booked = false
	s.UpdatedAt = t.r.now()
	t.r.slots[id] = s
	return nil
}

func (t *memoryTx) InsertAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	for _, existing := range t.r.appointments {
		if existing.SlotID == a.SlotID && existing.Status != StatusCancelled {
			return nil, ErrSlotUnavailable
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt, a.UpdatedAt = t.r.now(), t.r.now()
	t.r.appointments[a.ID] = a
	return &a, nil
}

func (t *memoryTx) LockAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := t.r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (t *memoryTx) UpdateAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	existing, ok := t.r.appointments[a.ID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	existing.Status = a.Status
	existing.PaymentStatus = a.PaymentStatus
	existing.TransactionID = a.TransactionID
	existing.UpdatedAt = t.r.now()
	t.r.appointments[a.ID] = existing
	return &existing, nil
}

func (t *memoryTx) InsertEvent(_ context.Context, ev EventLog) error {
	t.r.appendEventLocked(ev)
	return nil
}
