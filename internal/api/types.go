package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-booking/internal/appointment"
)

type GenerateSlotsRequest struct {
	Date            string   `json:"date" validate:"required"`
	DurationMinutes int      `json:"duration_minutes" validate:"required"`
	TimeRanges      []string `json:"time_ranges" validate:"required,min=1,dive,required"`
}

type GenerateFromAvailabilityRequest struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
}

type SlotRequest struct {
	StartTime       time.Time `json:"start_time" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"gte=0,lte=1440"`
}

type CreateAppointmentRequest struct {
	SlotID    string `json:"slot_id" validate:"required"`
	PatientID string `json:"patient_id" validate:"required"`
	Symptoms  string `json:"symptoms" validate:"max=2000"`
}

type ConfirmPaymentRequest struct {
	TransactionID string `json:"transaction_id" validate:"max=64"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type SlotResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Booked    bool      `json:"booked"`
}

type SlotListResponse struct {
	Slots []SlotResponse `json:"slots"`
	Count int            `json:"count"`
}

type AppointmentResponse struct {
	ID            uuid.UUID     `json:"id"`
	PatientID     uuid.UUID     `json:"patient_id"`
	DoctorID      uuid.UUID     `json:"doctor_id"`
	SlotID        uuid.UUID     `json:"slot_id"`
	Status        string        `json:"status"`
	PaymentStatus string        `json:"payment_status"`
	TransactionID *string       `json:"transaction_id,omitempty"`
	Symptoms      string        `json:"symptoms,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	Slot          *SlotResponse `json:"slot,omitempty"`
	DoctorName    string        `json:"doctor_name,omitempty"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toSlotResponse(s appointment.Slot) SlotResponse {
	return SlotResponse{
		ID:        s.ID,
		DoctorID:  s.DoctorID,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Booked:    s.Booked,
	}
}

func toSlotList(slots []appointment.Slot) SlotListResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotResponse(s))
	}
	return SlotListResponse{Slots: out, Count: len(out)}
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:            a.ID,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		SlotID:        a.SlotID,
		Status:        string(a.Status),
		PaymentStatus: string(a.PaymentStatus),
		TransactionID: a.TransactionID,
		Symptoms:      a.Symptoms,
		CreatedAt:     a.CreatedAt,
	}
}

func toDetailResponse(d appointment.AppointmentDetail) AppointmentResponse {
	resp := toAppointmentResponse(d.Appointment)
	if d.Slot != nil {
		s := toSlotResponse(*d.Slot)
		resp.Slot = &s
	}
	if d.Doctor != nil {
		resp.DoctorName = d.Doctor.Name
	}
	return resp
}
