package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-booking/internal/appointment"
	"github.com/hackgods/clinic-slot-booking/internal/schedule"
)

type BookingService interface {
	Book(ctx context.Context, req appointment.BookRequest) (*appointment.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*appointment.Appointment, error)
	ConfirmPayment(ctx context.Context, id uuid.UUID, transactionID string) (*appointment.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.AppointmentDetail, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]appointment.AppointmentDetail, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]appointment.AppointmentDetail, error)
}

type ScheduleService interface {
	Generate(ctx context.Context, req schedule.GenerateRequest) ([]appointment.Slot, error)
	GenerateFromAvailability(ctx context.Context, req schedule.AvailabilityRequest) ([]appointment.Slot, error)
	AddSlot(ctx context.Context, doctorID uuid.UUID, start time.Time, durationMinutes int) (*appointment.Slot, error)
	UpdateSlot(ctx context.Context, slotID uuid.UUID, start time.Time, durationMinutes int) (*appointment.Slot, error)
	DeleteSlot(ctx context.Context, slotID uuid.UUID) error
	ListSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time, onlyFree bool) ([]appointment.Slot, error)
	Location() *time.Location
}

const defaultSlotWindow = 7 * 24 * time.Hour

func pathUUID(w http.ResponseWriter, r *http.Request, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// Slots

func generateSlotsHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := pathUUID(w, r, "invalid_doctor_id")
		if !ok {
			return
		}

		var req GenerateSlotsRequest
		if err := decodeAndValidate(r, &req, false); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		slots, err := svc.Generate(r.Context(), schedule.GenerateRequest{
			DoctorID:        doctorID,
			Date:            req.Date,
			DurationMinutes: req.DurationMinutes,
			TimeRanges:      req.TimeRanges,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSlotList(slots))
	}
}

func generateFromAvailabilityHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := pathUUID(w, r, "invalid_doctor_id")
		if !ok {
			return
		}

		var req GenerateFromAvailabilityRequest
		if err := decodeAndValidate(r, &req, false); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		slots, err := svc.GenerateFromAvailability(r.Context(), schedule.AvailabilityRequest{
			DoctorID: doctorID,
			From:     req.From,
			To:       req.To,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSlotList(slots))
	}
}

func addSlotHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := pathUUID(w, r, "invalid_doctor_id")
		if !ok {
			return
		}

		var req SlotRequest
		if err := decodeAndValidate(r, &req, false); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		slot, err := svc.AddSlot(r.Context(), doctorID, req.StartTime, req.DurationMinutes)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSlotResponse(*slot))
	}
}

func listSlotsHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := pathUUID(w, r, "invalid_doctor_id")
		if !ok {
			return
		}

		q := r.URL.Query()
		loc := svc.Location()

		now := time.Now().In(loc)
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

		from, err := parseTimeParam(q.Get("from"), loc, today)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", err.Error())
			return
		}
		to, err := parseTimeParam(q.Get("to"), loc, from.Add(defaultSlotWindow))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", err.Error())
			return
		}

		onlyFree := false
		if v := q.Get("free"); v != "" {
			onlyFree, err = strconv.ParseBool(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_free", "free must be a boolean")
				return
			}
		}

		slots, err := svc.ListSlots(r.Context(), doctorID, from, to, onlyFree)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotList(slots))
	}
}

func updateSlotHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, ok := pathUUID(w, r, "invalid_slot_id")
		if !ok {
			return
		}

		var req SlotRequest
		if err := decodeAndValidate(r, &req, false); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		slot, err := svc.UpdateSlot(r.Context(), slotID, req.StartTime, req.DurationMinutes)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(*slot))
	}
}

func deleteSlotHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, ok := pathUUID(w, r, "invalid_slot_id")
		if !ok {
			return
		}

		if err := svc.DeleteSlot(r.Context(), slotID); err != nil {
			writeServiceError(w, r, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// Appointments

func createAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := decodeAndValidate(r, &req, false); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "slot_id must be a valid UUID")
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "patient_id must be a valid UUID")
			return
		}

		appt, err := svc.Book(r.Context(), appointment.BookRequest{
			PatientID: patientID,
			SlotID:    slotID,
			Symptoms:  req.Symptoms,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func getAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		detail, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toDetailResponse(*detail))
	}
}

func listAppointmentsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		limit, err := intParam(q.Get("limit"), 20)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		offset, err := intParam(q.Get("offset"), 0)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_offset", "offset must be an integer")
			return
		}

		var details []appointment.AppointmentDetail
		switch {
		case q.Get("patient_id") != "":
			patientID, perr := uuid.Parse(q.Get("patient_id"))
			if perr != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			details, err = svc.ListAppointmentsByPatient(r.Context(), patientID, limit, offset)
		case q.Get("doctor_id") != "":
			doctorID, perr := uuid.Parse(q.Get("doctor_id"))
			if perr != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
				return
			}
			details, err = svc.ListAppointmentsByDoctor(r.Context(), doctorID, limit, offset)
		default:
			writeError(w, http.StatusBadRequest, "missing_filter", "patient_id or doctor_id is required")
			return
		}
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := AppointmentListResponse{
			Appointments: make([]AppointmentResponse, 0, len(details)),
			Limit:        limit,
			Offset:       offset,
		}
		for _, d := range details {
			resp.Appointments = append(resp.Appointments, toDetailResponse(d))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func confirmAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		var req ConfirmPaymentRequest
		if err := decodeAndValidate(r, &req, true); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		appt, err := svc.ConfirmPayment(r.Context(), id, req.TransactionID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func completeAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := svc.Complete(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func cancelAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		var req CancelAppointmentRequest
		if err := decodeAndValidate(r, &req, true); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		appt, err := svc.Cancel(r.Context(), id, req.Reason)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// parseTimeParam accepts RFC 3339 or a bare YYYY-MM-DD read in loc.
func parseTimeParam(v string, loc *time.Location, def time.Time) (time.Time, error) {
	if v == "" {
		return def, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return schedule.ParseDate(v, loc)
}
