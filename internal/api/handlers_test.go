package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-slot-booking/internal/appointment"
	"github.com/hackgods/clinic-slot-booking/internal/config"
	"github.com/hackgods/clinic-slot-booking/internal/metrics"
	redisclient "github.com/hackgods/clinic-slot-booking/internal/redis"
	"github.com/hackgods/clinic-slot-booking/internal/schedule"
)

type testServer struct {
	handler http.Handler
	repo    *appointment.MemoryRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.Config{Location: time.UTC, PreventDoctorOverlap: true, AppointmentTTL: 30 * time.Minute}
	repo := appointment.NewMemoryRepository()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	booking := appointment.NewService(repo, redisclient.NopLocker{}, cfg, zerolog.Nop(), m)
	sched := schedule.NewService(repo, cfg, zerolog.Nop(), m)

	return &testServer{
		handler: NewRouter(RouterConfig{
			Booking:  booking,
			Schedule: sched,
			Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			Logger:   zerolog.Nop(),
			Env:      "test",
			Version:  "v0.0.0",
		}),
		repo: repo,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) generate(t *testing.T, doctorID uuid.UUID, ranges ...string) []SlotResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/doctors/"+doctorID.String()+"/slots/generate", GenerateSlotsRequest{
		Date:            "2024-06-01",
		DurationMinutes: 60,
		TimeRanges:      ranges,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[SlotListResponse](t, rec).Slots
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = s.do(t, http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ready := decode[ReadinessResponse](t, rec)
	assert.Equal(t, "ok", ready.Status)
	assert.Equal(t, "disabled", ready.Dependencies["postgres"])
	assert.Equal(t, "disabled", ready.Dependencies["redis"])
}

func TestGenerateAndListSlots(t *testing.T) {
	s := newTestServer(t)
	doc := s.repo.AddDoctor(appointment.Doctor{Name: "Rao"})

	slots := s.generate(t, doc.ID, "14:00-16:00")
	require.Len(t, slots, 2)
	assert.Equal(t, time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC), slots[0].StartTime.UTC())

	rec := s.do(t, http.MethodGet, "/doctors/"+doc.ID.String()+"/slots?from=2024-06-01&to=2024-06-02&free=true", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[SlotListResponse](t, rec).Count)
}

func TestGenerateSlots_InvalidConfiguration(t *testing.T) {
	s := newTestServer(t)
	doc := s.repo.AddDoctor(appointment.Doctor{Name: "Rao"})

	rec := s.do(t, http.MethodPost, "/doctors/"+doc.ID.String()+"/slots/generate", GenerateSlotsRequest{
		Date:            "2024-06-01",
		DurationMinutes: 30,
		TimeRanges:      []string{"12:00-09:00"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_configuration", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPost, "/doctors/"+doc.ID.String()+"/slots/generate", map[string]any{"date": "2024-06-01"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request_body", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPost, "/doctors/not-a-uuid/slots/generate", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBookingFlow(t *testing.T) {
	s := newTestServer(t)
	doc := s.repo.AddDoctor(appointment.Doctor{Name: "Rao"})
	p := s.repo.AddPatient(appointment.Patient{Name: "P"})
	q := s.repo.AddPatient(appointment.Patient{Name: "Q"})

	slots := s.generate(t, doc.ID, "14:00-16:00")

	rec := s.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{
		SlotID:    slots[0].ID.String(),
		PatientID: p.ID.String(),
		Symptoms:  "fever",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	appt := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "pending", appt.Status)
	assert.Equal(t, "unpaid", appt.PaymentStatus)

	rec = s.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{
		SlotID:    slots[0].ID.String(),
		PatientID: q.ID.String(),
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_unavailable", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	confirmed := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "confirmed", confirmed.Status)
	require.NotNil(t, confirmed.TransactionID)
	assert.True(t, strings.HasPrefix(*confirmed.TransactionID, "TXN-"))

	rec = s.do(t, http.MethodGet, "/appointments/"+appt.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "Rao", detail.DoctorName)
	require.NotNil(t, detail.Slot)
	assert.True(t, detail.Slot.Booked)

	rec = s.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decode[AppointmentResponse](t, rec).Status)

	rec = s.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/cancel", CancelAppointmentRequest{Reason: "late"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_status_transition", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodGet, "/appointments?patient_id="+p.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[AppointmentListResponse](t, rec)
	assert.Len(t, list.Appointments, 1)
	assert.Equal(t, 20, list.Limit)
}

func TestBooking_ScheduleConflict(t *testing.T) {
	s := newTestServer(t)
	d1 := s.repo.AddDoctor(appointment.Doctor{Name: "Rao"})
	d2 := s.repo.AddDoctor(appointment.Doctor{Name: "Mehta"})
	p := s.repo.AddPatient(appointment.Patient{Name: "P"})

	first := s.generate(t, d1.ID, "10:00-11:00")
	second := s.generate(t, d2.ID, "10:00-11:00")

	rec := s.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{SlotID: first[0].ID.String(), PatientID: p.ID.String()})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{SlotID: second[0].ID.String(), PatientID: p.ID.String()})
	require.Equal(t, http.StatusConflict, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "schedule_conflict", errResp.Error)
	assert.Contains(t, errResp.Details, "Dr. Rao")
}

func TestBooking_CancelFreesSlot(t *testing.T) {
	s := newTestServer(t)
	doc := s.repo.AddDoctor(appointment.Doctor{Name: "Rao"})
	p := s.repo.AddPatient(appointment.Patient{Name: "P"})
	q := s.repo.AddPatient(appointment.Patient{Name: "Q"})
	slots := s.generate(t, doc.ID, "10:00-11:00")

	rec := s.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{SlotID: slots[0].ID.String(), PatientID: p.ID.String()})
	require.Equal(t, http.StatusCreated, rec.Code)
	appt := decode[AppointmentResponse](t, rec)

	rec = s.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", decode[AppointmentResponse](t, rec).Status)

	rec = s.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{SlotID: slots[0].ID.String(), PatientID: q.ID.String()})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestBooking_NotFoundAndValidation(t *testing.T) {
	s := newTestServer(t)
	p := s.repo.AddPatient(appointment.Patient{Name: "P"})

	rec := s.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{SlotID: uuid.NewString(), PatientID: p.ID.String()})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "slot_not_found", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{SlotID: "nope", PatientID: p.ID.String()})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Details, "slot_id")

	rec = s.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{SlotID: uuid.NewString(), PatientID: "P-1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Details, "patient_id")

	rec = s.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/appointments", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSlotEditAndDelete(t *testing.T) {
	s := newTestServer(t)
	doc := s.repo.AddDoctor(appointment.Doctor{Name: "Rao", SlotDurationMinutes: 30})
	p := s.repo.AddPatient(appointment.Patient{Name: "P"})

	rec := s.do(t, http.MethodPost, "/doctors/"+doc.ID.String()+"/slots", SlotRequest{StartTime: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	slot := decode[SlotResponse](t, rec)
	assert.Equal(t, 30*time.Minute, slot.EndTime.Sub(slot.StartTime))

	rec = s.do(t, http.MethodPut, "/slots/"+slot.ID.String(), SlotRequest{StartTime: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), DurationMinutes: 45})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{SlotID: slot.ID.String(), PatientID: p.ID.String()})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodDelete, "/slots/"+slot.ID.String(), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_unavailable", decode[ErrorResponse](t, rec).Error)

	free := s.generate(t, doc.ID, "12:00-13:00")
	rec = s.do(t, http.MethodDelete, "/slots/"+free[0].ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestBooking_UpperCaseIDs(t *testing.T) {
	s := newTestServer(t)
	doc := s.repo.AddDoctor(appointment.Doctor{Name: "Rao"})
	p := s.repo.AddPatient(appointment.Patient{Name: "P"})
	slots := s.generate(t, doc.ID, "10:00-11:00")

	rec := s.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{
		SlotID:    strings.ToUpper(slots[0].ID.String()),
		PatientID: strings.ToUpper(p.ID.String()),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, slots[0].ID, decode[AppointmentResponse](t, rec).SlotID)
}

func TestDeleteSlot_WithCancelledAppointment(t *testing.T) {
	s := newTestServer(t)
	doc := s.repo.AddDoctor(appointment.Doctor{Name: "Rao"})
	p := s.repo.AddPatient(appointment.Patient{Name: "P"})
	slots := s.generate(t, doc.ID, "10:00-11:00")

	rec := s.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{SlotID: slots[0].ID.String(), PatientID: p.ID.String()})
	require.Equal(t, http.StatusCreated, rec.Code)
	appt := decode[AppointmentResponse](t, rec)

	rec = s.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, "/slots/"+slots[0].ID.String(), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_has_history", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodGet, "/appointments/"+appt.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[AppointmentResponse](t, rec)
	require.NotNil(t, detail.Slot)
	assert.Equal(t, slots[0].StartTime, detail.Slot.StartTime)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	doc := s.repo.AddDoctor(appointment.Doctor{Name: "Rao"})
	s.generate(t, doc.ID, "09:00-10:00")

	rec := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "clinic_slots_generated_total 1")
}
