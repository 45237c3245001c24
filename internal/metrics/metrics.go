package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "clinic"

// Booking outcomes used as the outcome label.
const (
	OutcomeBooked      = "booked"
	OutcomeUnavailable = "slot_unavailable"
	OutcomeConflict    = "schedule_conflict"
	OutcomeNotFound    = "not_found"
	OutcomeError       = "error"
)

// Metrics holds the booking engine metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Bookings        *prometheus.CounterVec
	BookingLatency  prometheus.Histogram
	SlotsGenerated  prometheus.Counter
	Transitions     *prometheus.CounterVec
	ReleasedPending prometheus.Counter
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Bookings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		BookingLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "booking_duration_seconds",
			Help:      "Time spent validating and persisting a booking",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		SlotsGenerated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slots_generated_total",
			Help:      "Slots created by the slot generator",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_transitions_total",
			Help:      "Appointment status transitions by target status",
		}, []string{"to"}),
		ReleasedPending: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "released_pending_total",
			Help:      "Unpaid pending appointments cancelled by the expiry worker",
		}),
	}
}

func (m *Metrics) ObserveBooking(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.Bookings.WithLabelValues(outcome).Inc()
	m.BookingLatency.Observe(took.Seconds())
}

func (m *Metrics) AddSlots(n int) {
	if m == nil {
		return
	}
	m.SlotsGenerated.Add(float64(n))
}

func (m *Metrics) Transition(to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(to).Inc()
}

func (m *Metrics) Released(n int) {
	if m == nil {
		return
	}
	m.ReleasedPending.Add(float64(n))
}
