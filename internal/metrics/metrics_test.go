package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveBooking(OutcomeBooked, time.Millisecond)
		m.AddSlots(3)
		m.Transition("cancelled")
		m.Released(2)
	})
}

func TestMetricsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveBooking(OutcomeBooked, 5*time.Millisecond)
	m.ObserveBooking(OutcomeConflict, time.Millisecond)
	m.ObserveBooking(OutcomeConflict, time.Millisecond)
	m.AddSlots(6)
	m.Transition("confirmed")
	m.Released(4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Bookings.WithLabelValues(OutcomeBooked)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Bookings.WithLabelValues(OutcomeConflict)))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.SlotsGenerated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("confirmed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ReleasedPending))

	n, err := testutil.GatherAndCount(reg, "clinic_booking_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	assert.Panics(t, func() { New(reg) })
}
