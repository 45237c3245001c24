package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeRange(t *testing.T) {
	r, err := ParseTimeRange("09:00-12:30")
	require.NoError(t, err)
	assert.Equal(t, Clock{Hour: 9}, r.Start)
	assert.Equal(t, Clock{Hour: 12, Minute: 30}, r.End)
	assert.Equal(t, "09:00-12:30", r.String())

	for _, bad := range []string{"", "09:00", "9-12", "12:00-09:00", "10:00-10:00", "25:00-26:00", "aa:bb-cc:dd"} {
		_, err := ParseTimeRange(bad)
		assert.ErrorIs(t, err, ErrInvalidConfiguration, bad)
	}
}

func TestParseWeekdays(t *testing.T) {
	days, err := ParseWeekdays("Mon, wed,Friday")
	require.NoError(t, err)
	assert.Equal(t, map[time.Weekday]bool{time.Monday: true, time.Wednesday: true, time.Friday: true}, days)

	days, err = ParseWeekdays("")
	require.NoError(t, err)
	assert.Empty(t, days)

	_, err = ParseWeekdays("Mon,Funday")
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-06-01", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("01/06/2024", time.UTC)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestExpand(t *testing.T) {
	doctorID := uuid.New()
	date := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		ranges   []string
		duration time.Duration
		want     int
	}{
		{"three hours by thirty", []string{"09:00-12:00"}, 30 * time.Minute, 6},
		{"shorter than duration", []string{"09:00-09:25"}, 30 * time.Minute, 0},
		{"remainder dropped", []string{"09:00-10:50"}, 30 * time.Minute, 3},
		{"two ranges", []string{"09:00-12:00", "14:00-18:00"}, time.Hour, 7},
		{"overlapping ranges are not merged", []string{"09:00-10:00", "09:30-10:30"}, 30 * time.Minute, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranges, err := ParseTimeRanges(tt.ranges)
			require.NoError(t, err)

			slots := Expand(doctorID, date, tt.duration, ranges, time.UTC)
			require.Len(t, slots, tt.want)
			for _, s := range slots {
				assert.Equal(t, doctorID, s.DoctorID)
				assert.Equal(t, tt.duration, s.EndTime.Sub(s.StartTime))
				assert.False(t, s.Booked)
			}
		})
	}
}

func TestExpand_ConsecutiveSlots(t *testing.T) {
	ranges, err := ParseTimeRanges([]string{"09:00-12:00"})
	require.NoError(t, err)

	date := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	slots := Expand(uuid.New(), date, 30*time.Minute, ranges, time.UTC)
	require.Len(t, slots, 6)

	assert.Equal(t, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), slots[0].StartTime)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), slots[5].EndTime)
	for i := 1; i < len(slots); i++ {
		assert.Equal(t, slots[i-1].EndTime, slots[i].StartTime)
	}
}

func TestExpand_ClinicTimeZone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	ranges, err := ParseTimeRanges([]string{"09:00-10:00"})
	require.NoError(t, err)

	date, err := ParseDate("2024-06-01", loc)
	require.NoError(t, err)

	slots := Expand(uuid.New(), date, time.Hour, ranges, loc)
	require.Len(t, slots, 1)
	assert.Equal(t, time.Date(2024, 6, 1, 3, 30, 0, 0, time.UTC), slots[0].StartTime.UTC())
}

func TestExpand_DaylightSavingStepsRealTime(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	ranges, err := ParseTimeRanges([]string{"01:00-04:00"})
	require.NoError(t, err)

	// clocks jump from 02:00 to 03:00, the range spans two real hours
	date, err := ParseDate("2024-03-10", loc)
	require.NoError(t, err)

	slots := Expand(uuid.New(), date, time.Hour, ranges, loc)
	require.Len(t, slots, 2)
	assert.Equal(t, time.Date(2024, 3, 10, 6, 0, 0, 0, time.UTC), slots[0].StartTime.UTC())
	assert.Equal(t, time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC), slots[1].EndTime.UTC())
	for _, s := range slots {
		assert.Equal(t, time.Hour, s.EndTime.Sub(s.StartTime))
	}
}
