package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-booking/internal/appointment"
)

var ErrInvalidConfiguration = errors.New("invalid slot configuration")

const dateLayout = "2006-01-02"

// Clock is a wall clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) minutes() int { return c.Hour*60 + c.Minute }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

func (c Clock) on(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, loc)
}

// TimeRange is a working window such as 09:00-12:00. Start is always before End.
type TimeRange struct {
	Start Clock
	End   Clock
}

func (r TimeRange) String() string { return r.Start.String() + "-" + r.End.String() }

func parseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return Clock{}, fmt.Errorf("%w: bad clock time %q", ErrInvalidConfiguration, s)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// ParseTimeRange parses "HH:MM-HH:MM".
func ParseTimeRange(s string) (TimeRange, error) {
	start, end, ok := strings.Cut(s, "-")
	if !ok {
		return TimeRange{}, fmt.Errorf("%w: time range %q is not HH:MM-HH:MM", ErrInvalidConfiguration, s)
	}

	from, err := parseClock(start)
	if err != nil {
		return TimeRange{}, err
	}
	to, err := parseClock(end)
	if err != nil {
		return TimeRange{}, err
	}
	if to.minutes() <= from.minutes() {
		return TimeRange{}, fmt.Errorf("%w: time range %q ends before it starts", ErrInvalidConfiguration, s)
	}
	return TimeRange{Start: from, End: to}, nil
}

func ParseTimeRanges(ranges []string) ([]TimeRange, error) {
	out := make([]TimeRange, 0, len(ranges))
	for _, r := range ranges {
		tr, err := ParseTimeRange(r)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, nil
}

// ParseAvailableHours parses a doctor's stored hours, e.g. "09:00-12:00,14:00-18:00".
func ParseAvailableHours(s string) ([]TimeRange, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("%w: no available hours", ErrInvalidConfiguration)
	}
	return ParseTimeRanges(strings.Split(s, ","))
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// ParseWeekdays parses "Mon,Wed,Fri". Full day names are accepted too.
// An empty string yields an empty set, which callers treat as every day.
func ParseWeekdays(s string) (map[time.Weekday]bool, error) {
	days := make(map[time.Weekday]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if len(part) > 3 {
			part = part[:3]
		}
		wd, ok := weekdays[part]
		if !ok {
			return nil, fmt.Errorf("%w: unknown weekday %q", ErrInvalidConfiguration, part)
		}
		days[wd] = true
	}
	return days, nil
}

func ParseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q", ErrInvalidConfiguration, s)
	}
	return d, nil
}

// Expand cuts every range into back-to-back slots of the given duration on date.
// A trailing remainder shorter than duration is dropped. Ranges are neither merged
// nor deduplicated, so overlapping input ranges yield overlapping slots.
// Steps are elapsed time, so on DST transition days the count follows real hours.
func Expand(doctorID uuid.UUID, date time.Time, duration time.Duration, ranges []TimeRange, loc *time.Location) []appointment.Slot {
	if duration <= 0 {
		return nil
	}

	var slots []appointment.Slot
	for _, r := range ranges {
		end := r.End.on(date, loc)
		for cur := r.Start.on(date, loc); !cur.Add(duration).After(end); cur = cur.Add(duration) {
			slots = append(slots, appointment.Slot{
				DoctorID:  doctorID,
				StartTime: cur,
				EndTime:   cur.Add(duration),
			})
		}
	}
	return slots
}
