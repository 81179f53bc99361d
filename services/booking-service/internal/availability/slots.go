package availability

import (
	"iter"
	"time"

	"github.com/salonbook/salonbook/services/booking-service/internal/model"
)

// Business hours and slot spacing. Every staff member shares the same window.
const (
	OpenAt      = 8 * time.Hour
	CloseAt     = 20 * time.Hour
	Granularity = 30 * time.Minute
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps treats both intervals as half-open: [a,b) and [c,d) overlap iff a < d && c < b.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// BusinessHours returns the bookable window of the civil day containing day.
func BusinessHours(day time.Time) Interval {
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return Interval{Start: d.Add(OpenAt), End: d.Add(CloseAt)}
}

// Busy converts appointments into blocking intervals. Only pending and confirmed
// appointments block; cancelled and completed ones are ignored.
func Busy(appts []model.Appointment) []Interval {
	busy := make([]Interval, 0, len(appts))
	for _, a := range appts {
		if !a.Status.Active() || a.DurationMinutes <= 0 {
			continue
		}
		busy = append(busy, Interval{Start: a.StartTime, End: a.EndTime()})
	}
	return busy
}

// Slots yields, in ascending order, every start time t on the step grid of window where
// [t, t+duration) fits inside the window and overlaps none of busy. The sequence is lazy
// and can be ranged over any number of times.
func Slots(window Interval, duration, step time.Duration, busy []Interval) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if duration <= 0 || step <= 0 || !window.End.After(window.Start) {
			return
		}
		for t := window.Start; !t.Add(duration).After(window.End); t = t.Add(step) {
			if overlapsAny(Interval{Start: t, End: t.Add(duration)}, busy) {
				continue
			}
			if !yield(t) {
				return
			}
		}
	}
}

// ForDay yields the bookable start times on day for a service of durationMinutes,
// given the staff member's appointments on that day.
func ForDay(day time.Time, durationMinutes int, appts []model.Appointment) iter.Seq[time.Time] {
	return Slots(BusinessHours(day), time.Duration(durationMinutes)*time.Minute, Granularity, Busy(appts))
}

// IsFree reports whether start is one of the slots ForDay would yield.
func IsFree(day, start time.Time, durationMinutes int, appts []model.Appointment) bool {
	for t := range ForDay(day, durationMinutes, appts) {
		if t.Equal(start) {
			return true
		}
		if t.After(start) {
			return false
		}
	}
	return false
}

// OnGrid reports whether start is a candidate slot of its day: inside business hours
// and aligned to the granularity.
func OnGrid(start time.Time) bool {
	window := BusinessHours(start)
	if start.Before(window.Start) || !start.Before(window.End) {
		return false
	}
	return start.Sub(window.Start)%Granularity == 0
}

func overlapsAny(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}
