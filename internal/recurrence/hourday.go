package recurrence

import (
	"math"
	"time"
)

// Fixed unit sizes. Hour and day steps are plain UTC millisecond arithmetic;
// local calendar effects are not applied at this granularity.
const (
	HourPeriod = time.Hour
	DayPeriod  = 24 * time.Hour
)

// BringForward advances anchor by whole periods to the first instant at or
// after now. An anchor already at or after now is returned unchanged.
func BringForward(now, anchor time.Time, period time.Duration) time.Time {
	if period <= 0 {
		return anchor
	}
	// now.Sub saturates for gaps beyond ~292 years, so step in chunks.
	for anchor.Before(now) {
		k := now.Sub(anchor) / period
		if k == 0 {
			return anchor.Add(period)
		}
		anchor = anchor.Add(k * period)
	}
	return anchor
}

// nextFixed returns the first anchor + k·period strictly after now.
func nextFixed(now, anchor time.Time, period time.Duration) time.Time {
	t := BringForward(now, anchor, period)
	if !t.After(now) {
		t = t.Add(period)
	}
	return t
}

// NextHourly returns the next occurrence of an every-N-hours rule. every
// must be within MaxEvery(UnitHour).
func NextHourly(anchor Anchor, now time.Time, every int) time.Time {
	return nextFixed(now, anchor.At, scaled(every, HourPeriod))
}

// NextDaily returns the next occurrence of an every-N-days rule. every must
// be within MaxEvery(UnitDay).
func NextDaily(anchor Anchor, now time.Time, every int) time.Time {
	return nextFixed(now, anchor.At, scaled(every, DayPeriod))
}

// scaled returns every·unit, or zero when the product does not fit in a
// Duration.
func scaled(every int, unit time.Duration) time.Duration {
	if every < 1 || int64(every) > math.MaxInt64/int64(unit) {
		return 0
	}
	return time.Duration(every) * unit
}
