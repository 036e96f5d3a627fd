package recurrence

import (
	"time"

	"github.com/alecthomas/types/optional"
)

// maxSearchMonths bounds every forward search. The Gregorian calendar
// repeats every 400 years, so a combination absent for 4800 months never
// occurs.
const maxSearchMonths = 4800

// monthIndex numbers months continuously: 12·year + (month-1).
func monthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}

func fromMonthIndex(idx int) (int, time.Month) {
	return idx / 12, time.Month(idx%12 + 1)
}

// MonthCycle returns the first month at or after cursor's month that is a
// whole multiple of every months from the anchor's month. Months are read in
// the anchor's zone.
func MonthCycle(anchor Anchor, cursor time.Time, every int) (int, time.Month) {
	local := anchor.Local()
	start := monthIndex(local)
	cur := monthIndex(cursor.In(local.Location()))
	k := 0
	if cur > start {
		k = (cur - start + every - 1) / every
	}
	return fromMonthIndex(start + k*every)
}

// MonthDayCandidates returns the occurrences of an on-days rule in the given
// month. Days past the end of the month clamp to its last day; duplicates
// produced by clamping are dropped. With no days selected the anchor's own
// day of month is used.
func MonthDayCandidates(anchor Anchor, year int, month time.Month, days BitSet) []time.Time {
	local := anchor.Local()
	n := daysIn(year, month)
	selected := days.Positions()
	if len(selected) == 0 {
		selected = []int{local.Day() - 1}
	}
	out := make([]time.Time, 0, len(selected))
	last := 0
	for _, p := range selected {
		day := min(p+1, n)
		if day == last {
			continue
		}
		last = day
		out = append(out, atDay(local, year, month, day))
	}
	return out
}

// NextOrdinalMonth resolves on within (year, month) and, when the month has
// no such day, steps forward by every months until one does. Cycle months
// repeat modulo maxSearchMonths, so once they all have been tried the result
// is absent.
func NextOrdinalMonth(anchor Anchor, year int, month time.Month, every int, on OrdinalWeekday) (optional.Option[time.Time], error) {
	local := anchor.Local()
	idx := year*12 + int(month) - 1
	distinct := maxSearchMonths / gcd(every, maxSearchMonths)
	for i := 0; i < distinct; i++ {
		y, m := fromMonthIndex(idx + i*every)
		day, err := ResolveOrdinalWeekday(y, m, on.Ordinal, on.Weekday)
		if err != nil {
			return optional.None[time.Time](), err
		}
		if d, ok := day.Get(); ok {
			return optional.Some(atDay(local, y, m, d)), nil
		}
	}
	return optional.None[time.Time](), nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
