package recurrence

import (
	"time"

	"github.com/alecthomas/types/optional"
)

// YearCycle returns the first year at or after cursor's year that is a
// whole multiple of every years from the anchor's year.
func YearCycle(anchor Anchor, cursor time.Time, every int) int {
	local := anchor.Local()
	start := local.Year()
	cur := cursor.In(local.Location()).Year()
	k := 0
	if cur > start {
		k = (cur - start + every - 1) / every
	}
	return start + k*every
}

// YearCandidates returns one slot per selected month of year, in month
// order. Without an ordinal the slot holds the anchor's day of month clamped
// to the month length. With one, a month lacking the requested day yields an
// absent slot; no forward search is done here.
func YearCandidates(anchor Anchor, year int, expr Yearly) ([]optional.Option[time.Time], error) {
	local := anchor.Local()
	months := expr.Months.Positions()
	if len(months) == 0 {
		months = []int{int(local.Month()) - 1}
	}
	out := make([]optional.Option[time.Time], 0, len(months))
	for _, p := range months {
		month := time.Month(p + 1)
		on, ok := expr.On.Get()
		if !ok {
			day := min(local.Day(), daysIn(year, month))
			out = append(out, optional.Some(atDay(local, year, month, day)))
			continue
		}
		day, err := ResolveOrdinalWeekday(year, month, on.Ordinal, on.Weekday)
		if err != nil {
			return nil, err
		}
		if d, ok := day.Get(); ok {
			out = append(out, optional.Some(atDay(local, year, month, d)))
		} else {
			out = append(out, optional.None[time.Time]())
		}
	}
	return out, nil
}
