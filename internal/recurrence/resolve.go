package recurrence

import (
	"fmt"
	"time"

	"github.com/alecthomas/types/optional"
)

// maxCatchUpSteps bounds the cycle loop in Resolve. Each step moves the
// cycle cursor forward by at least one unit, so 4800 steps cover a full
// 400-year calendar cycle even for monthly rules.
const maxCatchUpSteps = maxSearchMonths

// Resolve returns the first occurrence of s strictly after now. The result
// is absent when the rule has no further occurrence: a Never schedule whose
// anchor has passed, an ordinal that never recurs, exhausted cron
// expressions, or an occurrence beyond Until.
func Resolve(s Schedule, now time.Time) (optional.Option[time.Time], error) {
	var (
		next optional.Option[time.Time]
		err  error
	)
	switch f := s.Frequency.(type) {
	case Never:
		if s.Anchor.At.After(now) {
			return optional.Some(s.Anchor.At), nil
		}
		return optional.None[time.Time](), nil
	case CustomFrequency:
		next = NextCustom(s.Anchor, now, s.Until, f)
	case RegularFrequency:
		if err := f.Validate(); err != nil {
			return optional.None[time.Time](), err
		}
		next, err = resolveRegular(s, f, now)
		if err != nil {
			return optional.None[time.Time](), err
		}
	case nil:
		return optional.None[time.Time](), fmt.Errorf("%w: missing frequency", ErrInvalidFrequency)
	default:
		return optional.None[time.Time](), fmt.Errorf("%w: unknown frequency %T", ErrInvalidFrequency, f)
	}

	t, ok := next.Get()
	if !ok {
		return next, nil
	}
	if u, bounded := s.Until.Get(); bounded && t.After(u) {
		return optional.None[time.Time](), nil
	}
	return next, nil
}

func resolveRegular(s Schedule, f RegularFrequency, now time.Time) (optional.Option[time.Time], error) {
	anchor := s.Anchor
	switch f.Expr.(type) {
	case Hourly:
		return optional.Some(NextHourly(anchor, now, f.Every)), nil
	case Daily:
		return optional.Some(NextDaily(anchor, now, f.Every)), nil
	}

	loc := anchor.Location()
	cursor := now
	for step := 0; step < maxCatchUpSteps; step++ {
		if u, ok := s.Until.Get(); ok && cursor.After(u) {
			break
		}
		cands, cycleStart, err := cycleCandidates(anchor, f, cursor)
		if err != nil {
			return optional.None[time.Time](), err
		}
		if cands == nil {
			break
		}
		if t, ok := earliestAfter(cands, now, anchor.At); ok {
			return optional.Some(t), nil
		}
		if cycleStart.After(cursor) {
			cursor = cycleStart
		}
		cursor = nextUnitStart(f.Expr.Unit(), latest(cursor, cands), loc)
	}
	return optional.None[time.Time](), nil
}

// cycleCandidates evaluates one cycle for the rule and returns the start of
// the month or year it evaluated, so a cycle with no present slot moves the
// cursor past it. A nil result means the rule has no occurrence at all from
// cursor on.
func cycleCandidates(anchor Anchor, f RegularFrequency, cursor time.Time) ([]optional.Option[time.Time], time.Time, error) {
	loc := anchor.Location()
	switch e := f.Expr.(type) {
	case Weekly:
		return someAll(WeekCandidates(anchor, cursor, f.Every, e.Weekdays)), time.Time{}, nil
	case MonthlyOnDays:
		y, m := MonthCycle(anchor, cursor, f.Every)
		return someAll(MonthDayCandidates(anchor, y, m, e.Days)), time.Date(y, m, 1, 0, 0, 0, 0, loc), nil
	case MonthlyOnThe:
		y, m := MonthCycle(anchor, cursor, f.Every)
		t, err := NextOrdinalMonth(anchor, y, m, f.Every, e.On)
		if err != nil || !t.Ok() {
			return nil, time.Time{}, err
		}
		return []optional.Option[time.Time]{t}, time.Date(y, m, 1, 0, 0, 0, 0, loc), nil
	case Yearly:
		y := YearCycle(anchor, cursor, f.Every)
		cands, err := YearCandidates(anchor, y, e)
		return cands, time.Date(y, time.January, 1, 0, 0, 0, 0, loc), err
	default:
		return nil, time.Time{}, fmt.Errorf("%w: unknown expression %T", ErrInvalidFrequency, e)
	}
}

// earliestAfter picks the smallest present candidate that is after now and
// not before the anchor.
func earliestAfter(cands []optional.Option[time.Time], now, anchor time.Time) (time.Time, bool) {
	var best time.Time
	found := false
	for _, c := range cands {
		t, ok := c.Get()
		if !ok || !t.After(now) || t.Before(anchor) {
			continue
		}
		if !found || t.Before(best) {
			best, found = t, true
		}
	}
	return best, found
}

func latest(cursor time.Time, cands []optional.Option[time.Time]) time.Time {
	for _, c := range cands {
		if t, ok := c.Get(); ok && t.After(cursor) {
			cursor = t
		}
	}
	return cursor
}

// nextUnitStart returns the start of the week, month or year after t in loc.
func nextUnitStart(u Unit, t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	switch u {
	case UnitWeek:
		return time.Date(t.Year(), t.Month(), t.Day()-int(t.Weekday())+7, 0, 0, 0, 0, loc)
	case UnitMonth:
		return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
	case UnitYear:
		return time.Date(t.Year()+1, time.January, 1, 0, 0, 0, 0, loc)
	case UnitDay:
		return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
	default:
		return t.Truncate(time.Hour).Add(time.Hour)
	}
}

func someAll(ts []time.Time) []optional.Option[time.Time] {
	out := make([]optional.Option[time.Time], len(ts))
	for i, t := range ts {
		out[i] = optional.Some(t)
	}
	return out
}
