package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/alecthomas/types/optional"
	"github.com/robfig/cron/v3"
)

// cronParser accepts standard 5-field expressions, descriptors such as
// @daily, and an optional CRON_TZ= prefix.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseCron parses a single expression, wrapping failures in
// ErrCronEvaluation.
func ParseCron(expression string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrCronEvaluation, expression, err)
	}
	return sched, nil
}

// Validate reports every honored expression that fails to parse.
func (c CustomFrequency) Validate() error {
	var errs []error
	for _, expr := range c.Honored() {
		if _, err := ParseCron(expr); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NextCustom evaluates each honored expression independently in the anchor's
// zone and returns the earliest instant after now (and not before the
// anchor) that does not exceed until. Expressions that fail to parse or
// never fire are left out; if none remain the result is absent.
func NextCustom(anchor Anchor, now time.Time, until optional.Option[time.Time], c CustomFrequency) optional.Option[time.Time] {
	loc := anchor.Location()
	from := now
	if floor := anchor.At.Add(-time.Millisecond); floor.After(from) {
		from = floor
	}
	from = from.In(loc)

	var best time.Time
	for _, expr := range c.Honored() {
		sched, err := ParseCron(expr)
		if err != nil {
			continue
		}
		// Next is strictly after from, on a whole second, and the anchor
		// carries no sub-millisecond part, so next is never before it.
		next := sched.Next(from)
		if next.IsZero() {
			continue
		}
		if u, ok := until.Get(); ok && next.After(u) {
			continue
		}
		if best.IsZero() || next.Before(best) {
			best = next
		}
	}
	if best.IsZero() {
		return optional.None[time.Time]()
	}
	return optional.Some(best)
}
