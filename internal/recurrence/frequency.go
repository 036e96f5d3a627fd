package recurrence

import (
	"fmt"
	"math"
	"time"

	"github.com/alecthomas/types/optional"
)

// Unit is the base period of a regular frequency.
type Unit string

const (
	UnitHour  Unit = "hour"
	UnitDay   Unit = "day"
	UnitWeek  Unit = "week"
	UnitMonth Unit = "month"
	UnitYear  Unit = "year"
)

// Frequency is one of Never, RegularFrequency or CustomFrequency.
type Frequency interface {
	isFrequency()
}

// Never is the frequency of a task that does not repeat.
type Never struct{}

// RegularFrequency repeats every Every units, selected by Expr.
type RegularFrequency struct {
	Every int
	Expr  Expression
}

// MaxCustomExpressions is the number of cron expressions honored by a
// CustomFrequency. Extras are ignored.
const MaxCustomExpressions = 3

// CustomFrequency repeats on the earliest of up to three cron expressions.
type CustomFrequency struct {
	Expressions []string
}

func (Never) isFrequency()            {}
func (RegularFrequency) isFrequency() {}
func (CustomFrequency) isFrequency()  {}

// Expression is the unit-specific part of a RegularFrequency.
type Expression interface {
	Unit() Unit
}

// Hourly repeats every N hours from the anchor.
type Hourly struct{}

// Daily repeats every N days from the anchor.
type Daily struct{}

// Weekly repeats every N weeks on the selected weekdays, or on the anchor's
// weekday when none are selected.
type Weekly struct {
	Weekdays BitSet
}

// MonthlyOnDays repeats every N months on the selected days of the month.
type MonthlyOnDays struct {
	Days BitSet
}

// MonthlyOnThe repeats every N months on an ordinal weekday, such as the
// last Friday.
type MonthlyOnThe struct {
	On OrdinalWeekday
}

// Yearly repeats every N years in the selected months, either on the
// anchor's day of month or on an ordinal weekday.
type Yearly struct {
	Months BitSet
	On     optional.Option[OrdinalWeekday]
}

func (Hourly) Unit() Unit        { return UnitHour }
func (Daily) Unit() Unit         { return UnitDay }
func (Weekly) Unit() Unit        { return UnitWeek }
func (MonthlyOnDays) Unit() Unit { return UnitMonth }
func (MonthlyOnThe) Unit() Unit  { return UnitMonth }
func (Yearly) Unit() Unit        { return UnitYear }

// maxCycleYears keeps month and year cycles inside four-digit years.
const maxCycleYears = 9999

// MaxEvery returns the largest Every accepted for u. Hour, day and week
// periods must fit in a time.Duration.
func MaxEvery(u Unit) int {
	switch u {
	case UnitHour:
		return int(math.MaxInt64 / int64(HourPeriod))
	case UnitDay:
		return int(math.MaxInt64 / int64(DayPeriod))
	case UnitWeek:
		return int(math.MaxInt64 / int64(7*DayPeriod))
	case UnitMonth:
		return 12 * maxCycleYears
	default:
		return maxCycleYears
	}
}

// Validate checks Every and the expression's selectors.
func (f RegularFrequency) Validate() error {
	if f.Every < 1 {
		return fmt.Errorf("%w: every must be positive, got %d", ErrInvalidFrequency, f.Every)
	}
	if f.Expr != nil {
		if limit := MaxEvery(f.Expr.Unit()); f.Every > limit {
			return fmt.Errorf("%w: every %d exceeds %d for unit %s", ErrInvalidFrequency, f.Every, limit, f.Expr.Unit())
		}
	}
	switch e := f.Expr.(type) {
	case Hourly, Daily:
		return nil
	case Weekly:
		return checkArity(e.Weekdays, WeekdayArity)
	case MonthlyOnDays:
		return checkArity(e.Days, MonthDayArity)
	case MonthlyOnThe:
		return e.On.Validate()
	case Yearly:
		if err := checkArity(e.Months, MonthArity); err != nil {
			return err
		}
		if on, ok := e.On.Get(); ok {
			return on.Validate()
		}
		return nil
	case nil:
		return fmt.Errorf("%w: missing expression", ErrInvalidFrequency)
	default:
		return fmt.Errorf("%w: unknown expression %T", ErrInvalidFrequency, e)
	}
}

// Honored returns the expressions that take part in evaluation.
func (c CustomFrequency) Honored() []string {
	if len(c.Expressions) > MaxCustomExpressions {
		return c.Expressions[:MaxCustomExpressions]
	}
	return c.Expressions
}

// checkArity accepts the zero BitSet as "nothing selected".
func checkArity(b BitSet, arity int) error {
	if b.arity == 0 && b.value == 0 {
		return nil
	}
	if b.arity != arity {
		return fmt.Errorf("%w: bitset arity %d, want %d", ErrOutOfRange, b.arity, arity)
	}
	return nil
}

// Schedule is an immutable recurrence rule. Until, when set, bounds every
// occurrence; it has no meaning for Never.
type Schedule struct {
	Anchor    Anchor
	Frequency Frequency
	Until     optional.Option[time.Time]
}

// Validate checks the anchor and frequency.
func (s Schedule) Validate() error {
	if err := s.Anchor.Validate(); err != nil {
		return err
	}
	switch f := s.Frequency.(type) {
	case Never:
		return nil
	case RegularFrequency:
		return f.Validate()
	case CustomFrequency:
		if len(f.Expressions) == 0 {
			return fmt.Errorf("%w: custom frequency without expressions", ErrInvalidFrequency)
		}
		return nil
	case nil:
		return fmt.Errorf("%w: missing frequency", ErrInvalidFrequency)
	default:
		return fmt.Errorf("%w: unknown frequency %T", ErrInvalidFrequency, f)
	}
}
