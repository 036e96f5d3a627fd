package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/alecthomas/types/optional"
)

// Ordinal selects the Nth (or last) match within a month.
type Ordinal int

const (
	First  Ordinal = 0
	Second Ordinal = 1
	Third  Ordinal = 2
	Fourth Ordinal = 3
	Fifth  Ordinal = 4
	Last   Ordinal = -1
)

var ordinalNames = map[Ordinal]string{
	First: "first", Second: "second", Third: "third",
	Fourth: "fourth", Fifth: "fifth", Last: "last",
}

func (o Ordinal) Valid() bool {
	_, ok := ordinalNames[o]
	return ok
}

func (o Ordinal) String() string {
	if name, ok := ordinalNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Ordinal(%d)", int(o))
}

// ParseOrdinal accepts the lower-case ordinal names.
func ParseOrdinal(s string) (Ordinal, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for o, name := range ordinalNames {
		if name == s {
			return o, nil
		}
	}
	return 0, fmt.Errorf("%w: ordinal %q", ErrInvalidOrdinalWeekday, s)
}

// WeekdaySelector is a constant weekday (0=Sunday … 6=Saturday) or one of
// the variable categories.
type WeekdaySelector int

const (
	AnyDay         WeekdaySelector = 7
	WeekdayOnly    WeekdaySelector = 8
	WeekendDayOnly WeekdaySelector = 9
)

// Weekday returns the selector for a constant weekday.
func Weekday(d time.Weekday) WeekdaySelector { return WeekdaySelector(d) }

func (s WeekdaySelector) Valid() bool { return s >= 0 && s <= WeekendDayOnly }

// Constant reports whether s names a single weekday.
func (s WeekdaySelector) Constant() bool { return s >= 0 && s <= 6 }

func (s WeekdaySelector) String() string {
	switch {
	case s.Constant():
		return strings.ToLower(time.Weekday(s).String())
	case s == AnyDay:
		return "day"
	case s == WeekdayOnly:
		return "weekday"
	case s == WeekendDayOnly:
		return "weekend-day"
	}
	return fmt.Sprintf("WeekdaySelector(%d)", int(s))
}

// ParseWeekdaySelector accepts "sunday" … "saturday", "day", "weekday" and
// "weekend-day".
func ParseWeekdaySelector(s string) (WeekdaySelector, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for sel := WeekdaySelector(0); sel <= WeekendDayOnly; sel++ {
		if sel.String() == s {
			return sel, nil
		}
	}
	return 0, fmt.Errorf("%w: weekday %q", ErrInvalidOrdinalWeekday, s)
}

// OrdinalWeekday pairs an ordinal with a weekday selector, e.g. "last
// weekday" or "fifth wednesday".
type OrdinalWeekday struct {
	Ordinal Ordinal
	Weekday WeekdaySelector
}

func (ow OrdinalWeekday) Validate() error {
	if !ow.Ordinal.Valid() || !ow.Weekday.Valid() {
		return fmt.Errorf("%w: %d/%d", ErrInvalidOrdinalWeekday, int(ow.Ordinal), int(ow.Weekday))
	}
	return nil
}

func (ow OrdinalWeekday) String() string {
	return ow.Ordinal.String() + " " + ow.Weekday.String()
}

// ResolveOrdinalWeekday returns the day of month in (year, month) matching
// the ordinal and selector. The result is absent when the month has no such
// occurrence (a fifth Wednesday in a month with four). Only the given month
// is examined.
func ResolveOrdinalWeekday(year int, month time.Month, ord Ordinal, sel WeekdaySelector) (optional.Option[int], error) {
	if err := (OrdinalWeekday{Ordinal: ord, Weekday: sel}).Validate(); err != nil {
		return optional.None[int](), err
	}
	n := daysIn(year, month)

	if sel == AnyDay {
		if ord == Last {
			return optional.Some(n), nil
		}
		return optional.Some(int(ord) + 1), nil
	}

	if sel.Constant() {
		first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Weekday()
		day := 1 + (int(sel)-int(first)+7)%7
		count := (n-day)/7 + 1
		if ord == Last {
			return optional.Some(day + 7*(count-1)), nil
		}
		if int(ord) >= count {
			return optional.None[int](), nil
		}
		return optional.Some(day + 7*int(ord)), nil
	}

	// Category selectors: at most 31 candidates, filtered once.
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Weekday()
	matches := make([]int, 0, 23)
	for day := 1; day <= n; day++ {
		wd := time.Weekday((int(first) + day - 1) % 7)
		weekend := wd == time.Saturday || wd == time.Sunday
		if (sel == WeekendDayOnly) == weekend {
			matches = append(matches, day)
		}
	}
	if ord == Last {
		return optional.Some(matches[len(matches)-1]), nil
	}
	if int(ord) >= len(matches) {
		return optional.None[int](), nil
	}
	return optional.Some(matches[ord]), nil
}
