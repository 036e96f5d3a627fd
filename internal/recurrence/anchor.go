package recurrence

import (
	"fmt"
	"time"
)

// NaiveLayout is the zone-less local representation stored with an Anchor.
const NaiveLayout = "2006-01-02T15:04:05.000"

// Anchor is the instant a rule is relative to, together with the zone the
// user created it in. Calendar arithmetic runs in that zone so the local
// time of day survives even when the process runs elsewhere.
type Anchor struct {
	At       time.Time
	TimeZone string
	Naive    string
}

// NewAnchor builds an Anchor from an instant and an IANA zone name. An empty
// zone means UTC.
func NewAnchor(at time.Time, tz string) (Anchor, error) {
	loc, err := loadZone(tz)
	if err != nil {
		return Anchor{}, err
	}
	at = Instant(at)
	return Anchor{
		At:       at,
		TimeZone: tz,
		Naive:    at.In(loc).Format(NaiveLayout),
	}, nil
}

// ParseAnchor rebuilds an Anchor from its naive local text and zone.
func ParseAnchor(naive, tz string) (Anchor, error) {
	loc, err := loadZone(tz)
	if err != nil {
		return Anchor{}, err
	}
	local, err := time.ParseInLocation(NaiveLayout, naive, loc)
	if err != nil {
		return Anchor{}, fmt.Errorf("%w: naive %q: %v", ErrInvalidAnchor, naive, err)
	}
	return Anchor{At: Instant(local), TimeZone: tz, Naive: naive}, nil
}

// MustAnchor is NewAnchor for fixed test and literal values.
func MustAnchor(at time.Time, tz string) Anchor {
	a, err := NewAnchor(at, tz)
	if err != nil {
		panic(err)
	}
	return a
}

// Location returns the anchor's zone, falling back to UTC for an unknown
// name. Use Validate to detect that case.
func (a Anchor) Location() *time.Location {
	loc, err := loadZone(a.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Local returns the anchor instant in its own zone.
func (a Anchor) Local() time.Time {
	return a.At.In(a.Location())
}

// Validate checks the zone name and that Naive agrees with At.
func (a Anchor) Validate() error {
	if a.At.IsZero() {
		return fmt.Errorf("%w: zero instant", ErrInvalidAnchor)
	}
	loc, err := loadZone(a.TimeZone)
	if err != nil {
		return err
	}
	if a.Naive != "" && a.At.In(loc).Format(NaiveLayout) != a.Naive {
		return fmt.Errorf("%w: naive %q does not match %s in %s", ErrInvalidAnchor, a.Naive, a.At.Format(time.RFC3339Nano), loc)
	}
	return nil
}

// Instant truncates t to millisecond precision.
func Instant(t time.Time) time.Time {
	return t.Truncate(time.Millisecond)
}

func loadZone(tz string) (*time.Location, error) {
	if tz == "" || tz == "UTC" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: zone %q: %v", ErrInvalidAnchor, tz, err)
	}
	return loc, nil
}

// daysIn returns the number of days in month of year.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// atDay returns the anchor's local time of day on the given calendar date.
func atDay(local time.Time, year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, local.Hour(), local.Minute(), local.Second(), local.Nanosecond(), local.Location())
}
