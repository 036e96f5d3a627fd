package recurrence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alecthomas/types/optional"
)

// Frequency kinds as they appear on the wire.
const (
	KindNever   = "never"
	KindRegular = "regular"
	KindCustom  = "custom"
)

// Document is the serialised form of a Schedule. The same shape is used for
// JSON payloads and YAML rule files. Bitsets travel as their integer value.
type Document struct {
	Anchor    AnchorDocument    `json:"anchor" yaml:"anchor"`
	Frequency FrequencyDocument `json:"frequency" yaml:"frequency"`
	Until     *time.Time        `json:"until,omitempty" yaml:"until,omitempty"`
}

type AnchorDocument struct {
	At    time.Time `json:"at,omitzero" yaml:"at,omitempty"`
	TZ    string    `json:"tz,omitempty" yaml:"tz,omitempty"`
	Naive string    `json:"naive,omitempty" yaml:"naive,omitempty"`
}

type FrequencyDocument struct {
	Kind        string   `json:"kind" yaml:"kind"`
	Every       int      `json:"every,omitempty" yaml:"every,omitempty"`
	Unit        Unit     `json:"unit,omitempty" yaml:"unit,omitempty"`
	Weekdays    uint32   `json:"weekdays,omitempty" yaml:"weekdays,omitempty"`
	Days        uint32   `json:"days,omitempty" yaml:"days,omitempty"`
	Months      uint32   `json:"months,omitempty" yaml:"months,omitempty"`
	Ordinal     string   `json:"ordinal,omitempty" yaml:"ordinal,omitempty"`
	Weekday     string   `json:"weekday,omitempty" yaml:"weekday,omitempty"`
	Expressions []string `json:"expressions,omitempty" yaml:"expressions,omitempty"`
}

// Document converts s to its serialised form.
func (s Schedule) Document() (Document, error) {
	doc := Document{
		Anchor: AnchorDocument{At: s.Anchor.At, TZ: s.Anchor.TimeZone, Naive: s.Anchor.Naive},
	}
	if u, ok := s.Until.Get(); ok {
		doc.Until = &u
	}

	switch f := s.Frequency.(type) {
	case Never:
		doc.Frequency.Kind = KindNever
	case CustomFrequency:
		doc.Frequency.Kind = KindCustom
		doc.Frequency.Expressions = f.Expressions
	case RegularFrequency:
		fd := FrequencyDocument{Kind: KindRegular, Every: f.Every}
		switch e := f.Expr.(type) {
		case Hourly, Daily:
		case Weekly:
			fd.Weekdays = e.Weekdays.Value()
		case MonthlyOnDays:
			fd.Days = e.Days.Value()
		case MonthlyOnThe:
			fd.Ordinal, fd.Weekday = e.On.Ordinal.String(), e.On.Weekday.String()
		case Yearly:
			fd.Months = e.Months.Value()
			if on, ok := e.On.Get(); ok {
				fd.Ordinal, fd.Weekday = on.Ordinal.String(), on.Weekday.String()
			}
		default:
			return Document{}, fmt.Errorf("%w: unknown expression %T", ErrInvalidFrequency, e)
		}
		if f.Expr != nil {
			fd.Unit = f.Expr.Unit()
		}
		doc.Frequency = fd
	default:
		return Document{}, fmt.Errorf("%w: unknown frequency %T", ErrInvalidFrequency, f)
	}
	return doc, nil
}

// Schedule rebuilds and validates the rule described by d. An anchor given
// only as naive text plus zone is resolved in that zone.
func (d Document) Schedule() (Schedule, error) {
	var (
		anchor Anchor
		err    error
	)
	switch {
	case !d.Anchor.At.IsZero():
		anchor, err = NewAnchor(d.Anchor.At, d.Anchor.TZ)
	case d.Anchor.Naive != "":
		anchor, err = ParseAnchor(d.Anchor.Naive, d.Anchor.TZ)
	default:
		err = fmt.Errorf("%w: anchor has neither at nor naive", ErrInvalidAnchor)
	}
	if err != nil {
		return Schedule{}, err
	}

	freq, err := d.Frequency.frequency()
	if err != nil {
		return Schedule{}, err
	}

	s := Schedule{Anchor: anchor, Frequency: freq, Until: optional.None[time.Time]()}
	if d.Until != nil {
		s.Until = optional.Some(Instant(*d.Until))
	}
	if err := s.Validate(); err != nil {
		return Schedule{}, err
	}
	return s, nil
}

func (fd FrequencyDocument) frequency() (Frequency, error) {
	switch fd.Kind {
	case KindNever, "":
		return Never{}, nil
	case KindCustom:
		return CustomFrequency{Expressions: fd.Expressions}, nil
	case KindRegular:
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrInvalidFrequency, fd.Kind)
	}

	f := RegularFrequency{Every: fd.Every}
	switch fd.Unit {
	case UnitHour:
		f.Expr = Hourly{}
	case UnitDay:
		f.Expr = Daily{}
	case UnitWeek:
		b, err := FromValue(fd.Weekdays, WeekdayArity)
		if err != nil {
			return nil, err
		}
		f.Expr = Weekly{Weekdays: b}
	case UnitMonth:
		if fd.Ordinal != "" || fd.Weekday != "" {
			on, err := fd.ordinalWeekday()
			if err != nil {
				return nil, err
			}
			f.Expr = MonthlyOnThe{On: on}
			break
		}
		b, err := FromValue(fd.Days, MonthDayArity)
		if err != nil {
			return nil, err
		}
		f.Expr = MonthlyOnDays{Days: b}
	case UnitYear:
		b, err := FromValue(fd.Months, MonthArity)
		if err != nil {
			return nil, err
		}
		y := Yearly{Months: b, On: optional.None[OrdinalWeekday]()}
		if fd.Ordinal != "" || fd.Weekday != "" {
			on, err := fd.ordinalWeekday()
			if err != nil {
				return nil, err
			}
			y.On = optional.Some(on)
		}
		f.Expr = y
	default:
		return nil, fmt.Errorf("%w: unit %q", ErrInvalidFrequency, fd.Unit)
	}
	return f, nil
}

func (fd FrequencyDocument) ordinalWeekday() (OrdinalWeekday, error) {
	ord, err := ParseOrdinal(fd.Ordinal)
	if err != nil {
		return OrdinalWeekday{}, err
	}
	sel, err := ParseWeekdaySelector(fd.Weekday)
	if err != nil {
		return OrdinalWeekday{}, err
	}
	return OrdinalWeekday{Ordinal: ord, Weekday: sel}, nil
}

// MarshalJSON encodes the schedule as a Document.
func (s Schedule) MarshalJSON() ([]byte, error) {
	doc, err := s.Document()
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// UnmarshalJSON decodes and validates a Document.
func (s *Schedule) UnmarshalJSON(data []byte) error {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	parsed, err := doc.Schedule()
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
