// resolve_test.go tests next-occurrence resolution for every frequency kind,
// including calendar clamping, ordinal forward search and Until bounds.
package recurrence

import (
	"errors"
	"testing"
	"time"

	"github.com/alecthomas/types/optional"
)

var baseAnchor = MustAnchor(time.Date(2023, 10, 23, 10, 32, 40, 5_000_000, time.UTC), "UTC")

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		panic(err)
	}
	return t
}

func regular(every int, expr Expression) RegularFrequency {
	return RegularFrequency{Every: every, Expr: expr}
}

func schedule(anchor Anchor, f Frequency) Schedule {
	return Schedule{Anchor: anchor, Frequency: f}
}

func mustResolve(t *testing.T, s Schedule, now time.Time) time.Time {
	t.Helper()
	next, err := Resolve(s, now)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	got, ok := next.Get()
	if !ok {
		t.Fatalf("expected an occurrence after %s, got none", now)
	}
	return got
}

func assertTimes(t *testing.T, want []string, got []time.Time) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d instants, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if !got[i].Equal(at(want[i])) {
			t.Errorf("instant %d: expected %s, got %s", i, want[i], got[i].UTC().Format(time.RFC3339Nano))
		}
	}
}

func TestMonthDayCandidates_Clamping(t *testing.T) {
	days := MustEncode(MonthDayArity, 0, 14, 30)
	y, m := MonthCycle(baseAnchor, at("2025-01-15T00:00:00Z"), 8)
	if y != 2025 || m != time.February {
		t.Fatalf("expected cycle month 2025-02, got %d-%02d", y, m)
	}

	got := MonthDayCandidates(baseAnchor, y, m, days)
	assertTimes(t, []string{
		"2025-02-01T10:32:40.005Z",
		"2025-02-15T10:32:40.005Z",
		"2025-02-28T10:32:40.005Z",
	}, got)

	next := mustResolve(t, schedule(baseAnchor, regular(8, MonthlyOnDays{Days: days})), at("2025-01-01T00:00:00Z"))
	if !next.Equal(at("2025-02-01T10:32:40.005Z")) {
		t.Errorf("expected 2025-02-01, got %s", next)
	}
}

func TestResolve_MonthlyOnThe(t *testing.T) {
	tests := []struct {
		name string
		sel  WeekdaySelector
		ord  Ordinal
		now  string
		want string
	}{
		{"first sunday", Weekday(time.Sunday), First, "2023-11-01T00:00:00Z", "2028-10-01T10:32:40.005Z"},
		{"first monday", Weekday(time.Monday), First, "2023-11-01T00:00:00Z", "2028-10-02T10:32:40.005Z"},
		{"fifth wednesday searches forward", Weekday(time.Wednesday), Fifth, "2023-10-23T10:32:40.005Z", "2053-10-29T10:32:40.005Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := schedule(baseAnchor, regular(60, MonthlyOnThe{On: OrdinalWeekday{Ordinal: tt.ord, Weekday: tt.sel}}))
			got := mustResolve(t, s, at(tt.now))
			if !got.Equal(at(tt.want)) {
				t.Errorf("expected %s, got %s", tt.want, got.UTC().Format(time.RFC3339Nano))
			}
		})
	}
}

func TestResolve_WeeklyAllDays(t *testing.T) {
	anchor := MustAnchor(at("2024-12-06T15:09:00.005Z"), "UTC")
	s := schedule(anchor, regular(13, Weekly{Weekdays: MustEncode(WeekdayArity, 0, 1, 2, 3, 4, 5, 6)}))

	got, err := NextN(s, at("2024-12-08T00:00:00Z"), 7)
	if err != nil {
		t.Fatalf("NextN failed: %v", err)
	}
	assertTimes(t, []string{
		"2025-03-02T15:09:00.005Z",
		"2025-03-03T15:09:00.005Z",
		"2025-03-04T15:09:00.005Z",
		"2025-03-05T15:09:00.005Z",
		"2025-03-06T15:09:00.005Z",
		"2025-03-07T15:09:00.005Z",
		"2025-03-08T15:09:00.005Z",
	}, got)
}

func TestResolve_WeeklyAnchorWeekday(t *testing.T) {
	// 2024-03-01 is a Friday; DST starts in New York on 2024-03-10.
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("zone database unavailable: %v", err)
	}
	anchor := MustAnchor(time.Date(2024, 3, 1, 9, 0, 0, 0, loc), "America/New_York")
	s := schedule(anchor, regular(1, Weekly{}))

	got := mustResolve(t, s, time.Date(2024, 3, 20, 0, 0, 0, 0, loc)).In(loc)
	if got.Weekday() != time.Friday || got.Day() != 22 {
		t.Errorf("expected Friday 22 March, got %s", got)
	}
	if got.Hour() != 9 || got.Minute() != 0 {
		t.Errorf("expected local time 09:00 across DST, got %s", got.Format("15:04"))
	}
}

func TestYearCandidates_AnchorDayClamped(t *testing.T) {
	anchor := MustAnchor(at("2023-10-31T10:32:40.005Z"), "UTC")
	expr := Yearly{Months: MustEncode(MonthArity, 0, 2, 4, 6, 8)}

	if got := YearCycle(anchor, at("2024-01-01T00:00:00Z"), 7); got != 2030 {
		t.Fatalf("expected cycle year 2030, got %d", got)
	}

	slots, err := YearCandidates(anchor, 2030, expr)
	if err != nil {
		t.Fatalf("YearCandidates failed: %v", err)
	}
	var got []time.Time
	for _, slot := range slots {
		v, ok := slot.Get()
		if !ok {
			t.Fatal("expected every slot to be present without an ordinal")
		}
		got = append(got, v)
	}
	assertTimes(t, []string{
		"2030-01-31T10:32:40.005Z",
		"2030-03-31T10:32:40.005Z",
		"2030-05-31T10:32:40.005Z",
		"2030-07-31T10:32:40.005Z",
		"2030-09-30T10:32:40.005Z",
	}, got)

	next := mustResolve(t, schedule(anchor, regular(7, expr)), anchor.At)
	if !next.Equal(at("2030-01-31T10:32:40.005Z")) {
		t.Errorf("expected first occurrence 2030-01-31, got %s", next)
	}
}

func TestResolve_YearlyOrdinal(t *testing.T) {
	// Last Monday of May: Memorial Day.
	anchor := MustAnchor(at("2024-01-10T14:00:00Z"), "UTC")
	on := OrdinalWeekday{Ordinal: Last, Weekday: Weekday(time.Monday)}
	s := schedule(anchor, regular(1, Yearly{Months: MustEncode(MonthArity, 4), On: optional.Some(on)}))

	got, err := NextN(s, anchor.At, 3)
	if err != nil {
		t.Fatalf("NextN failed: %v", err)
	}
	assertTimes(t, []string{
		"2024-05-27T14:00:00Z",
		"2025-05-26T14:00:00Z",
		"2026-05-25T14:00:00Z",
	}, got)
}

func TestBringForwardWeek_FarFuture(t *testing.T) {
	const every = 2
	now := at("2100-01-01T00:00:00Z")
	got := BringForwardWeek(now, baseAnchor, every)

	period := time.Duration(7*every) * DayPeriod
	if got.Before(now) {
		t.Fatalf("expected result at or after %s, got %s", now, got)
	}
	if !got.Add(-period).Before(now) {
		t.Errorf("expected smallest k, but %s is also at or after now", got.Add(-period))
	}
	if got.Sub(baseAnchor.At)%period != 0 {
		t.Errorf("expected whole periods from the anchor, got offset %s", got.Sub(baseAnchor.At))
	}
	if !got.Equal(at("2100-01-04T10:32:40.005Z")) {
		t.Errorf("expected 2100-01-04T10:32:40.005Z, got %s", got.UTC().Format(time.RFC3339Nano))
	}
}

func TestBringForward_AnchorInFuture(t *testing.T) {
	now := baseAnchor.At.Add(-time.Hour)
	if got := BringForward(now, baseAnchor.At, HourPeriod); !got.Equal(baseAnchor.At) {
		t.Errorf("expected anchor unchanged, got %s", got)
	}
}

func TestResolve_HourlyAndDaily(t *testing.T) {
	a := baseAnchor.At
	tests := []struct {
		name string
		f    RegularFrequency
		now  time.Time
		want time.Time
	}{
		{"hourly mid period", regular(3, Hourly{}), a.Add(7 * time.Hour), a.Add(9 * time.Hour)},
		{"hourly exactly on occurrence", regular(3, Hourly{}), a.Add(3 * time.Hour), a.Add(6 * time.Hour)},
		{"hourly before anchor", regular(3, Hourly{}), a.Add(-time.Minute), a},
		{"daily", regular(2, Daily{}), a.Add(3 * DayPeriod), a.Add(4 * DayPeriod)},
		{"daily far future", regular(1, Daily{}), a.Add(10000*DayPeriod + time.Second), a.Add(10001 * DayPeriod)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustResolve(t, schedule(baseAnchor, tt.f), tt.now)
			if !got.Equal(tt.want) {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestResolve_Never(t *testing.T) {
	s := schedule(baseAnchor, Never{})

	got := mustResolve(t, s, baseAnchor.At.Add(-time.Second))
	if !got.Equal(baseAnchor.At) {
		t.Errorf("expected pending one-shot to return its anchor, got %s", got)
	}

	next, err := Resolve(s, baseAnchor.At)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if next.Ok() {
		t.Error("expected no occurrence once the anchor has passed")
	}
}

func TestResolve_InvalidFrequency(t *testing.T) {
	tests := []struct {
		name string
		f    Frequency
		want error
	}{
		{"zero every", regular(0, Daily{}), ErrInvalidFrequency},
		{"missing expression", RegularFrequency{Every: 1}, ErrInvalidFrequency},
		{"missing frequency", nil, ErrInvalidFrequency},
		{"bad ordinal", regular(1, MonthlyOnThe{On: OrdinalWeekday{Ordinal: 9, Weekday: AnyDay}}), ErrInvalidOrdinalWeekday},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(schedule(baseAnchor, tt.f), baseAnchor.At)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestResolve_Until(t *testing.T) {
	s := schedule(baseAnchor, regular(1, Daily{}))
	s.Until = optional.Some(baseAnchor.At.Add(2*DayPeriod + time.Hour))

	got, err := NextN(s, baseAnchor.At, 10)
	if err != nil {
		t.Fatalf("NextN failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 occurrences before until, got %d: %v", len(got), got)
	}

	monthly := schedule(baseAnchor, regular(1, MonthlyOnThe{On: OrdinalWeekday{Ordinal: Fifth, Weekday: Weekday(time.Wednesday)}}))
	monthly.Until = optional.Some(at("2023-11-15T00:00:00Z"))
	next, err := Resolve(monthly, baseAnchor.At)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if next.Ok() {
		t.Errorf("expected 2023-11-29 to be cut off by until, got %v", next)
	}
}

func TestResolve_EveryBeyondPeriodLimit(t *testing.T) {
	tests := []struct {
		name string
		f    RegularFrequency
	}{
		{"hourly", regular(3_000_000, Hourly{})},
		{"daily", regular(200_000, Daily{})},
		{"weekly", regular(20_000, Weekly{})},
		{"monthly on days", regular(MaxEvery(UnitMonth)+1, MonthlyOnDays{})},
		{"monthly on the", regular(MaxEvery(UnitMonth)+1, MonthlyOnThe{On: OrdinalWeekday{Ordinal: First, Weekday: AnyDay}})},
		{"yearly", regular(MaxEvery(UnitYear)+1, Yearly{})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(schedule(baseAnchor, tt.f), at("2025-01-01T00:00:00Z"))
			if !errors.Is(err, ErrInvalidFrequency) {
				t.Errorf("expected ErrInvalidFrequency, got %v", err)
			}
		})
	}
}

func TestResolve_EveryAtPeriodLimit(t *testing.T) {
	now := at("2025-01-01T00:00:00Z")
	tests := []struct {
		name string
		f    RegularFrequency
	}{
		{"hourly", regular(MaxEvery(UnitHour), Hourly{})},
		{"daily", regular(MaxEvery(UnitDay), Daily{})},
		{"weekly", regular(MaxEvery(UnitWeek), Weekly{})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextN(schedule(baseAnchor, tt.f), now, 3)
			if err != nil {
				t.Fatalf("NextN failed: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("expected 3 occurrences, got %d", len(got))
			}
			prev := now
			for i, g := range got {
				if !g.After(prev) {
					t.Fatalf("occurrence %d: %s is not after %s", i, g, prev)
				}
				prev = g
			}
		})
	}
}

func TestBringForward_GapBeyondDuration(t *testing.T) {
	anchor := time.Date(1700, 3, 1, 6, 15, 0, 0, time.UTC)
	now := at("2100-06-01T12:00:00Z")
	got := BringForward(now, anchor, HourPeriod)
	if got.Before(now) || !got.Add(-HourPeriod).Before(now) {
		t.Errorf("expected the first hourly step at or after %s, got %s", now, got)
	}
	if got.Minute() != 15 {
		t.Errorf("expected anchor minute to be kept, got %s", got)
	}
}

func TestResolve_LongCycleSkipsAbsentCycles(t *testing.T) {
	fifthWednesday := OrdinalWeekday{Ordinal: Fifth, Weekday: Weekday(time.Wednesday)}

	// August of 100 and 5000 has four Wednesdays; 9900 has five.
	anchor := MustAnchor(time.Date(100, 8, 1, 9, 0, 0, 0, time.UTC), "UTC")
	yearly := schedule(anchor, regular(4900, Yearly{Months: MustEncode(MonthArity, 7), On: optional.Some(fifthWednesday)}))
	if got := mustResolve(t, yearly, anchor.At); !got.Equal(at("9900-08-29T09:00:00Z")) {
		t.Errorf("expected 9900-08-29, got %s", got)
	}

	monthly := schedule(baseAnchor, regular(5000, MonthlyOnThe{On: fifthWednesday}))
	if got := mustResolve(t, monthly, baseAnchor.At); !got.Equal(at("4940-06-29T10:32:40.005Z")) {
		t.Errorf("expected 4940-06-29, got %s", got)
	}
}
