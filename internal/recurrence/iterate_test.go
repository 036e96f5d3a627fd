// iterate_test.go checks ordering properties that every rule must satisfy:
// strictly ascending output, catch-up equal to iteration, termination under
// Until and restartable iterators.
package recurrence

import (
	"testing"
	"time"

	"github.com/alecthomas/types/optional"
)

func propertySchedules() map[string]Schedule {
	lastWeekday := OrdinalWeekday{Ordinal: Last, Weekday: WeekdayOnly}
	return map[string]Schedule{
		"every 5 hours":         schedule(baseAnchor, regular(5, Hourly{})),
		"every 3 days":          schedule(baseAnchor, regular(3, Daily{})),
		"every 2 weeks mon wed": schedule(baseAnchor, regular(2, Weekly{Weekdays: MustEncode(WeekdayArity, 1, 3)})),
		"every week":            schedule(baseAnchor, regular(1, Weekly{})),
		"monthly 1 15 31":       schedule(baseAnchor, regular(1, MonthlyOnDays{Days: MustEncode(MonthDayArity, 0, 14, 30)})),
		"quarterly last weekday": schedule(baseAnchor, regular(3, MonthlyOnThe{On: lastWeekday})),
		"monthly fifth friday": schedule(baseAnchor, regular(1, MonthlyOnThe{
			On: OrdinalWeekday{Ordinal: Fifth, Weekday: Weekday(time.Friday)},
		})),
		"yearly feb and aug": schedule(baseAnchor, regular(1, Yearly{Months: MustEncode(MonthArity, 1, 7)})),
		"yearly second weekend day": schedule(baseAnchor, regular(2, Yearly{
			Months: MustEncode(MonthArity, 0, 6),
			On:     optional.Some(OrdinalWeekday{Ordinal: Second, Weekday: WeekendDayOnly}),
		})),
		"custom": schedule(baseAnchor, CustomFrequency{Expressions: []string{"0 9 * * 1", "30 17 1 * *"}}),
	}
}

func TestIterate_StrictlyAscending(t *testing.T) {
	for name, s := range propertySchedules() {
		t.Run(name, func(t *testing.T) {
			got, err := NextN(s, baseAnchor.At.Add(-time.Millisecond), 40)
			if err != nil {
				t.Fatalf("NextN failed: %v", err)
			}
			if len(got) != 40 {
				t.Fatalf("expected 40 occurrences, got %d", len(got))
			}
			if got[0].Before(baseAnchor.At) {
				t.Errorf("first occurrence %s precedes the anchor", got[0])
			}
			for i := 1; i < len(got); i++ {
				if !got[i].After(got[i-1]) {
					t.Errorf("occurrence %d (%s) not after %s", i, got[i], got[i-1])
				}
			}
		})
	}
}

func TestResolve_CatchUpMatchesIteration(t *testing.T) {
	for name, s := range propertySchedules() {
		t.Run(name, func(t *testing.T) {
			seq, err := NextN(s, baseAnchor.At, 25)
			if err != nil {
				t.Fatalf("NextN failed: %v", err)
			}
			for i := 1; i < len(seq); i++ {
				gap := seq[i].Sub(seq[i-1])
				for _, now := range []time.Time{seq[i-1], seq[i-1].Add(gap / 2), seq[i].Add(-time.Millisecond)} {
					got := mustResolve(t, s, now)
					if !got.Equal(seq[i]) {
						t.Errorf("Resolve(%s): expected %s, got %s", now, seq[i], got)
					}
				}
			}
		})
	}
}

func TestIterate_UntilTerminates(t *testing.T) {
	until := at("2026-06-30T00:00:00Z")
	for name, s := range propertySchedules() {
		t.Run(name, func(t *testing.T) {
			s.Until = optional.Some(until)
			got, err := NextN(s, baseAnchor.At, 100000)
			if err != nil {
				t.Fatalf("NextN failed: %v", err)
			}
			if len(got) == 100000 {
				t.Fatal("expected iteration to stop at until")
			}
			for _, occ := range got {
				if occ.After(until) {
					t.Errorf("occurrence %s after until %s", occ, until)
				}
			}
		})
	}
}

func TestIterate_MonthEndClamping(t *testing.T) {
	s := schedule(baseAnchor, regular(1, MonthlyOnDays{Days: MustEncode(MonthDayArity, 30)}))
	got, err := NextN(s, baseAnchor.At, 24)
	if err != nil {
		t.Fatalf("NextN failed: %v", err)
	}
	for _, occ := range got {
		if occ.AddDate(0, 0, 1).Month() == occ.Month() {
			t.Errorf("expected last day of month, got %s", occ.Format(time.DateOnly))
		}
	}
}

func TestIterator_Reset(t *testing.T) {
	s := schedule(baseAnchor, regular(1, Daily{}))
	it := NewIterator(s, baseAnchor.At)

	var first []time.Time
	for i := 0; i < 3 && it.Next(); i++ {
		first = append(first, it.Time())
	}

	it.Reset(baseAnchor.At)
	for i := 0; i < 3; i++ {
		if !it.Next() {
			t.Fatalf("expected occurrence %d after reset", i)
		}
		if !it.Time().Equal(first[i]) {
			t.Errorf("expected %s after reset, got %s", first[i], it.Time())
		}
	}
	if it.Err() != nil {
		t.Errorf("unexpected error: %v", it.Err())
	}
}

func TestSeq_StopsEarly(t *testing.T) {
	s := schedule(baseAnchor, regular(1, Hourly{}))
	n := 0
	for occ := range Seq(s, baseAnchor.At) {
		n++
		if n == 5 {
			if !occ.Equal(baseAnchor.At.Add(5 * time.Hour)) {
				t.Errorf("expected fifth hour, got %s", occ)
			}
			break
		}
	}
	if n != 5 {
		t.Errorf("expected 5 iterations, got %d", n)
	}
}

func TestIterator_StopsOnError(t *testing.T) {
	it := NewIterator(schedule(baseAnchor, regular(0, Daily{})), baseAnchor.At)
	if it.Next() {
		t.Fatal("expected no occurrence for an invalid rule")
	}
	if it.Err() == nil {
		t.Error("expected error to be reported")
	}
	if it.Next() {
		t.Error("expected iterator to stay exhausted")
	}
}
