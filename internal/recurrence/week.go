package recurrence

import "time"

// BringForwardWeek returns anchor + k·7·every days for the smallest k >= 0
// that lands at or after now. Days are calendar days in the anchor's zone,
// so the local time of day is kept across DST changes.
func BringForwardWeek(now time.Time, anchor Anchor, every int) time.Time {
	local := anchor.Local()
	step := 7 * every
	period := scaled(step, DayPeriod)
	if period == 0 {
		return local
	}
	// Estimates are whole periods of elapsed time; a DST shift can leave
	// one short by an hour, which the next pass picks up.
	k := 0
	t := local
	for t.Before(now) {
		n := int(now.Sub(t) / period)
		if n == 0 {
			n = 1
		}
		k += n
		t = local.AddDate(0, 0, k*step)
	}
	return t
}

// WeekCandidates returns the occurrences of a weekly rule in the first cycle
// week whose last day is at or after cursor. Weeks start on Sunday. With no
// weekdays selected the anchor's own weekday is used.
func WeekCandidates(anchor Anchor, cursor time.Time, every int, weekdays BitSet) []time.Time {
	local := anchor.Local()
	wd := int(local.Weekday())
	shifted := cursor.In(local.Location()).AddDate(0, 0, -(6 - wd))
	ref := BringForwardWeek(shifted, anchor, every)
	if weekdays.Empty() {
		return []time.Time{ref}
	}
	weekStart := ref.AddDate(0, 0, -wd)
	out := make([]time.Time, 0, weekdays.Len())
	for _, d := range weekdays.Positions() {
		out = append(out, weekStart.AddDate(0, 0, d))
	}
	return out
}
