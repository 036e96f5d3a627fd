package recurrence

import (
	"iter"
	"time"
)

// Iterator walks the occurrences of a schedule in ascending order. It is
// not safe for concurrent use.
//
//	it := recurrence.NewIterator(s, now)
//	for it.Next() {
//		fmt.Println(it.Time())
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator struct {
	schedule Schedule
	cursor   time.Time
	current  time.Time
	err      error
	done     bool
}

// NewIterator returns an iterator positioned before the first occurrence
// strictly after from.
func NewIterator(s Schedule, from time.Time) *Iterator {
	return &Iterator{schedule: s, cursor: from}
}

// Next advances to the following occurrence. It returns false once the
// schedule is exhausted or an error occurred.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	next, err := Resolve(it.schedule, it.cursor)
	if err != nil {
		it.err = err
		it.done = true
		return false
	}
	t, ok := next.Get()
	if !ok {
		it.done = true
		return false
	}
	it.current = t
	it.cursor = t
	return true
}

// Time returns the occurrence found by the last successful Next.
func (it *Iterator) Time() time.Time { return it.current }

// Err returns the error that stopped iteration, if any.
func (it *Iterator) Err() error { return it.err }

// Reset repositions the iterator so the next call to Next yields the first
// occurrence strictly after from.
func (it *Iterator) Reset(from time.Time) {
	it.cursor = from
	it.current = time.Time{}
	it.err = nil
	it.done = false
}

// Seq returns the occurrences of s strictly after from. Errors end the
// sequence silently; use an Iterator when they matter.
func Seq(s Schedule, from time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		it := NewIterator(s, from)
		for it.Next() {
			if !yield(it.Time()) {
				return
			}
		}
	}
}

// NextN returns up to n occurrences strictly after from.
func NextN(s Schedule, from time.Time, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, nil
	}
	out := make([]time.Time, 0, n)
	it := NewIterator(s, from)
	for len(out) < n && it.Next() {
		out = append(out, it.Time())
	}
	return out, it.Err()
}
