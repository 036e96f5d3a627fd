// Package recurrence computes due instants for repeating tasks.
//
// A Schedule pairs an Anchor (the instant a rule is relative to, with its
// IANA zone) with a Frequency and an optional Until bound. Resolve returns
// the next occurrence strictly after a reference time; Seq and Iterator
// walk the sequence lazily. Every evaluator is closed-form: elapsed cycles are
// skipped with integer arithmetic, never enumerated day by day.
//
// The package holds no state and is safe for concurrent use.
package recurrence

import (
	"fmt"
	"math/bits"
)

// Arity of each persisted selector set.
const (
	WeekdayArity  = 7  // bit 0 = Sunday
	MonthDayArity = 31 // bit 0 = day 1
	MonthArity    = 12 // bit 0 = January
)

// BitSet is a set of small integers in [0, arity) packed into one integer.
// The bit assignment is persisted and must not change.
type BitSet struct {
	value uint32
	arity int
}

// Encode builds a BitSet from positions. Any position outside [0, arity)
// fails with ErrOutOfRange.
func Encode(positions []int, arity int) (BitSet, error) {
	if arity <= 0 || arity > 32 {
		return BitSet{}, fmt.Errorf("%w: arity %d", ErrOutOfRange, arity)
	}
	var v uint32
	for _, p := range positions {
		if p < 0 || p >= arity {
			return BitSet{}, fmt.Errorf("%w: position %d not in [0,%d)", ErrOutOfRange, p, arity)
		}
		v |= 1 << uint(p)
	}
	return BitSet{value: v, arity: arity}, nil
}

// FromValue wraps a persisted integer, rejecting bits at or above arity.
func FromValue(value uint32, arity int) (BitSet, error) {
	if arity <= 0 || arity > 32 {
		return BitSet{}, fmt.Errorf("%w: arity %d", ErrOutOfRange, arity)
	}
	if arity < 32 && value>>uint(arity) != 0 {
		return BitSet{}, fmt.Errorf("%w: value %#x exceeds arity %d", ErrOutOfRange, value, arity)
	}
	return BitSet{value: value, arity: arity}, nil
}

// MustEncode is Encode for literal sets known to be valid.
func MustEncode(arity int, positions ...int) BitSet {
	b, err := Encode(positions, arity)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode returns the set positions in ascending order.
func Decode(b BitSet) []int {
	return b.Positions()
}

// Positions returns the set positions in ascending order.
func (b BitSet) Positions() []int {
	out := make([]int, 0, bits.OnesCount32(b.value))
	for v := b.value; v != 0; v &= v - 1 {
		out = append(out, bits.TrailingZeros32(v))
	}
	return out
}

// Has reports whether position i is set.
func (b BitSet) Has(i int) bool {
	if i < 0 || i >= b.arity {
		return false
	}
	return b.value&(1<<uint(i)) != 0
}

func (b BitSet) Value() uint32 { return b.value }
func (b BitSet) Arity() int    { return b.arity }
func (b BitSet) Empty() bool   { return b.value == 0 }
func (b BitSet) Len() int      { return bits.OnesCount32(b.value) }

func (b BitSet) String() string {
	return fmt.Sprintf("%v/%d", b.Positions(), b.arity)
}
