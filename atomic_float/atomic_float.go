package atomic_float

import (
	"math"
	"sync/atomic"
)

// AtomicFloat64 is a float64 for lock-free concurrent reads and updates, stored
// as its IEEE-754 bits in an atomic.Uint64. The zero value is 0.0.
type AtomicFloat64 struct {
	bits atomic.Uint64
}

func NewAtomicFloat64(val float64) *AtomicFloat64 {
	af := &AtomicFloat64{}
	af.bits.Store(math.Float64bits(val))
	return af
}

// AtomicRead returns the current value.
func (af *AtomicFloat64) AtomicRead() float64 {
	return math.Float64frombits(af.bits.Load())
}

// AtomicAdd makes a single attempt to add addend. If another writer changed the
// value between the read and the swap the add is not applied and succeeded is
// false; the caller decides whether to retry, recalculate, or drop the update.
func (af *AtomicFloat64) AtomicAdd(addend float64) (newVal float64, succeeded bool) {
	old := af.bits.Load()
	newVal = math.Float64frombits(old) + addend
	succeeded = af.bits.CompareAndSwap(old, math.Float64bits(newVal))
	return
}

// Accumulate adds addend, retrying until no other writer interferes.
func (af *AtomicFloat64) Accumulate(addend float64) (newVal float64) {
	for succeeded := false; !succeeded; newVal, succeeded = af.AtomicAdd(addend) {
	}
	return
}

// AtomicSet stores val unconditionally.
func (af *AtomicFloat64) AtomicSet(val float64) {
	af.bits.Store(math.Float64bits(val))
}
