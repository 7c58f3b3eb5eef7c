package casbench

import (
	"math"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Word is a 64-bit location updated with compare-and-swap.
// *atomic.Uint64 and *Counter both satisfy it.
type Word interface {
	Load() uint64
	CompareAndSwap(old, new uint64) bool
}

// Counter is the shared location under contention. It sits alone on its
// cache line so that only the workers' CAS traffic touches that line.
type Counter struct {
	_ cpu.CacheLinePad
	v atomic.Uint64
	_ cpu.CacheLinePad
}

// Load returns the raw counter word.
func (c *Counter) Load() uint64 { return c.v.Load() }

// CompareAndSwap executes the compare-and-swap on the raw counter word.
func (c *Counter) CompareAndSwap(old, new uint64) bool { return c.v.CompareAndSwap(old, new) }

// Value returns the number of increments the counter holds.
func (c *Counter) Value(kind CounterKind) uint64 {
	raw := c.v.Load()
	if kind == KindFloat {
		return uint64(math.Float64frombits(raw))
	}
	return raw
}

// KernelOptions selects the exchange flavour and counter representation.
type KernelOptions struct {
	Mode  CASMode
	Order MemoryOrder
	Kind  CounterKind
}

// Kernel performs exactly iters successful increments of w and returns the
// total number of CAS attempts, failed ones included. iters must be positive.
//
// Go exposes a single sequentially consistent, strong CAS, so every
// Mode/Order combination runs through it. The loop still treats a failed
// exchange the same way whatever its cause, which is what weak mode needs.
func Kernel(iters uint64, w Word, opts KernelOptions) uint64 {
	next := incUint
	if opts.Kind == KindFloat {
		next = incFloat
	}

	var attempts uint64
	for ; iters > 0; iters-- {
		expected := w.Load()
		for {
			attempts++
			if w.CompareAndSwap(expected, next(expected)) {
				break
			}
			// Observed value after the failed exchange.
			expected = w.Load()
		}
	}
	return attempts
}

func incUint(v uint64) uint64 { return v + 1 }

func incFloat(v uint64) uint64 {
	return math.Float64bits(math.Float64frombits(v) + 1)
}
