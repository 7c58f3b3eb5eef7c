package casbench

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// ErrInvalidConfig is wrapped by every error returned from Config.Validate.
var ErrInvalidConfig = errors.New("invalid config")

// CASMode selects weak or strong compare-and-swap semantics.
type CASMode string

const (
	ModeStrong CASMode = "strong"
	ModeWeak   CASMode = "weak"
)

// MemoryOrder is the ordering requested for both the success and failure
// side of the exchange.
type MemoryOrder string

const (
	OrderRelaxed MemoryOrder = "relaxed"
	OrderAcqRel  MemoryOrder = "acq_rel"
	OrderSeqCst  MemoryOrder = "seq_cst"
)

// CounterKind is the numeric type stored in the shared counter.
type CounterKind string

const (
	KindUint  CounterKind = "uint"
	KindFloat CounterKind = "float"
)

// maxExactFloat is the largest count a float64 counter represents exactly.
const maxExactFloat = 1 << 53

// DefaultThreads is the baseline sweep.
var DefaultThreads = []int{1, 2, 4, 8, 16, 32, 48, 64, 80, 96, 112, 128}

// DefaultIterations is the number of successful increments per worker.
const DefaultIterations = 100000

// Config controls a sweep.
type Config struct {
	Threads    []int       // Thread counts, run in order
	Iterations uint64      // Successful increments per worker
	Mode       CASMode     // Weak or strong exchange
	Order      MemoryOrder // Ordering for success and failure
	Kind       CounterKind // Counter representation

	// ArmDelay is how long the driver waits for workers to reach the start
	// line before releasing them.
	ArmDelay time.Duration

	// MatchProcs raises GOMAXPROCS to the thread count while a
	// configuration runs so each worker has its own OS thread.
	MatchProcs bool

	// ContinueOnError keeps the sweep going after a failed configuration.
	ContinueOnError bool

	Binder   Binder       // Nil disables pinning
	Logger   *slog.Logger // Nil uses slog.Default()
	OnResult func(Result) // Called as soon as each configuration reports
}

// DefaultConfig returns the baseline reproducible scenario.
func DefaultConfig() Config {
	threads := make([]int, len(DefaultThreads))
	copy(threads, DefaultThreads)

	return Config{
		Threads:    threads,
		Iterations: DefaultIterations,
		Mode:       ModeStrong,
		Order:      OrderRelaxed,
		Kind:       KindUint,
		ArmDelay:   100 * time.Millisecond,
		MatchProcs: true,
		Binder:     ThreadBinder{},
	}
}

// Validate rejects configurations that cannot produce a meaningful average.
func (c Config) Validate() error {
	if len(c.Threads) == 0 {
		return fmt.Errorf("%w: empty thread sweep", ErrInvalidConfig)
	}
	if c.Iterations == 0 {
		return fmt.Errorf("%w: iterations must be positive", ErrInvalidConfig)
	}
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if _, err := ParseOrder(string(c.Order)); err != nil {
		return err
	}
	if _, err := ParseKind(string(c.Kind)); err != nil {
		return err
	}
	if c.ArmDelay < 0 {
		return fmt.Errorf("%w: negative arm delay %v", ErrInvalidConfig, c.ArmDelay)
	}

	for _, n := range c.Threads {
		if n <= 0 {
			return fmt.Errorf("%w: thread count %d must be positive", ErrInvalidConfig, n)
		}
		if c.Iterations > math.MaxUint64/uint64(n) {
			return fmt.Errorf("%w: %d threads x %d iterations overflows the counter",
				ErrInvalidConfig, n, c.Iterations)
		}
		if c.Kind == KindFloat && uint64(n)*c.Iterations > maxExactFloat {
			return fmt.Errorf("%w: %d threads x %d iterations exceeds exact float range",
				ErrInvalidConfig, n, c.Iterations)
		}
	}

	return nil
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// ParseMode parses "weak" or "strong".
func ParseMode(s string) (CASMode, error) {
	switch m := CASMode(s); m {
	case ModeStrong, ModeWeak:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown CAS mode %q (want weak|strong)", ErrInvalidConfig, s)
}

// ParseOrder parses "relaxed", "acq_rel" or "seq_cst".
func ParseOrder(s string) (MemoryOrder, error) {
	switch o := MemoryOrder(s); o {
	case OrderRelaxed, OrderAcqRel, OrderSeqCst:
		return o, nil
	}
	return "", fmt.Errorf("%w: unknown memory order %q (want relaxed|acq_rel|seq_cst)", ErrInvalidConfig, s)
}

// ParseKind parses "uint" or "float".
func ParseKind(s string) (CounterKind, error) {
	switch k := CounterKind(s); k {
	case KindUint, KindFloat:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown counter kind %q (want uint|float)", ErrInvalidConfig, s)
}

// String returns the mode name.
func (m CASMode) String() string { return string(m) }

// String returns the order name.
func (o MemoryOrder) String() string { return string(o) }

// String returns the counter kind name.
func (k CounterKind) String() string { return string(k) }
