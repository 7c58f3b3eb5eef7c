package casbench

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/cpu"
)

var (
	// ErrLostUpdate means the counter or the attempt totals disagree with
	// threads × iterations after every worker joined.
	ErrLostUpdate = errors.New("lost update")

	// ErrWorkerPanic wraps a panic recovered from a worker.
	ErrWorkerPanic = errors.New("worker panicked")
)

// Result is the measurement of one thread-count configuration.
type Result struct {
	Threads       int           // Number of contending workers
	Iterations    uint64        // Successful increments per worker
	Elapsed       time.Duration // Start flag release to last join
	TotalAttempts uint64        // Sum of per-worker CAS attempts
	FinalValue    uint64        // Counter value after join
	AvgAttempts   float64       // Attempts per successful increment
	Mode          CASMode
	Order         MemoryOrder
	Kind          CounterKind
}

// Operations is the number of successful increments, threads × iterations.
func (r Result) Operations() uint64 {
	return uint64(r.Threads) * r.Iterations
}

// Failures is the number of CAS attempts that lost the race.
func (r Result) Failures() uint64 {
	if ops := r.Operations(); r.TotalAttempts > ops {
		return r.TotalAttempts - ops
	}
	return 0
}

// Throughput is successful increments per second.
func (r Result) Throughput() float64 {
	s := r.Elapsed.Seconds()
	if s == 0 {
		return 0
	}
	return float64(r.Operations()) / s
}

// LevelError is a failed configuration, carrying what is needed to rerun it.
type LevelError struct {
	Threads    int
	Iterations uint64
	Mode       CASMode
	Order      MemoryOrder
	Err        error
}

// Error reports the failed configuration and its cause.
func (e *LevelError) Error() string {
	return fmt.Sprintf("failed at threads=%d iterations=%d mode=%s order=%s: %v",
		e.Threads, e.Iterations, e.Mode, e.Order, e.Err)
}

// Unwrap returns the underlying cause.
func (e *LevelError) Unwrap() error { return e.Err }

// slot holds one worker's attempt count. Only that worker writes it, and the
// driver reads it after join.
type slot struct {
	attempts uint64
	_        cpu.CacheLinePad
}

// Run executes the sweep and returns one Result per successful
// configuration.
//
// ctx is checked between configurations only; a configuration that has
// started always runs to completion. Failed configurations are returned as
// *LevelError, joined together when cfg.ContinueOnError is set.
func Run(ctx context.Context, cfg Config) ([]Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := cfg.logger()
	results := make([]Result, 0, len(cfg.Threads))
	var errs []error

	for _, n := range cfg.Threads {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("sweep stopped before threads=%d: %w", n, err))
			break
		}

		result, err := runAtLevel(n, cfg)
		if err != nil {
			log.Error("configuration failed", "threads", n, "err", err)
			errs = append(errs, err)
			if !cfg.ContinueOnError {
				break
			}
			continue
		}

		results = append(results, result)
		if cfg.OnResult != nil {
			cfg.OnResult(result)
		}
	}

	return results, errors.Join(errs...)
}

// runAtLevel measures a single configuration with n workers.
func runAtLevel(n int, cfg Config) (Result, error) {
	log := cfg.logger().With("threads", n)
	fail := func(err error) (Result, error) {
		return Result{}, &LevelError{
			Threads:    n,
			Iterations: cfg.Iterations,
			Mode:       cfg.Mode,
			Order:      cfg.Order,
			Err:        err,
		}
	}

	// One P per spinning worker plus one for the driver.
	if procs := n + 1; cfg.MatchProcs && runtime.GOMAXPROCS(0) < procs {
		prev := runtime.GOMAXPROCS(procs)
		defer runtime.GOMAXPROCS(prev)
	}
	if cpus := AllowedCPUs(); cfg.Binder != nil && n > cpus {
		log.Info("more workers than CPUs, pinning is best-effort", "cpus", cpus)
	}

	// Setup
	var (
		counter Counter
		start   atomic.Bool
		g       errgroup.Group
		slots   = make([]slot, n)
		opts    = KernelOptions{Mode: cfg.Mode, Order: cfg.Order, Kind: cfg.Kind}
	)

	// Spawn
	for i := 0; i < n; i++ {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("worker %d: %w: %v", i, ErrWorkerPanic, r)
				}
			}()

			// Never unlocked: the thread exits with the goroutine, so its
			// affinity mask does not leak back into the scheduler.
			runtime.LockOSThread()
			if cfg.Binder != nil {
				if err := cfg.Binder.Bind(i); err != nil {
					log.Warn("failed to bind worker, running unpinned", "core", i, "err", err)
				}
			}

			for !start.Load() {
			}

			slots[i].attempts = Kernel(cfg.Iterations, &counter, opts)
			return nil
		})
	}
	log.Debug("workers spawned")

	// Arm
	time.Sleep(cfg.ArmDelay)

	// Run
	begin := time.Now()
	start.Store(true)

	// Join
	err := g.Wait()
	elapsed := time.Since(begin)
	if err != nil {
		return fail(err)
	}

	// Report
	var total uint64
	for i := range slots {
		total += slots[i].attempts
	}
	ops := uint64(n) * cfg.Iterations
	final := counter.Value(cfg.Kind)
	if final != ops || total < ops {
		return fail(fmt.Errorf("%w: counter=%d attempts=%d want %d", ErrLostUpdate, final, total, ops))
	}

	result := Result{
		Threads:       n,
		Iterations:    cfg.Iterations,
		Elapsed:       elapsed,
		TotalAttempts: total,
		FinalValue:    final,
		AvgAttempts:   float64(total) / float64(ops),
		Mode:          cfg.Mode,
		Order:         cfg.Order,
		Kind:          cfg.Kind,
	}
	log.Info("configuration complete",
		"elapsed", elapsed,
		"avg_attempts", result.AvgAttempts,
		"failures", result.Failures())

	return result, nil
}
