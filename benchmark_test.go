package casbench

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// testConfig returns a fast, quiet config for the given sweep.
func testConfig(threads ...int) Config {
	cfg := DefaultConfig()
	cfg.Threads = threads
	cfg.ArmDelay = 10 * time.Millisecond
	cfg.Logger = slog.New(slog.DiscardHandler)
	return cfg
}

// panicOn returns a binder that panics for one core and pins nothing.
func panicOn(core int) Binder {
	return BinderFunc(func(c int) error {
		if c == core {
			panic("binder exploded")
		}
		return nil
	})
}

// TestRun_SingleThread verifies the uncontended baseline: every CAS wins.
func TestRun_SingleThread(t *testing.T) {
	results, err := Run(context.Background(), testConfig(1))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}

	r := results[0]
	if r.FinalValue != 100000 {
		t.Errorf("Expected counter 100000, got %d", r.FinalValue)
	}
	if r.TotalAttempts != 100000 {
		t.Errorf("Expected 100000 attempts, got %d", r.TotalAttempts)
	}
	if r.AvgAttempts != 1.0 {
		t.Errorf("Expected average 1.0, got %v", r.AvgAttempts)
	}
	if r.Elapsed <= 0 {
		t.Errorf("Expected positive elapsed time, got %v", r.Elapsed)
	}
}

// TestRun_FourThreads verifies no lost updates under contention.
func TestRun_FourThreads(t *testing.T) {
	results, err := Run(context.Background(), testConfig(4))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	r := results[0]
	if r.FinalValue != 400000 {
		t.Errorf("Expected counter 400000, got %d", r.FinalValue)
	}
	if r.AvgAttempts < 1.0 {
		t.Errorf("Expected average ≥ 1.0, got %v", r.AvgAttempts)
	}

	t.Logf("threads=4: %.4f attempts/op, %d failures, %v", r.AvgAttempts, r.Failures(), r.Elapsed)

	if cpus := AllowedCPUs(); cpus < 2 {
		t.Skipf("contention needs parallel workers, only %d CPU allowed", cpus)
	}
	if r.AvgAttempts <= 1.0 {
		t.Errorf("Expected contention (average > 1.0) with 4 parallel workers, got %v", r.AvgAttempts)
	}
}

// TestRun_ElapsedExcludesArmDelay verifies the clock starts at flag release,
// after the arm delay.
func TestRun_ElapsedExcludesArmDelay(t *testing.T) {
	cfg := testConfig(1, 4)
	cfg.Iterations = 1000
	cfg.ArmDelay = 300 * time.Millisecond

	results, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, r := range results {
		if r.Elapsed >= cfg.ArmDelay {
			t.Errorf("threads=%d: elapsed %v includes the %v arm delay", r.Threads, r.Elapsed, cfg.ArmDelay)
		}
		t.Logf("threads=%d: elapsed %v", r.Threads, r.Elapsed)
	}
}

// TestRun_Sweep verifies the invariants across an ordered sweep.
func TestRun_Sweep(t *testing.T) {
	cfg := testConfig(1, 2, 4, 8)
	cfg.Iterations = 20000

	results, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("Expected 4 results, got %d", len(results))
	}
	for i, n := range cfg.Threads {
		if results[i].Threads != n {
			t.Errorf("Result %d: expected threads=%d, got %d", i, n, results[i].Threads)
		}
	}

	AssertNoLostUpdates(t, results)
	AssertAttemptBounds(t, results)
	PrintAnalysis(t, results)
}

// TestRun_WeakFloat verifies the non-default kernel options end to end.
func TestRun_WeakFloat(t *testing.T) {
	cfg := testConfig(1, 3)
	cfg.Iterations = 10000
	cfg.Mode = ModeWeak
	cfg.Order = OrderSeqCst
	cfg.Kind = KindFloat

	results, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	AssertNoLostUpdates(t, results)
	AssertAttemptBounds(t, results)
	for _, r := range results {
		if r.Mode != ModeWeak || r.Order != OrderSeqCst || r.Kind != KindFloat {
			t.Errorf("threads=%d: options not recorded: %s/%s/%s", r.Threads, r.Mode, r.Order, r.Kind)
		}
	}
}

// TestRun_BindFailureIsNonFatal verifies affinity errors are logged with the
// core index and the measurement still completes correctly.
func TestRun_BindFailureIsNonFatal(t *testing.T) {
	var logs bytes.Buffer
	cfg := testConfig(2)
	cfg.Iterations = 10000
	cfg.Logger = slog.New(slog.NewTextHandler(&logs, nil))
	cfg.Binder = BinderFunc(func(core int) error {
		return errors.New("operation not permitted")
	})

	results, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	AssertNoLostUpdates(t, results)

	out := logs.String()
	if strings.Count(out, "failed to bind worker") != 2 {
		t.Errorf("Expected 2 bind warnings, got:\n%s", out)
	}
	for _, want := range []string{"core=0", "core=1", "operation not permitted"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in logs:\n%s", want, out)
		}
	}
}

// TestRun_Oversubscribed verifies more workers than CPUs degrades pinning,
// not correctness.
func TestRun_Oversubscribed(t *testing.T) {
	cfg := testConfig(AllowedCPUs() + 1)
	cfg.Iterations = 1000

	results, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	AssertNoLostUpdates(t, results)
	AssertAttemptBounds(t, results)
}

// TestRun_WorkerPanicFailsConfiguration verifies a missing worker fails the
// configuration with enough context to rerun it.
func TestRun_WorkerPanicFailsConfiguration(t *testing.T) {
	cfg := testConfig(2)
	cfg.Iterations = 1000
	cfg.Binder = panicOn(1)

	results, err := Run(context.Background(), cfg)
	if err == nil {
		t.Fatal("Expected error from panicking worker")
	}
	if len(results) != 0 {
		t.Errorf("Expected no results, got %d", len(results))
	}
	if !errors.Is(err, ErrWorkerPanic) {
		t.Errorf("Expected ErrWorkerPanic, got %v", err)
	}

	var le *LevelError
	if !errors.As(err, &le) {
		t.Fatalf("Expected *LevelError, got %T", err)
	}
	if le.Threads != 2 || le.Iterations != 1000 || le.Mode != ModeStrong {
		t.Errorf("LevelError missing context: %+v", le)
	}
	t.Logf("error: %v", err)
}

// TestRun_StopsAtFirstError verifies the default sweep aborts on failure.
func TestRun_StopsAtFirstError(t *testing.T) {
	cfg := testConfig(2, 1)
	cfg.Iterations = 1000
	cfg.Binder = panicOn(1)

	results, err := Run(context.Background(), cfg)
	if err == nil {
		t.Fatal("Expected error")
	}
	if len(results) != 0 {
		t.Errorf("Expected sweep to stop, got %d results", len(results))
	}
}

// TestRun_ContinueOnError verifies later configurations still run.
func TestRun_ContinueOnError(t *testing.T) {
	cfg := testConfig(2, 1, 3)
	cfg.Iterations = 1000
	cfg.Binder = panicOn(1)
	cfg.ContinueOnError = true

	results, err := Run(context.Background(), cfg)
	if err == nil {
		t.Fatal("Expected joined error")
	}
	if len(results) != 1 || results[0].Threads != 1 {
		t.Fatalf("Expected only threads=1 to succeed, got %+v", results)
	}

	var le *LevelError
	if !errors.As(err, &le) || le.Threads != 2 {
		t.Errorf("Expected first failure at threads=2, got %v", err)
	}
	if !strings.Contains(err.Error(), "threads=3") {
		t.Errorf("Expected threads=3 failure in %v", err)
	}
}

// TestRun_OnResult verifies results are delivered as they are produced.
func TestRun_OnResult(t *testing.T) {
	cfg := testConfig(1, 2)
	cfg.Iterations = 1000

	var seen []int
	cfg.OnResult = func(r Result) { seen = append(seen, r.Threads) }

	if _, err := Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("Expected callbacks [1 2], got %v", seen)
	}
}

// TestRun_CanceledBeforeSweep verifies ctx is honoured between configurations.
func TestRun_CanceledBeforeSweep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := Run(ctx, testConfig(1, 2))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected no results, got %d", len(results))
	}
}

// TestRun_RejectsInvalidConfig verifies degenerate input never reaches setup.
func TestRun_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no threads", func(c *Config) { c.Threads = nil }},
		{"zero threads", func(c *Config) { c.Threads = []int{1, 0} }},
		{"negative threads", func(c *Config) { c.Threads = []int{-4} }},
		{"zero iterations", func(c *Config) { c.Iterations = 0 }},
		{"bad mode", func(c *Config) { c.Mode = "sloppy" }},
		{"bad order", func(c *Config) { c.Order = "consume" }},
		{"bad kind", func(c *Config) { c.Kind = "int128" }},
		{"negative delay", func(c *Config) { c.ArmDelay = -time.Second }},
		{"overflow", func(c *Config) { c.Threads = []int{4}; c.Iterations = 1 << 63 }},
		{"float precision", func(c *Config) { c.Kind = KindFloat; c.Threads = []int{2}; c.Iterations = 1 << 53 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(1)
			tt.mutate(&cfg)

			results, err := Run(context.Background(), cfg)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
			if results != nil {
				t.Errorf("Expected nil results, got %v", results)
			}
		})
	}
}

// TestResult_Derived verifies the derived metrics.
func TestResult_Derived(t *testing.T) {
	r := Result{
		Threads:       4,
		Iterations:    1000,
		Elapsed:       2 * time.Second,
		TotalAttempts: 5000,
	}

	if r.Operations() != 4000 {
		t.Errorf("Operations: expected 4000, got %d", r.Operations())
	}
	if r.Failures() != 1000 {
		t.Errorf("Failures: expected 1000, got %d", r.Failures())
	}
	if r.Throughput() != 2000 {
		t.Errorf("Throughput: expected 2000, got %v", r.Throughput())
	}
	if (Result{Threads: 1, Iterations: 1}).Throughput() != 0 {
		t.Error("Throughput with zero elapsed should be 0")
	}
}
