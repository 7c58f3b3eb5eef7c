// Package casbench measures how contention on a single shared counter,
// updated with compare-and-swap, scales with the number of contending
// threads.
//
// # Overview
//
// For every thread count in the sweep, N workers are locked to OS threads,
// pinned one per core, released together from a spin-wait start line, and
// each performs a fixed number of successful CAS increments. The cost of
// contention is the average number of attempts per successful increment:
//
//	avg = Σ attempts / (N × iterations)
//
// avg == 1 means no CAS ever failed. Anything above 1 is retries caused by
// other workers winning the race for the cache line.
//
// CRITICAL: every worker needs its own P to actually contend.
// Config.MatchProcs raises GOMAXPROCS above N for the configuration. Without
// it, N > GOMAXPROCS measures Go scheduler time slicing instead of the
// hardware.
//
// # Quick Start
//
//	cfg := casbench.DefaultConfig()
//	cfg.Threads = []int{1, 2, 4, 8}
//
//	results, err := casbench.Run(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, r := range results {
//	    fmt.Printf("N=%d  %.4fs  %.3f attempts/op\n",
//	        r.Threads, r.Elapsed.Seconds(), r.AvgAttempts)
//	}
//
// # Phases
//
// Each configuration goes through setup, spawn, arm, run, join and report.
// The start flag is an atomic.Bool the workers spin on; the driver sleeps
// Config.ArmDelay so that every worker reaches the spin before the flag is
// released and the clock starts. Elapsed time covers only the contended
// region, from the release to the last join.
//
// # Failures
//
// Pinning failures are logged and the worker runs unpinned: the count stays
// correct, only the timing gets noisier. A worker that panics, or a counter
// that does not end at N × iterations, fails that configuration with a
// *LevelError.
//
// # Analysis
//
// ScalingExponent fits the log-log slope of time or attempts against N, and
// FitUSL fits the Universal Scalability Law to throughput:
//
//	C(N) = λN / (1 + α(N-1) + βN(N-1))
//
// where α is serialisation on the counter and β is coherency traffic.
//
// # Testing
//
//	results, _ := casbench.Run(ctx, cfg)
//	casbench.AssertNoLostUpdates(t, results)
//	casbench.AssertAttemptBounds(t, results)
//	casbench.AssertContentionTrend(t, results, 0.1)
package casbench
