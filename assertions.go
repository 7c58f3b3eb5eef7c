package casbench

import (
	"fmt"
	"strings"
	"testing"
)

// AssertNoLostUpdates verifies the counter ended at threads × iterations for
// every configuration. This is the correctness property of the retry loop.
func AssertNoLostUpdates(t testing.TB, results []Result) {
	t.Helper()

	var failures []string
	for _, r := range results {
		if r.FinalValue != r.Operations() {
			failures = append(failures, fmt.Sprintf(
				"  threads=%d: counter=%d want %d (lost %d)",
				r.Threads, r.FinalValue, r.Operations(), int64(r.Operations())-int64(r.FinalValue)))
		}
	}

	if len(failures) > 0 {
		t.Errorf("Lost updates:\n%s", strings.Join(failures, "\n"))
		return
	}
	t.Logf("✓ No lost updates across %d configurations", len(results))
}

// AssertAttemptBounds verifies attempts ≥ threads × iterations, with exact
// equality for a single thread.
func AssertAttemptBounds(t testing.TB, results []Result) {
	t.Helper()

	var failures []string
	for _, r := range results {
		ops := r.Operations()
		switch {
		case r.TotalAttempts < ops:
			failures = append(failures, fmt.Sprintf(
				"  threads=%d: %d attempts for %d increments", r.Threads, r.TotalAttempts, ops))
		case r.Threads == 1 && r.TotalAttempts != ops:
			failures = append(failures, fmt.Sprintf(
				"  threads=1: %d attempts, want exactly %d", r.TotalAttempts, ops))
		case r.AvgAttempts < 1:
			failures = append(failures, fmt.Sprintf(
				"  threads=%d: average %.4f below 1", r.Threads, r.AvgAttempts))
		}
	}

	if len(failures) > 0 {
		t.Errorf("Attempt bounds violated:\n%s", strings.Join(failures, "\n"))
		return
	}
	t.Logf("✓ Attempts ≥ increments for all %d configurations", len(results))
}

// AssertContentionTrend checks that average attempts does not fall as the
// thread count rises. Scheduling noise makes this statistical, so drops
// within tolerance (relative, e.g. 0.1 = 10%) are only logged.
func AssertContentionTrend(t testing.TB, results []Result, tolerance float64) {
	t.Helper()

	var failures []string
	for i := 1; i < len(results); i++ {
		prev, curr := results[i-1], results[i]
		if curr.Threads <= prev.Threads || curr.AvgAttempts >= prev.AvgAttempts {
			continue
		}

		line := fmt.Sprintf("  threads=%d→%d: %.4f → %.4f",
			prev.Threads, curr.Threads, prev.AvgAttempts, curr.AvgAttempts)
		if curr.AvgAttempts < prev.AvgAttempts*(1-tolerance) {
			failures = append(failures, line)
		} else {
			t.Logf("⚠ Within noise:%s", strings.TrimPrefix(line, " "))
		}
	}

	if len(failures) > 0 {
		t.Errorf("Contention fell with more threads (tolerance %.0f%%):\n%s",
			tolerance*100, strings.Join(failures, "\n"))
		return
	}
	t.Logf("✓ Contention non-decreasing within %.0f%%", tolerance*100)
}

// PrintAnalysis logs the sweep and its scaling fits.
func PrintAnalysis(t testing.TB, results []Result) {
	t.Helper()

	t.Logf("\n=== CAS Contention ===")
	t.Logf("  N    Time(s)      Avg attempts  Failures")
	t.Logf("  --   -----------  ------------  ----------")
	for _, r := range results {
		t.Logf("  %-4d %11.6f  %12.4f  %10d", r.Threads, r.Elapsed.Seconds(), r.AvgAttempts, r.Failures())
	}

	if k, err := ScalingExponent(results, MetricAttempts); err == nil {
		t.Logf("Attempts ∝ N^%.2f", k)
	}
	if k, err := ScalingExponent(results, MetricTime); err == nil {
		t.Logf("Time ∝ N^%.2f", k)
	}
	if usl, err := FitUSL(results); err == nil {
		t.Logf("USL: λ=%.0f ops/sec, α=%.6f, β=%.6f, R²=%.4f",
			usl.Lambda, usl.Alpha, usl.Beta, usl.RSquared)
	}
}
