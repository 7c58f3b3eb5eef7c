package casbench

import (
	"fmt"
	"math"
)

// Metric selects which measurement ScalingExponent fits.
type Metric int

const (
	MetricTime     Metric = iota // Elapsed seconds
	MetricAttempts               // Average attempts per increment
)

// String returns the metric name.
func (m Metric) String() string {
	switch m {
	case MetricTime:
		return "time"
	case MetricAttempts:
		return "attempts"
	default:
		return fmt.Sprintf("Metric(%d)", int(m))
	}
}

func (m Metric) of(r Result) float64 {
	if m == MetricAttempts {
		return r.AvgAttempts
	}
	return r.Elapsed.Seconds()
}

// ScalingExponent fits y ∝ N^k on a log-log scale and returns k.
//
// k ≈ 1 is the y ∝ x reference line, k ≈ 2 is y ∝ x². With a fixed number of
// increments per worker, elapsed time grows at least linearly because the
// counter serialises every success; anything steeper is coherency traffic.
func ScalingExponent(results []Result, m Metric) (float64, error) {
	var sumX, sumY, sumXX, sumXY, count float64
	for _, r := range results {
		y := m.of(r)
		if r.Threads <= 0 || y <= 0 {
			continue
		}
		x := math.Log(float64(r.Threads))
		ly := math.Log(y)
		sumX += x
		sumY += ly
		sumXX += x * x
		sumXY += x * ly
		count++
	}

	if count < 2 {
		return 0, fmt.Errorf("need at least 2 positive %s points, got %.0f", m, count)
	}

	det := count*sumXX - sumX*sumX
	if math.Abs(det) < 1e-12 {
		return 0, fmt.Errorf("all %s points share one thread count", m)
	}

	return (count*sumXY - sumX*sumY) / det, nil
}

// USLCoefficients are the Universal Scalability Law parameters fitted to
// increment throughput.
type USLCoefficients struct {
	Lambda   float64 // λ: increments/sec at N=1
	Alpha    float64 // α: contention (serialisation on the counter)
	Beta     float64 // β: coherency (cache line ping-pong)
	RSquared float64 // R²: goodness of fit
}

// FitUSL fits C(N) = λN / (1 + α(N-1) + βN(N-1)) to throughput.
//
// The model is linearised as
//
//	N/C(N) = 1/λ + (α/λ)(N-1) + (β/λ)N(N-1)
//
// and solved by least squares. A negative β with positive α is treated as
// noise and the fit is redone with β = 0.
func FitUSL(results []Result) (USLCoefficients, error) {
	if len(results) < 3 {
		return USLCoefficients{}, fmt.Errorf("need at least 3 data points, got %d", len(results))
	}

	// Normal equations for Y = b0 + b1*X1 + b2*X2.
	var s [3][3]float64
	var sy [3]float64
	for _, r := range results {
		c := r.Throughput()
		if c == 0 {
			continue
		}
		n := float64(r.Threads)
		x := [3]float64{1, n - 1, n * (n - 1)}
		y := n / c
		for i := range x {
			sy[i] += y * x[i]
			for j := range x {
				s[i][j] += x[i] * x[j]
			}
		}
	}

	b, ok := solve3(s, sy)
	if !ok {
		return USLCoefficients{}, fmt.Errorf("singular system: need at least 3 distinct thread counts")
	}

	lambda, alpha, beta := 1/b[0], b[1]/b[0], b[2]/b[0]

	if beta < 0 && alpha > 0 {
		// Contention-only model: Y = b0 + b1*X1.
		det := s[0][0]*s[1][1] - s[0][1]*s[0][1]
		if math.Abs(det) > 1e-10 {
			b0 := (s[1][1]*sy[0] - s[0][1]*sy[1]) / det
			b1 := (s[0][0]*sy[1] - s[0][1]*sy[0]) / det
			lambda, alpha, beta = 1/b0, b1/b0, 0
		}
	}

	coeffs := USLCoefficients{Lambda: lambda, Alpha: alpha, Beta: beta}
	coeffs.RSquared = rSquared(results, coeffs)
	return coeffs, nil
}

// solve3 solves a 3x3 linear system with Cramer's rule.
func solve3(a [3][3]float64, y [3]float64) ([3]float64, bool) {
	det := det3(a)
	if math.Abs(det) < 1e-10 {
		return [3]float64{}, false
	}

	var out [3]float64
	for col := 0; col < 3; col++ {
		m := a
		for row := 0; row < 3; row++ {
			m[row][col] = y[row]
		}
		out[col] = det3(m) / det
	}
	return out, true
}

func det3(m [3][3]float64) float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

func rSquared(results []Result, c USLCoefficients) float64 {
	var mean float64
	for _, r := range results {
		mean += r.Throughput()
	}
	mean /= float64(len(results))

	var ssRes, ssTot float64
	for _, r := range results {
		d := r.Throughput() - c.PredictThroughput(r.Threads)
		ssRes += d * d
		t := r.Throughput() - mean
		ssTot += t * t
	}
	if ssTot == 0 {
		return 1
	}
	return 1 - ssRes/ssTot
}

// PredictThroughput estimates increments/sec at n threads.
func (c USLCoefficients) PredictThroughput(n int) float64 {
	N := float64(n)
	return (c.Lambda * N) / (1 + c.Alpha*(N-1) + c.Beta*N*(N-1))
}

// Efficiency is predicted throughput over ideal linear throughput at n.
func (c USLCoefficients) Efficiency(n int) float64 {
	ideal := c.Lambda * float64(n)
	if ideal == 0 {
		return 0
	}
	return c.PredictThroughput(n) / ideal
}

// PeakThreads is the thread count where predicted throughput peaks,
// √((1-α)/β). It returns 0 when β is not positive (no retrograde region).
func (c USLCoefficients) PeakThreads() float64 {
	if c.Beta <= 0 || c.Alpha >= 1 {
		return 0
	}
	return math.Sqrt((1 - c.Alpha) / c.Beta)
}
