package casbench

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/bytedance/sonic"
)

// Format is an output encoding for results.
type Format string

const (
	FormatText Format = "text"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat parses "text", "csv" or "json".
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatText, FormatCSV, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("%w: unknown format %q (want text|csv|json)", ErrInvalidConfig, s)
}

var csvHeader = []string{
	"threads", "iterations", "time_s", "avg_attempts",
	"total_attempts", "failures", "throughput", "mode", "order", "kind",
}

// record is the JSON shape of a Result.
type record struct {
	Threads       int     `json:"threads"`
	Iterations    uint64  `json:"iterations"`
	TimeSeconds   float64 `json:"time_s"`
	AvgAttempts   float64 `json:"avg_attempts"`
	TotalAttempts uint64  `json:"total_attempts"`
	Failures      uint64  `json:"failures"`
	Throughput    float64 `json:"throughput"`
	Mode          string  `json:"mode"`
	Order         string  `json:"order"`
	Kind          string  `json:"kind"`
}

// Reporter writes one line per Result as results arrive.
type Reporter struct {
	w      io.Writer
	format Format
	csv    *csv.Writer
	header bool
}

// NewReporter returns a Reporter writing format to w.
func NewReporter(w io.Writer, format Format) *Reporter {
	r := &Reporter{w: w, format: format}
	if format == FormatCSV {
		r.csv = csv.NewWriter(w)
	}
	return r
}

// Write emits a single result. Each call is flushed so partial sweeps are
// still readable.
func (r *Reporter) Write(res Result) error {
	switch r.format {
	case FormatCSV:
		return r.writeCSV(res)
	case FormatJSON:
		return r.writeJSON(res)
	default:
		_, err := fmt.Fprintf(r.w, "Threads: %d, Time: %g s, Avg attempts per op: %g\n",
			res.Threads, res.Elapsed.Seconds(), res.AvgAttempts)
		return err
	}
}

func (r *Reporter) writeCSV(res Result) error {
	if !r.header {
		if err := r.csv.Write(csvHeader); err != nil {
			return err
		}
		r.header = true
	}

	row := []string{
		strconv.Itoa(res.Threads),
		strconv.FormatUint(res.Iterations, 10),
		strconv.FormatFloat(res.Elapsed.Seconds(), 'g', -1, 64),
		strconv.FormatFloat(res.AvgAttempts, 'g', -1, 64),
		strconv.FormatUint(res.TotalAttempts, 10),
		strconv.FormatUint(res.Failures(), 10),
		strconv.FormatFloat(res.Throughput(), 'g', -1, 64),
		res.Mode.String(),
		res.Order.String(),
		res.Kind.String(),
	}
	if err := r.csv.Write(row); err != nil {
		return err
	}
	r.csv.Flush()
	return r.csv.Error()
}

func (r *Reporter) writeJSON(res Result) error {
	b, err := sonic.Marshal(record{
		Threads:       res.Threads,
		Iterations:    res.Iterations,
		TimeSeconds:   res.Elapsed.Seconds(),
		AvgAttempts:   res.AvgAttempts,
		TotalAttempts: res.TotalAttempts,
		Failures:      res.Failures(),
		Throughput:    res.Throughput(),
		Mode:          res.Mode.String(),
		Order:         res.Order.String(),
		Kind:          res.Kind.String(),
	})
	if err != nil {
		return fmt.Errorf("encode result for threads=%d: %w", res.Threads, err)
	}
	_, err = r.w.Write(append(b, '\n'))
	return err
}
