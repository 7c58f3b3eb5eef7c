package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/conf"

	"github.com/alexshd/casbench"
)

// fileConfig is the on-disk sweep description (YAML, JSON or TOML).
type fileConfig struct {
	Threads         []int         `json:",optional"`
	Iterations      uint64        `json:",default=100000"`
	Mode            string        `json:",default=strong,options=weak|strong"`
	Order           string        `json:",default=relaxed,options=relaxed|acq_rel|seq_cst"`
	Kind            string        `json:",default=uint,options=uint|float"`
	ArmDelay        time.Duration `json:",default=100ms"`
	Pin             bool          `json:",default=true"`
	MatchProcs      bool          `json:",default=true"`
	ContinueOnError bool          `json:",optional"`
	Format          string        `json:",default=text,options=text|csv|json"`
}

// loadFile reads path into a benchmark config and output format.
func loadFile(path string) (casbench.Config, casbench.Format, error) {
	var fc fileConfig
	if err := conf.Load(path, &fc); err != nil {
		return casbench.Config{}, "", fmt.Errorf("load %s: %w", path, err)
	}

	cfg := casbench.DefaultConfig()
	if len(fc.Threads) > 0 {
		cfg.Threads = fc.Threads
	}
	cfg.Iterations = fc.Iterations
	cfg.Mode = casbench.CASMode(fc.Mode)
	cfg.Order = casbench.MemoryOrder(fc.Order)
	cfg.Kind = casbench.CounterKind(fc.Kind)
	cfg.ArmDelay = fc.ArmDelay
	cfg.MatchProcs = fc.MatchProcs
	cfg.ContinueOnError = fc.ContinueOnError
	if !fc.Pin {
		cfg.Binder = nil
	}

	format, err := casbench.ParseFormat(fc.Format)
	if err != nil {
		return casbench.Config{}, "", err
	}
	return cfg, format, nil
}

// parseThreads parses a comma separated list such as "1,2,4,8".
func parseThreads(s string) ([]int, error) {
	var out []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("thread count %q: %w", field, err)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty thread list %q", casbench.ErrInvalidConfig, s)
	}
	return out, nil
}

func joinThreads(threads []int) string {
	parts := make([]string, len(threads))
	for i, n := range threads {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
