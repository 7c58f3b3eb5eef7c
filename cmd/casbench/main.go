// Command casbench sweeps thread counts over a CAS-incremented shared counter
// and prints, per configuration, the elapsed time and the average number of
// CAS attempts per successful increment.
//
// Usage:
//
//	casbench                                   # baseline sweep
//	casbench -threads 1,2,4 -iterations 1000000
//	casbench -f sweep.yaml -format csv > run.csv
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/google/gops/agent"
	"github.com/lmittmann/tint"

	"github.com/alexshd/casbench"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	def := casbench.DefaultConfig()

	fs := flag.NewFlagSet("casbench", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		file       = fs.String("f", "", "sweep config file (yaml|json|toml)")
		threads    = fs.String("threads", joinThreads(def.Threads), "comma separated thread counts")
		iterations = fs.Uint64("iterations", def.Iterations, "successful increments per thread")
		mode       = fs.String("mode", def.Mode.String(), "CAS mode: weak|strong")
		order      = fs.String("order", def.Order.String(), "memory order: relaxed|acq_rel|seq_cst")
		kind       = fs.String("kind", def.Kind.String(), "counter type: uint|float")
		armDelay   = fs.Duration("arm-delay", def.ArmDelay, "wait before releasing workers")
		format     = fs.String("format", string(casbench.FormatText), "output: text|csv|json")
		cont       = fs.Bool("continue", false, "keep sweeping after a failed configuration")
		noPin      = fs.Bool("no-pin", false, "do not pin workers to cores")
		analyze    = fs.Bool("analyze", false, "log scaling fits after the sweep")
		gopsAddr   = fs.String("gops", "", "start a gops agent on this address")
		verbose    = fs.Bool("v", false, "debug logging")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
	}))

	if *gopsAddr != "" {
		if err := agent.Listen(agent.Options{Addr: *gopsAddr}); err != nil {
			logger.Error("gops agent failed to start", "addr", *gopsAddr, "err", err)
			return 1
		}
		defer agent.Close()
		logger.Info("gops agent listening", "addr", *gopsAddr)
	}

	cfg, outFormat, err := buildConfig(fs, *file, flagValues{
		threads:    *threads,
		iterations: *iterations,
		mode:       *mode,
		order:      *order,
		kind:       *kind,
		armDelay:   *armDelay,
		format:     *format,
		cont:       *cont,
		noPin:      *noPin,
	})
	if err != nil {
		logger.Error("bad configuration", "err", err)
		return 2
	}
	cfg.Logger = logger

	reporter := casbench.NewReporter(stdout, outFormat)
	cfg.OnResult = func(r casbench.Result) {
		if err := reporter.Write(r); err != nil {
			logger.Error("write result", "threads", r.Threads, "err", err)
		}
	}

	logger.Info("starting sweep",
		"threads", cfg.Threads,
		"iterations", cfg.Iterations,
		"mode", cfg.Mode,
		"order", cfg.Order,
		"kind", cfg.Kind,
		"cpus", casbench.AllowedCPUs(),
		"gomaxprocs", runtime.GOMAXPROCS(0))

	results, err := casbench.Run(ctx, cfg)

	if *analyze {
		logAnalysis(logger, results)
	}

	if err != nil {
		logger.Error("sweep finished with errors", "completed", len(results), "err", err)
		return 1
	}
	return 0
}

// flagValues carries parsed flag values into buildConfig.
type flagValues struct {
	threads    string
	iterations uint64
	mode       string
	order      string
	kind       string
	armDelay   time.Duration
	format     string
	cont       bool
	noPin      bool
}

// buildConfig starts from the file (or the defaults) and applies every flag
// that was set explicitly on the command line.
func buildConfig(fs *flag.FlagSet, file string, v flagValues) (casbench.Config, casbench.Format, error) {
	cfg := casbench.DefaultConfig()
	format := casbench.FormatText
	if file != "" {
		var err error
		if cfg, format, err = loadFile(file); err != nil {
			return cfg, format, err
		}
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var err error
	if set["threads"] {
		if cfg.Threads, err = parseThreads(v.threads); err != nil {
			return cfg, format, err
		}
	}
	if set["iterations"] {
		cfg.Iterations = v.iterations
	}
	if set["mode"] {
		if cfg.Mode, err = casbench.ParseMode(v.mode); err != nil {
			return cfg, format, err
		}
	}
	if set["order"] {
		if cfg.Order, err = casbench.ParseOrder(v.order); err != nil {
			return cfg, format, err
		}
	}
	if set["kind"] {
		if cfg.Kind, err = casbench.ParseKind(v.kind); err != nil {
			return cfg, format, err
		}
	}
	if set["arm-delay"] {
		cfg.ArmDelay = v.armDelay
	}
	if set["format"] {
		if format, err = casbench.ParseFormat(v.format); err != nil {
			return cfg, format, err
		}
	}
	if set["continue"] {
		cfg.ContinueOnError = v.cont
	}
	if v.noPin {
		cfg.Binder = nil
	}

	return cfg, format, cfg.Validate()
}

func logAnalysis(logger *slog.Logger, results []casbench.Result) {
	for _, m := range []casbench.Metric{casbench.MetricAttempts, casbench.MetricTime} {
		k, err := casbench.ScalingExponent(results, m)
		if err != nil {
			logger.Warn("scaling fit skipped", "metric", m, "err", err)
			continue
		}
		logger.Info("scaling exponent", "metric", m, "k", fmt.Sprintf("%.3f", k))
	}

	usl, err := casbench.FitUSL(results)
	if err != nil {
		logger.Warn("USL fit skipped", "err", err)
		return
	}
	logger.Info("USL fit",
		"lambda", fmt.Sprintf("%.0f", usl.Lambda),
		"alpha", fmt.Sprintf("%.6f", usl.Alpha),
		"beta", fmt.Sprintf("%.6f", usl.Beta),
		"r2", fmt.Sprintf("%.4f", usl.RSquared),
		"peak_threads", fmt.Sprintf("%.1f", usl.PeakThreads()))
}
