package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	attachpool "github.com/Swind/go-attach-pool"
	"github.com/Swind/go-attach-pool/core"
	"github.com/Swind/go-attach-pool/host"
	"github.com/Swind/go-attach-pool/observability/prometheus"
	"github.com/Swind/go-attach-pool/observability/zaplog"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

type runConfig struct {
	threads     int
	tasks       int
	pin         bool
	metricsAddr string
	logLevel    string
	timeout     time.Duration
}

func newRunCommand() *cobra.Command {
	cfg := &runConfig{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Bootstrap a pool and run a fan-out workload on it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd, cfg)
		},
	}
	f := cmd.Flags()
	f.IntVar(&cfg.threads, "threads", runtime.NumCPU(), "number of worker contexts to spawn")
	f.IntVar(&cfg.tasks, "tasks", 1000, "number of tasks to run")
	f.BoolVar(&cfg.pin, "pin", false, "pin each worker context to a CPU")
	f.StringVar(&cfg.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	f.StringVar(&cfg.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	f.DurationVar(&cfg.timeout, "timeout", 10*time.Second, "how long to wait for workers to attach")
	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, cfg *runConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.tasks < 0 {
		return fmt.Errorf("--tasks must not be negative, got %d", cfg.tasks)
	}

	logger, err := zaplog.NewProduction(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	reg := prom.NewRegistry()
	exporter, err := prometheus.NewMetricsExporter("attachpool", reg, prometheus.ExporterOptions{})
	if err != nil {
		return err
	}
	poller, err := prometheus.NewSnapshotPoller(reg, time.Second)
	if err != nil {
		return err
	}

	if cfg.metricsAddr != "" {
		srv := &http.Server{Addr: cfg.metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", core.F("addr", cfg.metricsAddr), core.F("error", err))
			}
		}()
		defer srv.Close()
	}

	h := host.New(host.WithPinning(cfg.pin), host.WithLogger(logger))
	hostCtx, stopEvents := context.WithCancel(ctx)
	defer stopEvents()
	go logEvents(hostCtx, h, logger)

	attachCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()
	start := time.Now()
	pool, err := attachpool.Bootstrap(attachCtx, cfg.threads, h,
		attachpool.WithLogger(logger),
		attachpool.WithMetrics(exporter),
	)
	if err != nil {
		return err
	}
	bootTime := time.Since(start)

	poller.AddPool(pool.ID(), pool)
	poller.Start(ctx)
	defer poller.Stop()

	start = time.Now()
	sum, err := fanOut(pool, cfg.tasks)
	if err != nil {
		pool.Stop()
		return err
	}
	elapsed := time.Since(start)
	stats := pool.Stats()

	if err := pool.StopGraceful(5 * time.Second); err != nil {
		logger.Warn("graceful stop timed out", core.F("error", err))
	}
	if err := h.Wait(); err != nil {
		return fmt.Errorf("worker contexts: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "pool %s: %d workers attached in %v\n", pool.ID(), cfg.threads, bootTime)
	fmt.Fprintf(out, "ran %d tasks in %v (checksum %d, stolen %d)\n", cfg.tasks, elapsed, sum, stats.Stolen)
	return nil
}

// fanOut posts one root task that spawns every leaf onto its worker's deque,
// so the other workers only get work by stealing.
func fanOut(pool interface {
	PostTask(core.Task) error
	Spawn(context.Context, core.Task) error
}, n int) (int64, error) {
	var sum atomic.Int64
	var wg sync.WaitGroup
	wg.Add(n)

	errc := make(chan error, 1)
	err := pool.PostTask(func(ctx context.Context) {
		for i := 1; i <= n; i++ {
			v := int64(i)
			if err := pool.Spawn(ctx, func(context.Context) {
				defer wg.Done()
				sum.Add(v * v)
			}); err != nil {
				errc <- err
				return
			}
		}
	})
	if err != nil {
		return 0, err
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return sum.Load(), nil
	case err := <-errc:
		return 0, err
	}
}

func logEvents(ctx context.Context, h *host.GoroutineHost, logger core.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.Events():
			fields := []core.Field{
				core.F("pool", ev.PoolID), core.F("context", ev.Context), core.F("cpu", ev.CPU),
			}
			if ev.Err != nil {
				logger.Error("worker context "+string(ev.Kind), append(fields, core.F("error", ev.Err))...)
				continue
			}
			logger.Debug("worker context "+string(ev.Kind), fields...)
		}
	}
}
