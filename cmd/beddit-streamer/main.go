// Command beddit-streamer reads a Beddit sensor and records averaged readings.
//
// Usage:
//
//	beddit-streamer -config /etc/beddit/beddit.toml
//
// Settings come from the config file (TOML or YAML) and BEDDIT_* environment
// variables. SIGINT or SIGTERM stops the stream gracefully.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/arloliu/go-beddit/beddit"
	"github.com/arloliu/go-beddit/config"
	"github.com/arloliu/go-beddit/logger"
	"github.com/arloliu/go-beddit/metric"
	"github.com/arloliu/go-beddit/supervisor"
)

func main() {
	configPath := flag.String("config", "", "path to a .toml or .yaml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logger.NewSlog(cfg.Level(), false)
	logger.SetLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("beddit-streamer: exit with error", "error", err)
		os.Exit(1)
	}

	log.Info("beddit-streamer: shutdown finished")
}

// run streams until ctx is cancelled. It returns an error only when the
// daemon cannot start or the metrics server fails.
func run(ctx context.Context, cfg config.Config, log logger.Logger) error {
	dialer, err := cfg.Dialer()
	if err != nil {
		return err
	}

	sinks, err := buildSinks(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			log.Warn("beddit-streamer: close sinks", "error", err)
		}
	}()

	sup, err := supervisor.New(dialer, cfg.Address, sinks, cfg.SupervisorOptions(log)...)
	if err != nil {
		return err
	}

	log.Info("beddit-streamer: starting",
		"address", cfg.Address,
		"transport", cfg.Transport,
		"sinks", sinks.Names(),
		"metricsAddr", cfg.MetricsAddr,
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sup.Run(gCtx)
	})

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		if err := metric.Register(reg, sup.Metrics(), sup.SessionMetrics()); err != nil {
			return err
		}

		healthy := func() bool { return sup.State() == beddit.StreamingState }

		g.Go(func() error {
			return metric.Serve(gCtx, cfg.MetricsAddr, metric.Handler(reg, healthy))
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}
