package main

import (
	"context"
	"fmt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/timanema/fail2ban-exporter/internal/aggregator"
	"github.com/timanema/fail2ban-exporter/internal/config"
	"github.com/timanema/fail2ban-exporter/internal/logger"
	"github.com/timanema/fail2ban-exporter/internal/metrics"
	"github.com/timanema/fail2ban-exporter/internal/server"
	"github.com/timanema/fail2ban-exporter/internal/tracing"
	"github.com/timanema/fail2ban-exporter/pkg/blocker"
	"github.com/timanema/fail2ban-exporter/pkg/storage"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:          "fail2ban-exporter",
		Short:        "Prometheus exporter for fail2ban ban and unban events",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cfgPath)
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", os.Getenv("CONFIG_PATH"), "path to an optional YAML config file")

	root.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Parse the log once and print the metrics to stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return dump(cmd.Context(), cfgPath)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)

	closeTracing, err := tracing.Init(context.Background(), tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRatio:  cfg.Tracing.SampleRatio,
	})
	if err != nil {
		log.Error().Err(err).Msg("tracing init failed, continuing without it")
		closeTracing = func(context.Context) error { return nil }
	}

	agg, err := build(cfg, log)
	if err != nil {
		_ = closeTracing(context.Background())
		return err
	}
	s := server.New(agg, log, server.Config{Addr: cfg.ListenAddr, CORSOrigins: cfg.CORSOrigins})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	return run(log, s, stop, closeTracing)
}

type service interface {
	ListenAndServe() error
	Shutdown() error
}

// run serves until a signal arrives on stop or the listener fails. Traces are flushed either way.
func run(log *logger.Logger, s service, stop <-chan os.Signal, flush tracing.Closer) error {
	defer func() {
		if err := flush(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to flush traces")
		}
	}()

	errc := make(chan error, 1)
	go func() { errc <- s.ListenAndServe() }()

	select {
	case <-stop:
		log.Info().Msg("stopping server")
	case err := <-errc:
		return err
	}

	if err := s.Shutdown(); err != nil {
		log.Error().Err(err).Msg("failed to stop server")
	}
	return nil
}

func dump(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	agg, err := build(cfg, logger.NewWithWriter(os.Stderr, cfg.LogLevel))
	if err != nil {
		return err
	}

	fmt.Print(agg.Scrape(ctx))
	return nil
}

// build wires the counter store, the exposition and the aggregator.
func build(cfg *config.Config, log *logger.Logger) (*aggregator.Aggregator, error) {
	store := storage.NewMemoryStore()

	var extra []prometheus.Collector
	if cfg.Firewall.Enabled {
		inspector, err := blocker.NewIptables(cfg.Firewall.Table, cfg.Firewall.ChainPrefix)
		if err != nil {
			log.Warn().Err(err).Msg("firewall inspection disabled")
		} else {
			extra = append(extra, blocker.NewCollector(inspector, log))
		}
	}

	exposition, err := metrics.NewExposition(store, log, extra...)
	if err != nil {
		return nil, err
	}

	return aggregator.New(log, store, exposition, aggregator.Options{
		Path:         cfg.LogPath,
		MaxLines:     cfg.TailLines,
		MaxLineBytes: cfg.MaxLineBytes,
		Retention:    cfg.Retention,
		ReadTimeout:  cfg.ReadTimeout,
		Patterns: aggregator.PatternConfig{
			BanMarker:   cfg.Patterns.BanMarker,
			UnbanMarker: cfg.Patterns.UnbanMarker,
			JailMarker:  cfg.Patterns.JailMarker,
			Ban:         cfg.Patterns.Ban,
			Unban:       cfg.Patterns.Unban,
			TimeLayout:  cfg.Patterns.TimeLayout,
		},
	})
}
