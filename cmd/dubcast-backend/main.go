// ABOUTME: Entry point for the dubcast dev backend
// ABOUTME: Parses CLI flags and serves framed audio streams
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dubcast/dubcast-go/internal/backend"
	"github.com/dubcast/dubcast-go/internal/config"
	"github.com/dubcast/dubcast-go/internal/logger"
	"github.com/dubcast/dubcast-go/internal/metrics"
	"github.com/dubcast/dubcast-go/internal/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath  string
	addr        string
	name        string
	codec       string
	segment     time.Duration
	upstream    string
	pace        float64
	advertise   bool
	sourceRoot  string
	sourceHosts []string
	logLevel    string
	logFile     string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:          "dubcast-backend",
	Short:        "Serves translated audio as a length-prefixed stream",
	Version:      version.Version,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&configPath, "config", "", "YAML config file")
	flags.StringVar(&addr, "addr", "", "Listen address (default :8927)")
	flags.StringVar(&name, "name", "", "mDNS service name (default: hostname-dubcast-backend)")
	flags.StringVar(&codec, "codec", "", "Segment codec: wav or opus")
	flags.DurationVar(&segment, "segment", 0, "WAV segment length")
	flags.StringVar(&upstream, "upstream", "", "Proxy requests to this backend instead of serving locally")
	flags.Float64Var(&pace, "pace", 0, "Send segments at this multiple of real time (0 = unpaced)")
	flags.BoolVar(&advertise, "advertise", false,
		"Advertise over mDNS. Any client on the LAN can then make the backend read local files and fetch URLs; "+
			"outside a trusted network, restrict them with --source-root and --source-host")
	flags.StringVar(&sourceRoot, "source-root", "", "Only read local sources under this directory")
	flags.StringSliceVar(&sourceHosts, "source-host", nil, "Only fetch remote sources from these hosts (repeatable)")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&logFile, "log-file", "", "Rotating JSON log file")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// applyFlags overrides cfg with every flag set on the command line
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed
	if changed("addr") {
		cfg.Backend.Addr = addr
	}
	if changed("name") {
		cfg.Backend.Name = name
	}
	if changed("codec") {
		cfg.Backend.Codec = codec
	}
	if changed("segment") {
		cfg.Backend.Segment = segment
	}
	if changed("upstream") {
		cfg.Backend.Upstream = upstream
	}
	if changed("pace") {
		cfg.Backend.Pace = pace
	}
	if changed("advertise") {
		cfg.Backend.Advertise = advertise
	}
	if changed("source-root") {
		cfg.Backend.SourceRoot = sourceRoot
	}
	if changed("source-host") {
		cfg.Backend.SourceHosts = sourceHosts
	}
	if changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if changed("log-file") {
		cfg.Logging.File = logFile
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = metricsAddr
	}

	if !changed("name") && cfg.Backend.Name == config.Default().Backend.Name {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		cfg.Backend.Name = fmt.Sprintf("%s-dubcast-backend", hostname)
	}

	return cfg.Validate()
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Console:    true,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	counters, err := metrics.NewBackend(reg)
	if err != nil {
		return err
	}
	if cfg.Metrics.Addr != "" {
		metricsServer, err := metrics.Serve(cfg.Metrics.Addr, reg, log)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(ctx)
		}()
	}

	srv := backend.New(backend.Config{
		Addr:         cfg.Backend.Addr,
		Name:         cfg.Backend.Name,
		Codec:        cfg.Backend.Codec,
		Segment:      cfg.Backend.Segment,
		MaxChunkSize: cfg.Backend.MaxChunkSize,
		FetchTimeout: cfg.Backend.FetchTimeout,
		Upstream:     cfg.Backend.Upstream,
		Pace:         cfg.Backend.Pace,
		Advertise:    cfg.Backend.Advertise,
		SourceRoot:   cfg.Backend.SourceRoot,
		SourceHosts:  cfg.Backend.SourceHosts,
		Logger:       log,
		Metrics:      counters,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("received signal, shutting down gracefully", zap.String("signal", sig.String()))
		srv.Stop()
	}()

	log.Info("starting dubcast backend",
		zap.String("version", version.Version),
		zap.String("name", cfg.Backend.Name))
	return srv.Start()
}
