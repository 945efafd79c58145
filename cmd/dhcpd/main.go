// Command dhcpd runs the DHCPv4 server: one dispatcher actor per
// configured interface, sharing a single logging sink, ARP-advisory
// publisher, and Prometheus registry. Grounded in the teacher's
// dhcp/server package's main-entrypoint shape, generalised to the
// explicit CoreContext construction in dhcp/dispatcher and the viper-based
// loader in dhcp/config.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"

	"dhcpd/dhcp/arpadvice"
	"dhcpd/dhcp/config"
	"dhcpd/dhcp/dispatcher"
	"dhcpd/dhcp/logging"
	"dhcpd/dhcp/metrics"
)

type options struct {
	ConfigFile string `short:"c" long:"config" description:"path to the YAML configuration file" default:"/etc/dhcpd/dhcpd.yaml"`
	LogLevel   string `long:"loglevel" description:"debug, info, warning, or critical" default:"info"`
	PidFile    string `long:"pidfile" description:"path to write the running process's pid"`
	MetricsURL string `long:"metrics-listen" description:"address to serve /metrics on" default:":9116"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, "dhcpd:", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := opts.LogLevel
	if cfg.Global.LogLevel != "" {
		level = cfg.Global.LogLevel
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(level)}))
	log := logging.NewSlog(logger)

	pidFile := opts.PidFile
	if pidFile == "" {
		pidFile = cfg.Global.PidFile
	}
	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
			log.Warning("failed to write pidfile", "path", pidFile, "error", err)
		}
	}

	// metrics.Serve exposes the default registry, so register there.
	m := metrics.New(prometheus.DefaultRegisterer)
	metricsSrv, err := metrics.Serve(opts.MetricsURL)
	if err != nil {
		return fmt.Errorf("serve metrics: %w", err)
	}

	cctx := &dispatcher.CoreContext{
		Log:     log,
		ARP:     arpadvice.New(log),
		Metrics: m,
	}

	d, err := dispatcher.New(cctx, cfg)
	if err != nil {
		return fmt.Errorf("build dispatcher: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	log.Info("dhcpd starting", "interfaces", len(cfg.Interfaces))
	d.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metrics.Shutdown(shutdownCtx, metricsSrv)

	if pidFile != "" {
		_ = os.Remove(pidFile)
	}
	log.Info("dhcpd stopped")
	return nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warning":
		return slog.LevelWarn
	case "critical":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
