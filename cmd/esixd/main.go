// Command esixd is a user-space test harness for the esix library: it binds
// a raw AF_PACKET (or platform raw-socket) link to a named interface, brings
// the esix stack up on it, and runs the worker loop until interrupted. It is
// grounded on the teacher's cmd/ convention and internal/home/service.go's
// program/signal-handling shape, trimmed to the one job this harness has.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/esix-project/esix"
	"github.com/esix-project/esix/internal/esixcfg"
	"github.com/esix-project/esix/internal/esixmetrics"
	"github.com/esix-project/esix/internal/iface"
	"github.com/esix-project/esix/internal/linkdriver"
	"github.com/esix-project/esix/internal/wire"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"gopkg.in/natefinch/lumberjack.v2"
)

// tableSnapshot is the JSON shape -dump prints once a second (SPEC_FULL.md
// §5 "Diagnostics dump", grounded on dhcpsvc's Leases() diagnostic
// accessor).
type tableSnapshot struct {
	Addresses []iface.AddrEntry     `json:"addresses"`
	Routes    []iface.RouteEntry    `json:"routes"`
	Neighbors []iface.NeighborEntry `json:"neighbors"`
}

// linkLayerAddr resolves the named interface's own Ethernet address.
func linkLayerAddr(ifaceName string) (addr wire.EtherAddr, err error) {
	ifi, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return addr, fmt.Errorf("looking up interface %q: %w", ifaceName, err)
	}
	if len(ifi.HardwareAddr) != len(addr) {
		return addr, fmt.Errorf("interface %q has no 6-byte hardware address", ifaceName)
	}

	copy(addr[:], ifi.HardwareAddr)

	return addr, nil
}

// serveMetrics serves m's Prometheus handler on addr until ctx is canceled.
func serveMetrics(ctx context.Context, logger *slog.Logger, addr string, m *esixmetrics.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.ErrorContext(ctx, "metrics server failed", slogutil.KeyError, err)
	}
}

func main() {
	ifaceName := flag.String("iface", "", "interface to bind the raw link to")
	configPath := flag.String("config", "", "path to the esixcfg YAML file (optional)")
	logPath := flag.String("log-file", "", "path to a rotated log file (optional; stderr otherwise)")
	metricsAddr := flag.String("metrics-addr", "", "address to serve Prometheus metrics on (optional)")
	dump := flag.Bool("dump", false, "print a JSON snapshot of the tables once a second instead of running")
	serviceAction := flag.String("service", "", "install/uninstall/start/stop/restart/status/run esixd as an OS service instead of running in the foreground")
	flag.Parse()

	if *ifaceName == "" {
		fmt.Fprintln(os.Stderr, "esixd: -iface is required")
		os.Exit(2)
	}

	logger := newLogger(*logPath)

	if *serviceAction != "" {
		p := &program{logger: logger, ifaceName: *ifaceName, configPath: *configPath, logPath: *logPath, metricsAddr: *metricsAddr}
		if err := handleServiceControlAction(*serviceAction, p); err != nil {
			logger.Error("service control action failed", slogutil.KeyError, err)
			os.Exit(1)
		}

		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, *ifaceName, *configPath, *metricsAddr, *dump); err != nil {
		logger.ErrorContext(ctx, "esixd exiting", slogutil.KeyError, err)
		os.Exit(1)
	}
}

// newLogger builds a slog.Logger writing to path via lumberjack rotation, or
// to stderr if path is empty, mirroring internal/home/log.go's
// lumberjack.Logger wiring.
func newLogger(path string) *slog.Logger {
	if path == "" {
		return slogutil.New(nil)
	}

	return slog.New(slog.NewTextHandler(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}, nil))
}

func run(
	ctx context.Context,
	logger *slog.Logger,
	ifaceName string,
	configPath string,
	metricsAddr string,
	dump bool,
) (err error) {
	var cfg *esixcfg.Config
	if configPath != "" {
		cfg, err = esixcfg.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	}

	var metrics *esixmetrics.Metrics
	if metricsAddr != "" {
		metrics = esixmetrics.New("esixd")
		go serveMetrics(ctx, logger, metricsAddr, metrics)
	}

	link, err := linkdriver.New(ifaceName)
	if err != nil {
		return fmt.Errorf("opening link on %q: %w", ifaceName, err)
	}
	defer link.Close()

	self, err := linkLayerAddr(ifaceName)
	if err != nil {
		return fmt.Errorf("resolving link-layer address: %w", err)
	}

	c := esix.New(logger, timeutil.SystemClock{}, self, cfg, metrics)

	if err = c.Init(ctx); err != nil {
		return fmt.Errorf("initializing interface: %w", err)
	}

	go c.Worker(ctx, link)
	go func() {
		_ = link.ReadLoop(ctx, c.Enqueue)
	}()
	go periodicTicker(ctx, c)

	if dump {
		dumpLoop(ctx, c)

		return nil
	}

	<-ctx.Done()

	return nil
}

// periodicTicker drives Core.PeriodicCallback once a second, mirroring
// spec.md §6 "called by the host once per second to advance the clock".
func periodicTicker(ctx context.Context, c *esix.Core) {
	t := time.NewTicker(1 * time.Second)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			c.PeriodicCallback(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// dumpLoop prints a JSON snapshot of the interface tables once a second
// (SPEC_FULL.md §5 "Diagnostics dump").
func dumpLoop(ctx context.Context, c *esix.Core) {
	t := time.NewTicker(1 * time.Second)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			snap := esix.Call(c, func() tableSnapshot {
				addrs, routes, neighbors := c.Tables().Snapshot()

				return tableSnapshot{Addresses: addrs, Routes: routes, Neighbors: neighbors}
			})

			enc := json.NewEncoder(os.Stdout)
			_ = enc.Encode(snap)
		case <-ctx.Done():
			return
		}
	}
}
