package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kardianos/service"
)

// program adapts esixd's run loop to the kardianos/service lifecycle,
// mirroring the teacher's service.go program type trimmed to esixd's single
// long-running job (no separate cleanup step: esixd holds no state beyond
// the process).
type program struct {
	logger      *slog.Logger
	ifaceName   string
	configPath  string
	logPath     string
	metricsAddr string

	cancel context.CancelFunc
}

// Start implements service.Interface. It must not block; the actual run
// loop is launched on its own goroutine, exactly as the teacher's
// program.Start does.
func (p *program) Start(s service.Service) (err error) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	p.cancel = cancel

	go func() {
		if rerr := run(ctx, p.logger, p.ifaceName, p.configPath, p.metricsAddr, false); rerr != nil {
			p.logger.ErrorContext(ctx, "esixd exiting", slog.Any("err", rerr))
		}
	}()

	return nil
}

// Stop implements service.Interface. It must return within a few seconds,
// the same contract the teacher's program.Stop documents.
func (p *program) Stop(s service.Service) (err error) {
	if p.cancel != nil {
		p.cancel()
	}

	return nil
}

// handleServiceControlAction installs, starts, stops, or queries esixd as an
// OS service (install/uninstall/start/stop/restart/status/run), grounded on
// the teacher's handleServiceControlAction, trimmed to esixd's one daemon
// and without the launchd stdout/stderr redirection esixd's "-log-file"
// flag already covers.
func handleServiceControlAction(action string, p *program) (err error) {
	svcConfig := &service.Config{
		Name:        "esixd",
		DisplayName: "esix IPv6 protocol engine",
		Description: "esix: a user-space IPv6 protocol engine test harness",
		Arguments:   []string{"-service", "run", "-iface", p.ifaceName},
	}
	if p.configPath != "" {
		svcConfig.Arguments = append(svcConfig.Arguments, "-config", p.configPath)
	}

	s, err := service.New(p, svcConfig)
	if err != nil {
		return fmt.Errorf("constructing service: %w", err)
	}

	switch action {
	case "run":
		return s.Run()
	case "status":
		status, serr := s.Status()
		if serr != nil {
			return fmt.Errorf("querying status: %w", serr)
		}

		switch status {
		case service.StatusRunning:
			fmt.Println("esixd is running")
		case service.StatusStopped:
			fmt.Println("esixd is stopped")
		default:
			fmt.Println("esixd status is unknown")
		}

		return nil
	default:
		return service.Control(s, action)
	}
}
