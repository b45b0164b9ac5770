//go:build windows

// Windows service support via github.com/kardianos/service. The service runs
// the same serve path as the console, stopping it through the shutdown
// manager when the service control manager asks.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"stylizer/core"
)

// serviceStopTimeout bounds how long Stop waits for runServe to return.
const serviceStopTimeout = 90 * time.Second

// Program implements service.Interface.
type Program struct {
	cancel context.CancelFunc
	exit   chan struct{}
	code   int
	err    error
}

// Start is called by the service manager. It must not block.
func (p *Program) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.exit = make(chan struct{})

	go p.run(ctx)
	return nil
}

// Stop cancels the serve context and waits for the graceful shutdown.
func (p *Program) Stop(s service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()

	select {
	case <-p.exit:
		return p.err
	case <-time.After(serviceStopTimeout):
		return fmt.Errorf("timeout waiting for service to stop")
	}
}

func (p *Program) run(ctx context.Context) {
	defer close(p.exit)

	// services start in System32; load .env and relative folders from the install dir
	if exe, err := os.Executable(); err == nil {
		_ = os.Chdir(filepath.Dir(exe))
	}
	if err := core.LoadEnvFile(".env"); err != nil {
		p.code, p.err = core.ExitCodeError, err
		return
	}

	p.code, p.err = runServe(ctx)
	if p.code != core.ExitCodeSuccess && !core.IsSignalExit(p.code) {
		os.Exit(p.code)
	}
}

// ServiceConfig returns the service registration.
func ServiceConfig() *service.Config {
	workDir := ""
	if exe, err := os.Executable(); err == nil {
		workDir = filepath.Dir(exe)
	}
	return &service.Config{
		Name:             "Stylizer",
		DisplayName:      "Stylizer Image Service",
		Description:      "Stylizes uploaded images with a ControlNet-conditioned SDXL pipeline",
		Arguments:        []string{"serve"},
		WorkingDirectory: workDir,
		Option: service.KeyValue{
			"StartType":              "automatic",
			"OnFailure":              "restart",
			"OnFailureDelayDuration": "10s",
		},
	}
}

func newService() (service.Service, error) {
	s, err := service.New(&Program{}, ServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return s, nil
}

// RunAsService runs under the service control manager when the process was
// not started from a console. It reports false for interactive runs.
func RunAsService() (bool, error) {
	if service.Interactive() {
		return false, nil
	}

	s, err := newService()
	if err != nil {
		return false, err
	}
	if err := s.Run(); err != nil {
		return true, fmt.Errorf("service run failed: %w", err)
	}
	return true, nil
}

// serviceActions maps CLI verbs onto service.Control actions.
var serviceActions = map[string]string{
	"install":   "install",
	"uninstall": "uninstall",
	"remove":    "uninstall",
	"start":     "start",
	"stop":      "stop",
	"restart":   "restart",
}

// HandleServiceCommand runs one service management verb. It returns false
// for verbs it does not know.
func HandleServiceCommand(verb string, out func(format string, a ...any)) (bool, error) {
	s, err := newService()
	if err != nil {
		return true, err
	}

	if verb == "status" {
		status, err := s.Status()
		if err != nil {
			return true, fmt.Errorf("failed to get service status: %w", err)
		}
		out("%s\n", statusText(status))
		return true, nil
	}

	action, ok := serviceActions[verb]
	if !ok {
		return false, nil
	}
	if err := service.Control(s, action); err != nil {
		return true, fmt.Errorf("failed to %s service: %w", verb, err)
	}
	out("Service %s completed\n", verb)
	return true, nil
}

func statusText(status service.Status) string {
	switch status {
	case service.StatusRunning:
		return "Service is running"
	case service.StatusStopped:
		return "Service is stopped"
	default:
		return "Service status unknown"
	}
}

func newServiceCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "service <install|uninstall|start|stop|restart|status>",
		Short:     "Manage the Windows service",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"install", "uninstall", "remove", "start", "stop", "restart", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := func(format string, a ...any) { fmt.Fprintf(cmd.OutOrStdout(), format, a...) }
			handled, err := HandleServiceCommand(args[0], out)
			if err != nil {
				return err
			}
			if !handled {
				return fmt.Errorf("unknown service command %q", args[0])
			}
			return nil
		},
	}
}
