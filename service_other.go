//go:build !windows

package main

import (
	"errors"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// ErrServiceUnsupported is returned by the service command outside Windows;
// use systemd or launchd units that run "stylizer serve" instead.
var ErrServiceUnsupported = errors.New("service management is only supported on Windows")

// RunAsService reports false: non-Windows builds always run in the foreground.
func RunAsService() (bool, error) {
	return false, nil
}

// HandleServiceCommand is unsupported outside Windows.
func HandleServiceCommand(verb string, out func(format string, a ...any)) (bool, error) {
	return true, ErrServiceUnsupported
}

// statusText mirrors the Windows output so scripts see the same strings.
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
		Use:    "service <install|uninstall|start|stop|restart|status>",
		Short:  "Manage the Windows service",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := HandleServiceCommand(args[0], nil)
			return err
		},
	}
}
