//go:build !windows

package main

import (
	"errors"
	"testing"

	"github.com/kardianos/service"

	"stylizer/core"
)

func TestRunAsService_NonWindows(t *testing.T) {
	handled, err := RunAsService()
	if handled || err != nil {
		t.Errorf("RunAsService() = %v, %v; want false, nil", handled, err)
	}
}

func TestHandleServiceCommand_Unsupported(t *testing.T) {
	handled, err := HandleServiceCommand("install", nil)
	if !handled || !errors.Is(err, ErrServiceUnsupported) {
		t.Errorf("HandleServiceCommand() = %v, %v", handled, err)
	}
}

func TestServiceCommand_NonWindows(t *testing.T) {
	code, _, stderr := run(t, "service", "status")
	if code != core.ExitCodeError {
		t.Errorf("exit code = %d, want %d", code, core.ExitCodeError)
	}
	if stderr == "" {
		t.Error("expected an error message")
	}
}

func TestStatusText(t *testing.T) {
	tests := map[service.Status]string{
		service.StatusRunning: "Service is running",
		service.StatusStopped: "Service is stopped",
		service.StatusUnknown: "Service status unknown",
	}
	for status, want := range tests {
		if got := statusText(status); got != want {
			t.Errorf("statusText(%v) = %q, want %q", status, got, want)
		}
	}
}
