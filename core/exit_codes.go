package core

import "errors"

// Process exit codes. Signal exits use the shell's 128+signo convention so
// supervisors can tell a stop request from a crash.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
	// ExitCodeConfig means startup checks rejected the configuration.
	ExitCodeConfig  = 2
	ExitCodeSIGINT  = 128 + 2
	ExitCodeSIGTERM = 128 + 15
)

var exitCodeNames = map[int]string{
	ExitCodeSuccess: "success",
	ExitCodeError:   "error",
	ExitCodeConfig:  "configuration error",
	ExitCodeSIGINT:  "interrupted (SIGINT)",
	ExitCodeSIGTERM: "terminated (SIGTERM)",
}

// ExitCodeName is used in the final log line and CLI errors.
func ExitCodeName(code int) string {
	if name, ok := exitCodeNames[code]; ok {
		return name
	}
	return "unknown"
}

// IsSignalExit reports whether code came from SIGINT or SIGTERM.
func IsSignalExit(code int) bool {
	return code == ExitCodeSIGINT || code == ExitCodeSIGTERM
}

// ExitCodeFor maps a startup error to an exit code: configuration problems
// get ExitCodeConfig, anything else ExitCodeError.
func ExitCodeFor(err error) int {
	var cfgErr *ConfigError
	switch {
	case err == nil:
		return ExitCodeSuccess
	case errors.As(err, &cfgErr):
		return ExitCodeConfig
	}
	return ExitCodeError
}
