package validation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"stylizer/core"
)

// StepStatus is the outcome of one startup check.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepPassed
	StepFailed
	StepWarning
	StepSkipped
)

var stepStatusNames = [...]string{"pending", "running", "passed", "failed", "warning", "skipped"}

func (s StepStatus) String() string {
	if s < 0 || int(s) >= len(stepStatusNames) {
		return "unknown"
	}
	return stepStatusNames[s]
}

// mark returns the glyph and colour used when printing s.
func (s StepStatus) mark() (string, *color.Color) {
	switch s {
	case StepPassed:
		return "✓", color.New(color.FgGreen)
	case StepFailed:
		return "✗", color.New(color.FgRed)
	case StepWarning:
		return "!", color.New(color.FgYellow)
	case StepSkipped:
		return "○", color.New(color.FgHiBlack)
	}
	return "?", color.New(color.FgWhite)
}

// ValidationStep records one check as it ran.
type ValidationStep struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// SuiteResult aggregates the steps of one run.
type SuiteResult struct {
	Steps       []ValidationStep
	TotalSteps  int
	PassedSteps int
	FailedSteps int
	Warnings    int
	Duration    time.Duration
	Success     bool
}

func (r *SuiteResult) add(step ValidationStep) {
	r.Steps = append(r.Steps, step)
	r.TotalSteps++
	switch step.Status {
	case StepPassed:
		r.PassedSteps++
	case StepFailed:
		r.FailedSteps++
	case StepWarning:
		r.Warnings++
	}
	r.Success = r.FailedSteps == 0
}

// GetErrors returns the errors attached to failed steps.
func (r SuiteResult) GetErrors() []error {
	var errs []error
	for _, step := range r.Steps {
		if step.Status == StepFailed && step.Error != nil {
			errs = append(errs, step.Error)
		}
	}
	return errs
}

// GetFirstError returns the error of the earliest failed step, or nil.
func (r SuiteResult) GetFirstError() error {
	if errs := r.GetErrors(); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Summary renders the counts on one line, for logs and CLI output.
func (r SuiteResult) Summary() string {
	verdict := "Passed"
	if !r.Success {
		verdict = "Failed"
	}
	parts := []string{fmt.Sprintf("Validation %s: %d/%d checks passed", verdict, r.PassedSteps, r.TotalSteps)}
	if r.FailedSteps > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", r.FailedSteps))
	}
	if r.Warnings > 0 {
		parts = append(parts, fmt.Sprintf("%d warnings", r.Warnings))
	}
	return fmt.Sprintf("%s (took %v)", strings.Join(parts, ", "), r.Duration.Round(time.Millisecond))
}

// errSkipped marks a check that had nothing to look at.
var errSkipped = errors.New("skipped")

// check is one named startup check. A check that needs the runtime is only
// attempted once every local check has passed.
type check struct {
	name        string
	needsRemote bool
	run         func(ctx context.Context) (StepStatus, string, error)
}

// ValidationSuite runs the startup checks for a loaded configuration and
// prints coloured progress. It composes the file, disk space and
// connectivity checks of this package.
type ValidationSuite struct {
	cfg          *core.Config
	out          io.Writer
	connectivity *ConnectivityChecker
	minFreeBytes int64
	quiet        bool
	failFast     bool
}

// NewValidationSuite prepares a suite for cfg that prints to stdout.
func NewValidationSuite(cfg *core.Config) *ValidationSuite {
	return &ValidationSuite{
		cfg:          cfg,
		out:          os.Stdout,
		connectivity: NewConnectivityChecker(),
		minFreeBytes: DefaultMinFreeBytes,
	}
}

func (s *ValidationSuite) WithOutput(w io.Writer) *ValidationSuite {
	s.out = w
	return s
}

// WithTimeout bounds the runtime health request.
func (s *ValidationSuite) WithTimeout(timeout time.Duration) *ValidationSuite {
	s.connectivity.WithTimeout(timeout)
	return s
}

// WithMinFreeBytes sets the free space required on the output volume.
func (s *ValidationSuite) WithMinFreeBytes(n int64) *ValidationSuite {
	s.minFreeBytes = n
	return s
}

func (s *ValidationSuite) WithShowProgress(show bool) *ValidationSuite {
	s.quiet = !show
	return s
}

// WithFailFast stops at the first failed step.
func (s *ValidationSuite) WithFailFast(failFast bool) *ValidationSuite {
	s.failFast = failFast
	return s
}

// Validate runs the local checks and then asks the diffusion runtime for its
// health.
func (s *ValidationSuite) Validate(ctx context.Context) SuiteResult {
	return s.run(ctx, "Stylizer Startup Validation", s.checks(true))
}

// ValidateQuick runs only the checks that stay on this machine.
func (s *ValidationSuite) ValidateQuick(ctx context.Context) SuiteResult {
	return s.run(ctx, "Quick Configuration Check", s.checks(false))
}

func (s *ValidationSuite) checks(remote bool) []check {
	list := []check{
		{name: "Configuration", run: s.checkConfig},
		{name: "Working Folders", run: s.withConfig(s.checkFolders)},
		{name: "TLS Certificates", run: s.withConfig(s.checkCertificates)},
		{name: "Disk Space", run: s.withConfig(s.checkDiskSpace)},
	}
	if remote {
		list = append(list, check{name: "Diffusion Runtime", needsRemote: true, run: s.checkRuntime})
	}
	return list
}

func (s *ValidationSuite) run(ctx context.Context, title string, checks []check) SuiteResult {
	began := time.Now()
	result := SuiteResult{Success: true}
	s.header(title)

	for _, c := range checks {
		var step ValidationStep
		if c.needsRemote && !result.Success {
			step = ValidationStep{Name: c.name, Status: StepSkipped, Message: "Skipped due to configuration errors"}
		} else {
			step = s.runCheck(ctx, c)
		}
		s.report(step)
		result.add(step)
		if s.failFast && step.Status == StepFailed {
			break
		}
	}

	result.Duration = time.Since(began)
	s.footer(result)
	return result
}

func (s *ValidationSuite) runCheck(ctx context.Context, c check) ValidationStep {
	if !s.quiet {
		fmt.Fprintf(s.out, "  ◌ %s...", c.name)
	}
	began := time.Now()
	status, msg, err := c.run(ctx)
	if errors.Is(err, errSkipped) {
		status, err = StepSkipped, nil
	}
	return ValidationStep{Name: c.name, Status: status, Message: msg, Error: err, Latency: time.Since(began)}
}

// withConfig skips fn when no configuration was loaded.
func (s *ValidationSuite) withConfig(fn func() (StepStatus, string, error)) func(context.Context) (StepStatus, string, error) {
	return func(context.Context) (StepStatus, string, error) {
		if s.cfg == nil {
			return StepSkipped, "No configuration loaded", errSkipped
		}
		return fn()
	}
}

func (s *ValidationSuite) checkConfig(context.Context) (StepStatus, string, error) {
	if s.cfg == nil {
		return StepFailed, "No configuration loaded", core.ErrMissingAuth()
	}
	if err := s.cfg.Validate(); err != nil {
		return StepFailed, "Configuration invalid", err
	}
	auth := "API key"
	if s.cfg.APIKeyHash != "" {
		auth = "bcrypt API key hash"
	}
	return StepPassed, fmt.Sprintf("Valid (auth: %s, port %d)", auth, s.cfg.ServerPort), nil
}

func (s *ValidationSuite) checkFolders() (StepStatus, string, error) {
	for _, dir := range []string{s.cfg.InputFolder, s.cfg.OutputFolder, s.cfg.AnimationFolder} {
		if err := CheckDirWritable(dir); err != nil {
			return StepFailed, "Folder not writable", core.ErrFolderNotWritable(dir, err.Error())
		}
	}
	return StepPassed, "Input, output and animation folders writable", nil
}

// checkCertificates only warns: without a pair the server listens on plain HTTP.
func (s *ValidationSuite) checkCertificates() (StepStatus, string, error) {
	for _, path := range []string{s.cfg.CertFile(), s.cfg.KeyFile()} {
		if err := CheckFileExists(path); err != nil {
			return StepWarning, "Not found, serving plain HTTP", core.ErrCertMissing(path)
		}
	}
	return StepPassed, "HTTPS enabled", nil
}

func (s *ValidationSuite) checkDiskSpace() (StepStatus, string, error) {
	info, err := GetDiskSpace(s.cfg.OutputFolder)
	if err != nil {
		return StepWarning, "Could not read disk space", err
	}
	if info.Free < s.minFreeBytes {
		return StepFailed, "Output volume nearly full", core.ErrLowDiskSpace(info.Path, info.Free, s.minFreeBytes)
	}
	return StepPassed, fmt.Sprintf("%s free (%.0f%% used)", info.FreeFormatted, info.UsedPercent), nil
}

func (s *ValidationSuite) checkRuntime(ctx context.Context) (StepStatus, string, error) {
	if s.cfg == nil || s.cfg.SD == nil {
		return StepSkipped, "No runtime configured", errSkipped
	}
	res := s.connectivity.CheckRuntime(ctx, s.cfg.SD.RuntimeURL)
	msg := res.Message
	if res.Latency > 0 {
		msg += fmt.Sprintf(" (latency: %v)", res.Latency.Round(time.Millisecond))
	}
	if !res.Reachable {
		return StepFailed, msg, res.Error
	}
	return StepPassed, msg, nil
}

func (s *ValidationSuite) header(title string) {
	if s.quiet {
		return
	}
	color.New(color.FgCyan, color.Bold).Fprintf(s.out, "\n━━━ %s ━━━\n\n", title)
}

func (s *ValidationSuite) report(step ValidationStep) {
	if s.quiet {
		return
	}
	icon, clr := step.Status.mark()
	fmt.Fprint(s.out, "\r")
	clr.Fprintf(s.out, "  %s %s", icon, step.Name)
	if step.Message != "" {
		color.New(color.FgHiBlack).Fprintf(s.out, " - %s", step.Message)
	}
	fmt.Fprintln(s.out)
	if step.Error != nil && (step.Status == StepFailed || step.Status == StepWarning) {
		clr.Fprintf(s.out, "    └─ %v\n", step.Error)
	}
}

func (s *ValidationSuite) footer(r SuiteResult) {
	if s.quiet {
		return
	}
	banner, detail := color.New(color.FgGreen, color.Bold), fmt.Sprintf("(%d/%d checks passed in %v)",
		r.PassedSteps, r.TotalSteps, r.Duration.Round(time.Millisecond))
	verdict := "Passed"
	if !r.Success {
		banner = color.New(color.FgRed, color.Bold)
		detail = fmt.Sprintf("(%d passed, %d failed)", r.PassedSteps, r.FailedSteps)
		verdict = "Failed"
	}
	fmt.Fprintln(s.out)
	banner.Fprintf(s.out, "━━━ Validation %s ", verdict)
	color.New(color.FgHiBlack).Fprint(s.out, detail)
	banner.Fprintln(s.out, " ━━━")
	fmt.Fprintln(s.out)
}
