package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"stylizer/api"
	"stylizer/conditioning"
	"stylizer/core"
	"stylizer/core/validation"
	"stylizer/db"
)

// exitError carries a specific process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return core.ExitCodeName(e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	if handled, err := RunAsService(); handled {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(core.ExitCodeError)
		}
		return
	}

	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the CLI and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(context.Background())
	if err == nil {
		return core.ExitCodeSuccess
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.err != nil && exitErr.code != core.ExitCodeSuccess {
			fmt.Fprintf(stderr, "Error: %v\n", exitErr.err)
		}
		return exitErr.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return core.ExitCodeFor(err)
}

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	envFile string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "stylizer",
		Short:         "Image stylization service (ControlNet + SDXL)",
		Version:       core.GetVersionInfo(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return core.LoadEnvFile(opts.envFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServeCommand(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(
		newServeCmd(),
		newConditionCmd(),
		newMigrateCmd(),
		newValidateCmd(),
		newHashKeyCmd(),
		newVersionCmd(),
		newServiceCmd(),
	)
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServeCommand(cmd.Context())
		},
	}
}

func runServeCommand(ctx context.Context) error {
	code, err := runServe(ctx)
	if code != core.ExitCodeSuccess || err != nil {
		return &exitError{code: code, err: err}
	}
	return nil
}

func newConditionCmd() *cobra.Command {
	var low, high int

	cmd := &cobra.Command{
		Use:   "condition <input> <output.png>",
		Short: "Write the Canny conditioning image for an input image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			cond, err := conditioning.Prepare(data, low, high)
			if err != nil {
				return fmt.Errorf("condition %s: %w", args[0], err)
			}
			encoded, err := cond.EncodePNG()
			if err != nil {
				return err
			}

			if dir := filepath.Dir(args[1]); dir != "." {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return err
				}
			}
			if err := os.WriteFile(args[1], encoded, 0644); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %dx%d -> %dx%d %s\n",
				color.GreenString("conditioned"),
				cond.SourceWidth, cond.SourceHeight, cond.Width, cond.Height, args[1])
			return nil
		},
	}
	cmd.Flags().IntVar(&low, "low", conditioning.DefaultLowThreshold, "Canny low threshold")
	cmd.Flags().IntVar(&high, "high", conditioning.DefaultHighThreshold, "Canny high threshold")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var dbPath string
	var steps int

	cmd := &cobra.Command{
		Use:       "migrate [up|down|version|force <version>]",
		Short:     "Manage the generation history schema",
		Args:      cobra.RangeArgs(0, 2),
		ValidArgs: []string{"up", "down", "version", "force"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = core.GetEnvOrDefault("DATABASE_PATH", core.DefaultDatabasePath)
			}
			if dir := filepath.Dir(dbPath); dir != "." {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return err
				}
			}

			action := "up"
			if len(args) > 0 {
				action = args[0]
			}
			out := cmd.OutOrStdout()

			switch action {
			case "up":
				if err := db.MigrateUpFromPath(dbPath); err != nil {
					return err
				}
			case "down":
				if err := db.MigrateDownFromPath(dbPath, steps); err != nil {
					return err
				}
			case "force":
				if len(args) != 2 {
					return errors.New("force requires a version")
				}
				v, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("invalid version %q", args[1])
				}
				if err := db.ForceMigrationVersionFromPath(dbPath, v); err != nil {
					return err
				}
			case "version":
			default:
				return fmt.Errorf("unknown migrate action %q", action)
			}

			version, dirty, err := db.MigrationVersionFromPath(dbPath)
			if err != nil {
				return err
			}
			state := color.GreenString("clean")
			if dirty {
				state = color.RedString("dirty")
			}
			fmt.Fprintf(out, "%s: schema version %d (%s, latest %d)\n", dbPath, version, state, db.SchemaVersion)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "database file (default $DATABASE_PATH)")
	cmd.Flags().IntVar(&steps, "steps", 1, "migrations to roll back with down (-1 for all)")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var quick bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check configuration, folders, certificates and the diffusion runtime",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := core.LoadConfig()
			if err != nil {
				return &exitError{code: core.ExitCodeFor(err), err: err}
			}

			ctx := cmd.Context()
			suite := validation.NewValidationSuite(cfg).
				WithOutput(cmd.OutOrStdout()).
				WithTimeout(timeout)

			var result validation.SuiteResult
			if quick {
				result = suite.ValidateQuick(ctx)
			} else {
				result = suite.Validate(ctx)
			}
			if !result.Success {
				return &exitError{code: core.ExitCodeConfig, err: result.GetFirstError()}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&quick, "quick", false, "skip the diffusion runtime probe")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "runtime probe timeout")
	return cmd
}

func newHashKeyCmd() *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "hash-key [key]",
		Short: "Print a bcrypt hash for API_KEY_HASH (reads the key from stdin without an argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 4096))
				if err != nil {
					return err
				}
				key = strings.TrimSpace(string(data))
			}

			hash, err := api.HashAPIKey(key, cost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", api.DefaultHashCost, "bcrypt cost")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "stylizer "+core.GetVersionInfo())
		},
	}
}
