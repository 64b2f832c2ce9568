// Package cli provides the impex-deploy command line.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"impexdeploy/internal/apperrors"
	"impexdeploy/internal/config"
	"impexdeploy/internal/deploy"
	"impexdeploy/internal/observability"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "0.1.0"

// Options carries the process environment into a command.
type Options struct {
	Stdout  io.Writer
	Stderr  io.Writer
	Env     config.Env
	WorkDir string // directory searched for dw.json; empty uses the current directory

	// Test hooks for reaching a fake instance.
	HTTPClient *http.Client
	TokenURL   string
}

// flags holds the values bound to the command line.
type flags struct {
	values   config.Values
	settings config.Settings
}

// Run executes the command line and returns the process exit code.
func Run(ctx context.Context, args []string, opts Options) int {
	cmd, f := newRootCmd(opts)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	code := apperrors.ExitCode(err)
	if code == apperrors.ExitUnexpected {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	}
	if err != nil && f.settings.LegacyExitCodes && code != apperrors.ExitUnexpected {
		return apperrors.ExitOK
	}
	return code
}

func newRootCmd(opts Options) (*cobra.Command, *flags) {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	f := &flags{settings: config.LoadSettings(opts.Env)}
	reporter := NewReporter(opts.Stdout)

	cmd := &cobra.Command{
		Use:   "impex-deploy",
		Short: "Deploy a site import folder to a B2C Commerce instance",
		Long: `impex-deploy zips a site import folder, uploads it to the instance's Impex
share over WebDAV, starts the sfcc-site-archive-import job through OCAPI and
waits for it to finish.

Connection settings are read from dw.json (or cartridges/dw.json) in the
working directory, or from --config. Flags override file values.`,
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f, opts, reporter)
		},
	}
	cmd.SetOut(opts.Stdout)
	cmd.SetErr(opts.Stderr)
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		reporter.Fail(err.Error())
		fmt.Fprintf(c.ErrOrStderr(), "Run '%s --help' for usage.\n", c.CommandPath())
		return apperrors.Config("flags", err.Error())
	})

	fl := cmd.Flags()
	fl.SortFlags = false
	fl.StringVarP(&f.values.Hostname, "hostname", "H", "", "instance host name, without scheme")
	fl.StringVarP(&f.values.Username, "username", "u", "", "Business Manager user for WebDAV")
	fl.StringVarP(&f.values.Password, "password", "p", "", "Business Manager password or access key")
	fl.StringVarP(&f.values.ClientID, "client-id", "c", "", "API client id")
	fl.StringVarP(&f.values.ClientPassword, "client-password", "l", "", "API client secret")
	fl.StringVarP(&f.values.FolderToImport, "folder", "f", "", "site import folder (or archive with --do-not-zip)")
	fl.StringVar(&f.settings.ConfigFile, "config", f.settings.ConfigFile, "config file (.json, .yaml or .toml)")
	fl.BoolVar(&f.settings.DoNotZip, "do-not-zip", f.settings.DoNotZip, "upload --folder as an existing zip archive")
	fl.DurationVar(&f.settings.PollInterval, "poll-interval", f.settings.PollInterval, "time between job status checks")
	fl.DurationVar(&f.settings.PollTimeout, "poll-timeout", f.settings.PollTimeout, "give up waiting for the job after this long (0 waits forever)")
	fl.IntVar(&f.settings.UploadRetries, "upload-retries", f.settings.UploadRetries, "extra upload attempts on network or server errors")
	fl.DurationVar(&f.settings.HTTPTimeout, "http-timeout", f.settings.HTTPTimeout, "time to wait for a response")
	fl.StringVar(&f.settings.AccountManager, "account-manager", f.settings.AccountManager, "account manager host for client credentials")
	fl.StringVar(&f.settings.APIVersion, "api-version", f.settings.APIVersion, "OCAPI Data API version")
	fl.StringVar(&f.settings.LogLevel, "log-level", f.settings.LogLevel, "log level: debug, info, warn, error")
	fl.StringVar(&f.settings.LogFile, "log-file", f.settings.LogFile, "also write JSON logs to this file")
	fl.StringVar(&f.settings.MetricsFile, "metrics-file", f.settings.MetricsFile, "write Prometheus metrics to this file on exit")
	fl.StringVar(&f.settings.NotifyURL, "notify-url", f.settings.NotifyURL, "POST the outcome as a CloudEvent to this URL")
	fl.StringVar(&f.settings.PasswordFile, "password-file", f.settings.PasswordFile, "read the password from this file")
	fl.BoolVar(&f.settings.LegacyExitCodes, "legacy-exit-codes", f.settings.LegacyExitCodes, "exit 0 after any reported failure")

	return cmd, f
}

func run(ctx context.Context, f *flags, opts Options, reporter *Reporter) error {
	s := f.settings.WithDefaults()

	logger, closeLog := config.SetupLogger(opts.Stderr, s.LogFile, s.Level())
	defer closeLog()
	previous := slog.Default()
	slog.SetDefault(logger)
	defer slog.SetDefault(previous)

	cfg, err := loadConfig(f, s, opts.WorkDir)
	if err != nil {
		reporter.Fail(err.Error())
		return err
	}
	echoConfig(reporter, cfg)

	var metrics *observability.Metrics
	if s.MetricsFile != "" {
		metrics, err = observability.NewMetrics()
		if err != nil {
			logger.Warn("Metrics disabled", "error", err)
		} else {
			defer writeMetrics(ctx, metrics, s.MetricsFile)
		}
	}

	deps := deploy.Wire(cfg, s, deploy.WireOptions{
		HTTPClient: opts.HTTPClient,
		TokenURL:   opts.TokenURL,
		Metrics:    metrics,
	})
	orchestrator := deploy.New(cfg, deps)
	reporter.Info("Run", orchestrator.RunID())

	outcome := orchestrator.Run(ctx)
	reporter.Outcome(outcome)
	return outcome.Err
}

// loadConfig builds the validated run configuration from the config file,
// the password file and the flags.
func loadConfig(f *flags, s config.Settings, workDir string) (config.Config, error) {
	var file config.Values
	path := s.ConfigFile
	if path == "" {
		dir := workDir
		if dir == "" {
			dir = "."
		}
		path, _ = config.FindFile(dir)
	}
	if path != "" {
		v, err := config.LoadFile(path)
		if err != nil {
			return config.Config{}, err
		}
		file = v
		slog.Debug("Loaded config file", "path", path)
	}

	overrides := f.values
	if overrides.Password == "" && s.PasswordFile != "" {
		overrides.Password = config.GetSecretFile(s.PasswordFile)
		if overrides.Password == "" {
			return config.Config{}, apperrors.Config("password-file", fmt.Sprintf("password file %s is empty or unreadable", s.PasswordFile))
		}
	}

	cfg := config.Merge(file, overrides)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func echoConfig(reporter *Reporter, cfg config.Config) {
	data, err := json.MarshalIndent(cfg.Masked(), "", "  ")
	if err != nil {
		return
	}
	reporter.Info("Configuration", "")
	reporter.Block(string(data))
	if cfg.UsesPlaceholder() {
		reporter.Info("Warning", "client id or secret not set, using placeholder credentials")
	}
}

func writeMetrics(ctx context.Context, metrics *observability.Metrics, path string) {
	if err := metrics.WriteTextfile(path); err != nil {
		slog.Warn("Failed to write metrics", "path", path, "error", err)
	}
	if err := metrics.Shutdown(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, context.Canceled) {
		slog.Debug("Metrics shutdown", "error", err)
	}
}
