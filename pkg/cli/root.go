package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/getmockd/audittrail/pkg/config"
	"github.com/getmockd/audittrail/pkg/logging"
	"github.com/spf13/cobra"
)

// Environment variables read by the CLI.
const (
	EnvConfig    = "AUDITTRAIL_CONFIG"
	EnvLogLevel  = "AUDITTRAIL_LOG_LEVEL"
	EnvLogFormat = "AUDITTRAIL_LOG_FORMAT"
)

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	jsonOutput bool
}

// NewRootCommand builds the audittrail command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "audittrail",
		Short: "audittrail records who did what on an automation server",
		Long: `audittrail writes one line per audited request and build event to the
configured backends: the console, size-rotated log files and syslog.

Configuration is read from the file given with --config, or from the
AUDITTRAIL_CONFIG environment variable.`,
		SilenceUsage:  true,
		SilenceErrors: true, // We handle errors in Execute()
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", os.Getenv(EnvConfig), "Configuration file (YAML or JSON)")
	flags.StringVar(&opts.logLevel, "log-level", envOr(EnvLogLevel, "info"), "Diagnostic log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", envOr(EnvLogFormat, "text"), "Diagnostic log format (text, json)")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Output command results in JSON format")

	root.AddCommand(
		newServeCommand(opts),
		newValidateCommand(opts),
		newCheckPatternCommand(opts),
		newMigrateCommand(opts),
		newEmitCommand(opts),
		newVersionCommand(opts),
	)
	return root
}

// Execute runs the root command with the process arguments and exits
// non-zero on error.
func Execute() {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// logger builds the diagnostic logger. Diagnostics go to stderr so they
// never mix with console audit lines on stdout.
func (o *rootOptions) logger(w io.Writer) (*slog.Logger, error) {
	return logging.FromFlags(o.logLevel, o.logFormat, w)
}

// requireConfigPath returns the configured path or ErrNoConfig.
func (o *rootOptions) requireConfigPath() (string, error) {
	if o.configPath == "" {
		return "", ErrNoConfig
	}
	return o.configPath, nil
}

// loadConfig loads the configured file, or returns the defaults when
// optional is set and no file was given.
func (o *rootOptions) loadConfig(optional bool) (*config.Config, error) {
	if o.configPath == "" {
		if optional {
			return config.Default(), nil
		}
		return nil, ErrNoConfig
	}
	return config.Load(o.configPath)
}
