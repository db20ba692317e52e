package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/getmockd/audittrail/pkg/audit"
	"github.com/getmockd/audittrail/pkg/cli/internal/output"
	"github.com/getmockd/audittrail/pkg/config"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ValidateOutput is the JSON result of the validate command.
type ValidateOutput struct {
	Valid         bool     `json:"valid"`
	Path          string   `json:"path"`
	Pattern       string   `json:"pattern,omitempty"`
	LogBuildCause bool     `json:"logBuildCause"`
	Loggers       []string `json:"loggers,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

func newValidateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file without opening any backend",
		Long: `Validate a configuration file without opening any backend.

This command checks:
  - YAML or JSON syntax
  - Schema validation (known keys, one backend per logger, enum values)
  - Semantic validation (pattern syntax, date formats, rotation settings)
  - Include fragments`,
		Example: `  audittrail validate -c audit.yaml
  audittrail validate -c audit.yaml --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := opts.requireConfigPath()
			if err != nil {
				return err
			}

			out := ValidateOutput{Path: path}
			cfg, loadErr := config.Load(path)
			if loadErr != nil {
				out.Errors = validationMessages(loadErr)
			} else {
				out.Valid = true
				out.Pattern = cfg.EffectivePattern()
				out.LogBuildCause = cfg.LogBuildCause
				for _, l := range cfg.Loggers {
					out.Loggers = append(out.Loggers, l.String())
				}
			}

			w := cmd.OutOrStdout()
			if opts.jsonOutput {
				if err := output.JSON(w, out); err != nil {
					return err
				}
			} else {
				printValidation(w, out, cfg)
			}

			if !out.Valid {
				return ErrInvalidConfig
			}
			return nil
		},
	}
}

// validationMessages flattens schema and semantic violations into one
// message each.
func validationMessages(err error) []string {
	var schemaErr *config.SchemaError
	if errors.As(err, &schemaErr) {
		msgs := make([]string, 0, len(schemaErr.Violations))
		for _, v := range schemaErr.Violations {
			msgs = append(msgs, v.Error())
		}
		return msgs
	}
	var validationErr *config.ValidationError
	if errors.As(err, &validationErr) {
		msgs := make([]string, 0, len(validationErr.Violations))
		for _, v := range validationErr.Violations {
			msgs = append(msgs, v.Error())
		}
		return msgs
	}
	return []string{err.Error()}
}

func printValidation(w io.Writer, out ValidateOutput, cfg *config.Config) {
	if !out.Valid {
		fmt.Fprintf(w, "✗ %s is invalid\n", out.Path)
		for _, msg := range out.Errors {
			fmt.Fprintf(w, "  - %s\n", msg)
		}
		return
	}

	fmt.Fprintf(w, "✓ %s is valid\n", out.Path)
	fmt.Fprintf(w, "  Pattern: %s\n", out.Pattern)
	fmt.Fprintf(w, "  Log build cause: %t\n", out.LogBuildCause)
	if len(cfg.Loggers) == 0 {
		output.Warn(w, "no loggers configured, nothing will be recorded")
		return
	}

	tw := output.Table(w)
	fmt.Fprintln(tw, "  KIND\tTARGET")
	for _, l := range cfg.Loggers {
		fmt.Fprintf(tw, "  %s\t%s\n", kindLabel(l), target(l))
	}
	_ = tw.Flush()
}

// kindLabel renders the variant tag for people: "logFile" becomes "Log File".
func kindLabel(l audit.LoggerConfig) string {
	kind := l.Kind()
	spaced := make([]rune, 0, len(kind)+2)
	for i, r := range kind {
		if i > 0 && r >= 'A' && r <= 'Z' {
			spaced = append(spaced, ' ')
		}
		spaced = append(spaced, r)
	}
	return cases.Title(language.English).String(string(spaced))
}

func target(l audit.LoggerConfig) string {
	switch {
	case l.Console != nil:
		return string(l.Console.Output)
	case l.LogFile != nil:
		return l.LogFile.Log
	case l.Syslog != nil:
		return fmt.Sprintf("%s %s:%d (%s)", l.Syslog.Protocol, l.Syslog.SyslogServerHostname,
			l.Syslog.SyslogServerPort, l.Syslog.MessageFormat)
	default:
		return ""
	}
}
