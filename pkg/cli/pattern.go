package cli

import (
	"fmt"

	"github.com/getmockd/audittrail/pkg/audit"
	"github.com/getmockd/audittrail/pkg/cli/internal/output"
	"github.com/spf13/cobra"
)

// PatternOutput is the JSON result of the check-pattern command.
type PatternOutput struct {
	Pattern string          `json:"pattern"`
	Valid   bool            `json:"valid"`
	Message string          `json:"message,omitempty"`
	Matches map[string]bool `json:"matches,omitempty"`
}

func newCheckPatternCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-pattern <pattern> [path...]",
		Short: "Check a request pattern and optionally test it against paths",
		Long: `Check that a request pattern compiles. A pattern must match the whole
request path. Any paths given after the pattern are tested against it.`,
		Example: `  audittrail check-pattern '.*/(doDelete|configSubmit)'
  audittrail check-pattern '.*/doDelete' /job/foo/doDelete /job/foo/build`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := args[0]
			out := PatternOutput{Pattern: pattern}

			m, err := audit.NewMatcher(pattern)
			if err != nil {
				out.Message = err.Error()
			} else {
				out.Valid = true
				if len(args) > 1 {
					out.Matches = make(map[string]bool, len(args)-1)
					for _, p := range args[1:] {
						out.Matches[p] = m.Match(p)
					}
				}
			}

			w := cmd.OutOrStdout()
			if opts.jsonOutput {
				if err := output.JSON(w, out); err != nil {
					return err
				}
			} else if !out.Valid {
				fmt.Fprintf(w, "✗ %s\n", out.Message)
			} else {
				fmt.Fprintf(w, "✓ pattern %q is valid\n", pattern)
				for _, p := range args[1:] {
					mark := "no match"
					if out.Matches[p] {
						mark = "match"
					}
					fmt.Fprintf(w, "  %s: %s\n", p, mark)
				}
			}

			if !out.Valid {
				return err
			}
			return nil
		},
	}
}
