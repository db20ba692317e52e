package cli

import (
	"fmt"

	"github.com/getmockd/audittrail/pkg/config"
	"github.com/spf13/cobra"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	var (
		outPath string
		format  string
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Rewrite a configuration in the current shape",
		Long: `Load a configuration, convert the legacy log/limit/count keys into a
logFile logger, inline include fragments and write the result.

Without --output the result is printed. The output format follows the
--output extension unless --format is given.`,
		Example: `  audittrail migrate -c old.yaml
  audittrail migrate -c old.yaml -o audit.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := opts.requireConfigPath()
			if err != nil {
				return err
			}

			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			cfg.Include = nil

			if outPath != "" {
				if format != "" {
					return fmt.Errorf("--format cannot be combined with --output")
				}
				if err := config.Save(outPath, cfg); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (%d loggers)\n", outPath, len(cfg.Loggers))
				return nil
			}

			f := config.FormatYAML
			switch format {
			case "", "yaml", "yml":
			case "json":
				f = config.FormatJSON
			default:
				return fmt.Errorf("unknown format %q (use yaml or json)", format)
			}
			data, err := config.Marshal(cfg, f)
			if err != nil {
				return err
			}
			if len(data) > 0 && data[len(data)-1] != '\n' {
				data = append(data, '\n')
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Write the result to this file")
	cmd.Flags().StringVar(&format, "format", "", "Output format when printing (yaml, json)")
	return cmd
}
