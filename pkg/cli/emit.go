package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/getmockd/audittrail/pkg/trail"
	"github.com/spf13/cobra"
)

func newEmitCommand(opts *rootOptions) *cobra.Command {
	var (
		request bool
		user    string
	)

	cmd := &cobra.Command{
		Use:   "emit [message...]",
		Short: "Send a record to every configured logger",
		Long: `Send a record to every configured logger. Without arguments each
non-empty line of stdin is sent as its own record.

With --request the message is treated as a request path: it is recorded
as "<path> by <user>" only when it matches the configured pattern.`,
		Example: `  audittrail emit -c audit.yaml "maintenance window opened"
  audittrail emit -c audit.yaml --request --user alice /job/foo/doDelete
  tail -f events.txt | audittrail emit -c audit.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(false)
			if err != nil {
				return err
			}
			log, err := opts.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			t, err := trail.New(cfg, trail.WithLogger(log))
			if err != nil {
				return err
			}
			defer t.Close()
			if err := t.Start(); err != nil {
				log.Warn("some audit backends failed to configure", "error", err)
			}

			send := func(msg string) error {
				if request {
					if !t.Filter().OnRequest(msg, "", user) {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s does not match %q, not recorded\n", msg, t.Matcher().Pattern())
					}
					return nil
				}
				return t.Dispatch(msg)
			}

			if len(args) > 0 {
				return send(strings.Join(args, " "))
			}

			var (
				errs []error
				sent int
			)
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				sent++
				if err := send(line); err != nil {
					errs = append(errs, err)
				}
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			if sent == 0 {
				return ErrNoMessage
			}
			if len(errs) > 0 {
				return fmt.Errorf("%d of the records were not written everywhere: %w", len(errs), errs[0])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&request, "request", false, "Treat the message as a request path filtered by the pattern")
	cmd.Flags().StringVarP(&user, "user", "u", "", "Principal for --request (default anonymous)")
	return cmd
}
