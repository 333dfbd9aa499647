package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/tcassar-diss/xdpfilter/frontend"
)

var removeFlag bool

var blockCmd = &cobra.Command{
	Use:   "block <domain>",
	Short: "Deny-list every address a domain resolves to",
	Long: `Block resolves a domain to its A and AAAA records and inserts each address into
the deny tables published by a running "xdpfilter load". With --remove the
addresses are deleted instead.

Exit status is 0 when every address was applied, 3 when only some were and 1
when none were or the tables could not be opened.

USAGE
	xdpfilter block [--remove] example.com
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		defer logger.Sync()

		cfg, err := loadConfig(cmd)
		if err != nil {
			return &ExitError{Code: frontend.ExitFailure, Err: err}
		}

		mode := frontend.ModeAdd
		if removeFlag {
			mode = frontend.ModeRemove
		}

		report, err := frontend.RunUpdater(cmd.Context(), logger, cfg, args[0], mode)
		if err != nil {
			return &ExitError{Code: frontend.ExitFailure, Err: err}
		}

		if err := frontend.WriteReport(os.Stdout, report); err != nil {
			logger.Warnw("failed to print report", "err", err)
		}

		if code := report.ExitCode(); code != frontend.ExitOK {
			return &ExitError{Code: code, Err: report.Err()}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(blockCmd)

	blockCmd.Flags().BoolVar(&removeFlag, "remove", false, "remove the addresses instead of adding them")
	blockCmd.Flags().String("pin-dir", "", "bpffs directory the deny tables are published under")
	blockCmd.Flags().StringSlice("nameserver", nil, "nameserver to query, host or host:port (repeatable)")
}
