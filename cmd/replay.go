package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/tcassar-diss/xdpfilter/frontend"
)

var egressFlag bool

var replayCmd = &cobra.Command{
	Use:   "replay <capture.pcap>",
	Short: "Run the classifiers over a pcap capture in userspace",
	Long: `Replay classifies each frame of an Ethernet pcap capture with the same rules the
kernel applies, timed by the capture timestamps, and prints the verdict counts
and the final deny list as JSON. No kernel state is touched.
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		defer logger.Sync()

		cfg, err := loadConfig(cmd)
		if err != nil {
			return &ExitError{Code: frontend.ExitFailure, Err: err}
		}

		if err := frontend.RunReplay(logger, cfg, args[0], egressFlag, os.Stdout); err != nil {
			return &ExitError{Code: frontend.ExitFailure, Err: err}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().BoolVar(&egressFlag, "egress", false, "run the egress classifier (frames are outbound)")
	replayCmd.Flags().String("blocklist", "", "file of addresses to deny-list before replaying")
	replayCmd.Flags().String("record-csv", "", "write a CSV row per classified packet to this file")
}
