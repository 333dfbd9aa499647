package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tcassar-diss/xdpfilter/frontend"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load the filter, attach it and hold it until interrupted",
	Long: `Load loads the kernel image, seeds the deny tables from the blocklist, attaches
the ingress classifier at XDP and the egress classifier at tc, then publishes the
deny tables under the pin directory so "xdpfilter block" can update them.

On SIGINT or SIGTERM the hooks are detached and the tables unpinned.

USAGE
	xdpfilter load --iface eth0 [flags]
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		defer logger.Sync()

		cfg, err := loadConfig(cmd)
		if err != nil {
			return &ExitError{Code: frontend.ExitFailure, Err: err}
		}

		if err := frontend.RunLoader(cmd.Context(), logger, cfg); err != nil {
			logger.Errorw("loader failed", "err", err)

			return &ExitError{Code: frontend.ExitFailure, Err: err}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)

	f := loadCmd.Flags()
	f.StringP("iface", "i", "", "interface to attach the ingress classifier to")
	f.String("mode", "", "XDP attach mode: default, generic, driver or offload")
	f.String("egress-iface", "", "interface to attach the egress classifier to (default: --iface)")
	f.Uint16("priority", frontend.DefaultPriority, "tc filter priority of the egress classifier")
	f.String("image", "", "path to the compiled kernel image")
	f.String("pin-dir", "", "bpffs directory to publish the deny tables under")
	f.String("blocklist", "", "file of addresses to deny-list at load")
	f.String("metrics-addr", "", "listen address for Prometheus metrics (e.g. :9100)")
	f.String("record-csv", "", "write a CSV row per verdict event to this file")
}
