package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/tcassar-diss/xdpfilter/frontend"
	"go.uber.org/zap"
)

var (
	configFlag  string
	verboseFlag bool
)

// ExitError carries the process exit status for a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}

	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "xdpfilter",
	Short: "IP deny-list and rate-limiting packet filter on XDP and tc",
	Long: `xdpfilter drops inbound packets from deny-listed sources at the XDP hook,
shoots outbound packets to deny-listed destinations at the tc egress hook and
deny-lists any source that sends too many packets within one window.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}

	os.Exit(frontend.ExitFailure)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "path to a TOML config file")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "log at debug level")
}

func newLogger() *zap.SugaredLogger {
	logger, err := frontend.NewLogger(verboseFlag)
	if err != nil {
		log.Fatalf("failed to get zap logger: %v", err)
	}

	return logger
}
