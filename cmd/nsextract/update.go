package main

import (
	"fmt"
	"net/netip"
	"os"

	"github.com/tcassar-diss/xdpfilter/bpf"
	"github.com/tcassar-diss/xdpfilter/frontend"
	"github.com/urfave/cli/v2"
)

func update(addrs []netip.Addr) error {
	logger, err := frontend.NewLogger(verbose)
	if err != nil {
		return cli.Exit(err.Error(), frontend.ExitFailure)
	}
	defer logger.Sync()

	tables, err := bpf.OpenDenyTables(pinDir)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open deny tables (is the loader running?): %v", err), frontend.ExitFailure)
	}
	defer tables.Close()

	mode := frontend.ModeAdd
	if remove {
		mode = frontend.ModeRemove
	}

	// addresses are already resolved, so no resolver is needed
	report := frontend.NewUpdater(logger, &tables.DenyList, nil).ApplyAll(addrs, mode)

	if err := frontend.WriteReport(os.Stderr, report); err != nil {
		logger.Warnw("failed to print report", "err", err)
	}

	if code := report.ExitCode(); code != frontend.ExitOK {
		return cli.Exit(report.Err().Error(), code)
	}

	return nil
}
