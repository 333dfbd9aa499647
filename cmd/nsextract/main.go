// nsextract reads nslookup output on stdin and prints the answer addresses, one per
// line. With --apply or --remove it also updates the published deny tables, so
//
//	nslookup example.com | nsextract --apply
//
// blocks a domain using the system resolver instead of xdpfilter's own.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/tcassar-diss/xdpfilter/bpf"
	"github.com/tcassar-diss/xdpfilter/frontend"
	"github.com/urfave/cli/v2"
)

var (
	apply   bool
	remove  bool
	verbose bool
	pinDir  string
)

func main() {
	app := &cli.App{
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "apply",
				Usage:       "insert the extracted addresses into the published deny tables",
				Destination: &apply,
			}, &cli.BoolFlag{
				Name:        "remove",
				Usage:       "delete the extracted addresses from the published deny tables; overrides apply",
				Destination: &remove,
			}, &cli.StringFlag{
				Name:        "pin-dir",
				Usage:       "bpffs directory the deny tables are published under",
				Value:       bpf.DefaultPinDir,
				Destination: &pinDir,
			}, &cli.BoolFlag{
				Name:        "verbose",
				Usage:       "log at debug level",
				Destination: &verbose,
			},
		},
		Name:      "nsextract",
		ArgsUsage: "< nslookup-output",
		Usage:     "extract addresses from nslookup output",
		Action: func(cCtx *cli.Context) error {
			if nArgs := cCtx.Args().Len(); nArgs != 0 {
				_ = cli.ShowAppHelp(cCtx)

				return cli.Exit(
					fmt.Sprintf("\nERROR: Unexpected arguments! Expected 0, got %d", nArgs),
					frontend.ExitFailure,
				)
			}

			addrs, err := frontend.ScanNslookup(os.Stdin)
			if err != nil {
				return cli.Exit(err.Error(), frontend.ExitFailure)
			}

			for _, a := range addrs {
				fmt.Println(a)
			}

			if !apply && !remove {
				return nil
			}

			if len(addrs) == 0 {
				return cli.Exit("no addresses in input", frontend.ExitFailure)
			}

			return update(addrs)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
