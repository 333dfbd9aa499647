package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tcassar-diss/xdpfilter/frontend"
)

// loadConfig reads --config, or the defaults when it is unset, and lets any flag the
// user set on cmd override the file.
func loadConfig(cmd *cobra.Command) (*frontend.Config, error) {
	cfg := frontend.DefaultConfig()

	if configFlag != "" {
		var err error

		cfg, err = frontend.LoadConfig(configFlag)
		if err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()

	strs := map[string]*string{
		"iface":        &cfg.Ingress.Interface,
		"mode":         &cfg.Ingress.Mode,
		"egress-iface": &cfg.Egress.Interface,
		"image":        &cfg.Image,
		"pin-dir":      &cfg.PinDir,
		"blocklist":    &cfg.Blocklist,
		"metrics-addr": &cfg.MetricsAddr,
		"record-csv":   &cfg.RecordCSV,
	}

	for name, dst := range strs {
		if flags.Lookup(name) == nil || !flags.Changed(name) {
			continue
		}

		v, err := flags.GetString(name)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s flag: %w", name, err)
		}

		*dst = v
	}

	if flags.Lookup("priority") != nil && flags.Changed("priority") {
		v, err := flags.GetUint16("priority")
		if err != nil {
			return nil, fmt.Errorf("failed to get priority flag: %w", err)
		}

		cfg.Egress.Priority = v
	}

	if flags.Lookup("nameserver") != nil && flags.Changed("nameserver") {
		v, err := flags.GetStringSlice("nameserver")
		if err != nil {
			return nil, fmt.Errorf("failed to get nameserver flag: %w", err)
		}

		cfg.Resolver.Servers = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
