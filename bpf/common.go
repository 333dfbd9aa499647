package bpf

import (
	"errors"
	"fmt"

	"github.com/cilium/ebpf/link"
)

var (
	ErrLoad             = errors.New("failed to load bpf image")
	ErrVerification     = errors.New("bpf verifier rejected program")
	ErrAttach           = errors.New("failed to attach program")
	ErrNotBPFFS         = errors.New("pin directory is not on a bpf filesystem")
	ErrAlreadyPublished = errors.New("table already pinned")
)

// Program, map and variable names in xdpfilter.c.
const (
	ProgIngress = "xdp_filter"
	ProgEgress  = "tc_egress"

	MapDenyV4    = "blocklist_v4"
	MapDenyV6    = "blocklist_v6"
	MapTrackerV4 = "tracker_v4"
	MapTrackerV6 = "tracker_v6"
	MapStats     = "stats"
	MapEvents    = "events"

	varWindow           = "window_ns"
	varThreshold        = "threshold"
	varUnknownTransport = "unknown_transport_pass"
)

// DefaultPinDir is where the deny tables are published.
const DefaultPinDir = "/sys/fs/bpf"

// XDPMode selects how xdp_filter is attached.
type XDPMode uint8

const (
	// XDPDefault lets the kernel pick driver mode when available, else generic.
	XDPDefault XDPMode = iota
	XDPGeneric
	XDPDriver
	XDPOffload
)

func (m XDPMode) String() string {
	switch m {
	case XDPDefault:
		return "default"
	case XDPGeneric:
		return "generic"
	case XDPDriver:
		return "driver"
	case XDPOffload:
		return "offload"
	default:
		return fmt.Sprintf("xdp-mode(%d)", uint8(m))
	}
}

func ParseXDPMode(s string) (XDPMode, error) {
	switch s {
	case "", "default":
		return XDPDefault, nil
	case "generic", "skb":
		return XDPGeneric, nil
	case "driver", "native", "drv":
		return XDPDriver, nil
	case "offload", "hw":
		return XDPOffload, nil
	default:
		return 0, fmt.Errorf("unknown xdp mode %q (expected default, generic, driver or offload)", s)
	}
}

func (m XDPMode) flags() link.XDPAttachFlags {
	switch m {
	case XDPGeneric:
		return link.XDPGenericMode
	case XDPDriver:
		return link.XDPDriverMode
	case XDPOffload:
		return link.XDPOffloadMode
	default:
		return 0
	}
}
