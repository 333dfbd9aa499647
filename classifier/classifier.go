// Package classifier implements the per-frame ingress and egress decisions in Go. The
// kernel programs in bpf/xdpfilter.c make the same decisions; this package is what the
// replay command and the tests run.
package classifier

import "github.com/tcassar-diss/xdpfilter/store"

// Cfg configures a classifier. Recorder receives one record per IP frame and Stats is
// shared between the ingress and egress classifiers when both are built from one Cfg.
type Cfg struct {
	Policy   Policy
	Clock    Clock
	Recorder Recorder
	Stats    *Stats
}

// DefaultCfg is the default policy on the monotonic clock with records discarded.
func DefaultCfg() *Cfg {
	return &Cfg{
		Policy:   DefaultPolicy(),
		Clock:    MonotonicClock,
		Recorder: Discard,
		Stats:    &Stats{},
	}
}

func (c *Cfg) withDefaults() *Cfg {
	out := *c

	if out.Clock == nil {
		out.Clock = MonotonicClock
	}

	if out.Recorder == nil {
		out.Recorder = Discard
	}

	if out.Stats == nil {
		out.Stats = &Stats{}
	}

	return &out
}

func family(n Network) store.Family {
	switch n {
	case NetworkIPv4:
		return store.FamilyV4
	case NetworkIPv6:
		return store.FamilyV6
	default:
		return store.FamilyOther
	}
}
