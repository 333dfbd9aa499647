package classifier

import "sync/atomic"

// Counts is a point-in-time copy of the classifier counters. The kernel statistics
// map decodes into the same shape.
type Counts struct {
	IngressPass    uint64 `json:"ingress_pass"`
	IngressDrop    uint64 `json:"ingress_drop"`
	IngressAborted uint64 `json:"ingress_aborted"`
	AutoBlocked    uint64 `json:"auto_blocked"`
	EgressPipe     uint64 `json:"egress_pipe"`
	EgressShot     uint64 `json:"egress_shot"`
}

// Stats counts verdicts across concurrent classifier invocations.
type Stats struct {
	ingressPass    atomic.Uint64
	ingressDrop    atomic.Uint64
	ingressAborted atomic.Uint64
	autoBlocked    atomic.Uint64
	egressPipe     atomic.Uint64
	egressShot     atomic.Uint64
}

func (s *Stats) ingress(a XDPAction) {
	switch a {
	case XDPPass:
		s.ingressPass.Add(1)
	case XDPDrop:
		s.ingressDrop.Add(1)
	default:
		s.ingressAborted.Add(1)
	}
}

func (s *Stats) egress(a TCAction) {
	if a == TCShot {
		s.egressShot.Add(1)
	} else {
		s.egressPipe.Add(1)
	}
}

func (s *Stats) Snapshot() Counts {
	return Counts{
		IngressPass:    s.ingressPass.Load(),
		IngressDrop:    s.ingressDrop.Load(),
		IngressAborted: s.ingressAborted.Load(),
		AutoBlocked:    s.autoBlocked.Load(),
		EgressPipe:     s.egressPipe.Load(),
		EgressShot:     s.egressShot.Load(),
	}
}
