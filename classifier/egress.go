package classifier

import (
	"github.com/tcassar-diss/xdpfilter/store"
	"go.uber.org/zap"
)

// Egress classifies transmitted frames by destination. It never touches the rate
// trackers.
type Egress struct {
	logger *zap.SugaredLogger
	deny   *store.DenyList
	cfg    *Cfg
}

func NewEgress(logger *zap.SugaredLogger, s *store.Store, cfg *Cfg) *Egress {
	return &Egress{
		logger: logger,
		deny:   &s.DenyList,
		cfg:    cfg.withDefaults(),
	}
}

// Classify returns TCShot for frames addressed to a deny-listed destination and for
// frames too short to hold their headers. Everything else is TCPipe. Only the link
// and network headers are read, so egress records carry no port.
func (e *Egress) Classify(frame []byte) TCAction {
	action := e.classify(frame)
	e.cfg.Stats.egress(action)

	return action
}

func (e *Egress) classify(frame []byte) TCAction {
	network, err := ParseLink(frame)
	if err != nil {
		return TCShot
	}

	if network == NetworkOther {
		return TCPipe
	}

	pkt := Packet{Network: network}

	if _, err := ParseNetwork(frame, &pkt); err != nil {
		return TCShot
	}

	action := TCPipe

	if pkt.Network == NetworkIPv4 {
		if _, err := e.deny.DenyV4.Lookup(store.KeyV4(pkt.Dst.As4())); err == nil {
			action = TCShot
		}
	} else {
		if _, err := e.deny.DenyV6.Lookup(store.V6Key(pkt.Dst.As16())); err == nil {
			action = TCShot
		}
	}

	e.cfg.Recorder.Record(Record{
		Hook:    HookEgress,
		Family:  family(network),
		Addr:    pkt.Dst,
		Port:    pkt.Port,
		Verdict: action.String(),
	})

	return action
}
