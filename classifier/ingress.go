package classifier

import (
	"github.com/tcassar-diss/xdpfilter/store"
	"go.uber.org/zap"
)

// Ingress classifies received frames: deny-listed sources drop, everything else
// passes and is counted by the rate limiter.
type Ingress struct {
	logger  *zap.SugaredLogger
	store   *store.Store
	cfg     *Cfg
	limiter *RateLimiter
}

func NewIngress(logger *zap.SugaredLogger, s *store.Store, cfg *Cfg) *Ingress {
	cfg = cfg.withDefaults()

	return &Ingress{
		logger:  logger,
		store:   s,
		cfg:     cfg,
		limiter: NewRateLimiter(logger, s, cfg.Policy, cfg.Clock, cfg.Stats),
	}
}

// Classify returns the verdict for one frame. A header read beyond the frame aborts
// that frame only. Non-IP frames pass without a record; IP frames whose source
// address was read produce exactly one record.
func (in *Ingress) Classify(frame []byte) XDPAction {
	action := in.classify(frame)
	in.cfg.Stats.ingress(action)

	return action
}

func (in *Ingress) classify(frame []byte) XDPAction {
	network, err := ParseLink(frame)
	if err != nil {
		return XDPAborted
	}

	if network == NetworkOther {
		return XDPPass
	}

	pkt := Packet{Network: network}

	off, err := ParseNetwork(frame, &pkt)
	if err != nil {
		return XDPAborted
	}

	action := in.decide(frame, off, &pkt)

	in.cfg.Recorder.Record(Record{
		Hook:    HookIngress,
		Family:  family(network),
		Addr:    pkt.Src,
		Port:    pkt.Port,
		Verdict: action.String(),
	})

	return action
}

func (in *Ingress) decide(frame []byte, off int, pkt *Packet) XDPAction {
	if err := ParseTransport(frame, off, pkt); err != nil {
		return XDPAborted
	}

	if pkt.Transport == TransportOther && in.cfg.Policy.UnknownTransport == TransportAbort {
		return XDPAborted
	}

	if pkt.Network == NetworkIPv4 {
		key := store.KeyV4(pkt.Src.As4())
		if _, err := in.store.DenyV4.Lookup(key); err == nil {
			return XDPDrop
		}

		in.limiter.ObserveV4(key)

		return XDPPass
	}

	key := store.V6Key(pkt.Src.As16())
	if _, err := in.store.DenyV6.Lookup(key); err == nil {
		return XDPDrop
	}

	in.limiter.ObserveV6(key)

	return XDPPass
}
