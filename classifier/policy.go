package classifier

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultWindow    = time.Second
	DefaultThreshold = 500
)

var ErrInvalidPolicy = errors.New("invalid policy")

// TransportPolicy decides what happens to IP packets whose transport protocol is not
// TCP, UDP or ICMP.
type TransportPolicy uint8

const (
	// TransportAbort aborts classification of the frame (XDP_ABORTED), which drops it.
	TransportAbort TransportPolicy = iota
	// TransportPass classifies the frame with no port information.
	TransportPass
)

func (p TransportPolicy) String() string {
	switch p {
	case TransportAbort:
		return "abort"
	case TransportPass:
		return "pass"
	default:
		return fmt.Sprintf("transport-policy(%d)", uint8(p))
	}
}

// ParseTransportPolicy parses "abort" or "pass". The empty string is "abort".
func ParseTransportPolicy(s string) (TransportPolicy, error) {
	switch s {
	case "", "abort":
		return TransportAbort, nil
	case "pass":
		return TransportPass, nil
	default:
		return 0, fmt.Errorf("%w: unknown transport policy %q (expected abort or pass)", ErrInvalidPolicy, s)
	}
}

// Policy holds the per-deployment constants. A source sending more than Threshold
// packets within one fixed Window is added to the deny table.
type Policy struct {
	Window           time.Duration
	Threshold        uint32
	UnknownTransport TransportPolicy
}

func DefaultPolicy() Policy {
	return Policy{
		Window:           DefaultWindow,
		Threshold:        DefaultThreshold,
		UnknownTransport: TransportAbort,
	}
}

func (p Policy) Validate() error {
	if p.Window <= 0 {
		return fmt.Errorf("%w: window must be positive, got %s", ErrInvalidPolicy, p.Window)
	}

	if p.Threshold == 0 {
		return fmt.Errorf("%w: threshold must be positive", ErrInvalidPolicy)
	}

	if p.UnknownTransport > TransportPass {
		return fmt.Errorf("%w: %s", ErrInvalidPolicy, p.UnknownTransport)
	}

	return nil
}
