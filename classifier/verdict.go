package classifier

import "fmt"

// XDPAction is the verdict of the ingress classifier. Values match the kernel's
// enum xdp_action.
type XDPAction uint32

const (
	XDPAborted XDPAction = 0
	XDPDrop    XDPAction = 1
	XDPPass    XDPAction = 2
)

func (a XDPAction) String() string {
	switch a {
	case XDPAborted:
		return "aborted"
	case XDPDrop:
		return "drop"
	case XDPPass:
		return "pass"
	default:
		return fmt.Sprintf("xdp(%d)", uint32(a))
	}
}

// TCAction is the verdict of the egress classifier. Values match TC_ACT_*.
type TCAction int32

const (
	TCShot TCAction = 2
	TCPipe TCAction = 3
)

func (a TCAction) String() string {
	switch a {
	case TCShot:
		return "shot"
	case TCPipe:
		return "pipe"
	default:
		return fmt.Sprintf("tc(%d)", int32(a))
	}
}

// Hook identifies which classifier produced a record.
type Hook uint8

const (
	HookIngress Hook = 1
	HookEgress  Hook = 2
)

func (h Hook) String() string {
	switch h {
	case HookIngress:
		return "ingress"
	case HookEgress:
		return "egress"
	default:
		return "unknown"
	}
}
