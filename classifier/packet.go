package classifier

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

const (
	EthHdrLen  = 14
	IPv4HdrLen = 20
	IPv6HdrLen = 40
	TCPHdrLen  = 20
	UDPHdrLen  = 8
	ICMPHdrLen = 8
)

const (
	EtherTypeIPv4 = 0x0800
	EtherTypeIPv6 = 0x86dd
)

const (
	ProtoICMP   = 1
	ProtoTCP    = 6
	ProtoUDP    = 17
	ProtoICMPv6 = 58
)

// ErrBounds is returned when a header read would run past the end of the frame. It
// only ever concerns the frame being parsed.
var ErrBounds = errors.New("header read beyond end of frame")

// Network is the link-layer payload type.
type Network uint8

const (
	NetworkOther Network = iota
	NetworkIPv4
	NetworkIPv6
)

func (n Network) String() string {
	switch n {
	case NetworkIPv4:
		return "ipv4"
	case NetworkIPv6:
		return "ipv6"
	default:
		return "other"
	}
}

// Transport is the transport header type.
type Transport uint8

const (
	TransportOther Transport = iota
	TransportTCP
	TransportUDP
	TransportICMP
)

func (t Transport) String() string {
	switch t {
	case TransportTCP:
		return "tcp"
	case TransportUDP:
		return "udp"
	case TransportICMP:
		return "icmp"
	default:
		return "other"
	}
}

// Packet is what the classifiers extract from a frame. Port is the transport source
// port, or the echo identifier for ICMP.
type Packet struct {
	Network   Network
	Transport Transport
	Protocol  uint8
	Src       netip.Addr
	Dst       netip.Addr
	Port      uint16
}

// header returns frame[off:off+n] or ErrBounds.
func header(frame []byte, off, n int) ([]byte, error) {
	if off < 0 || off+n > len(frame) {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, frame is %d", ErrBounds, n, off, len(frame))
	}

	return frame[off : off+n], nil
}

// ParseLink reads the Ethernet header and classifies its payload.
func ParseLink(frame []byte) (Network, error) {
	eth, err := header(frame, 0, EthHdrLen)
	if err != nil {
		return NetworkOther, err
	}

	switch binary.BigEndian.Uint16(eth[12:14]) {
	case EtherTypeIPv4:
		return NetworkIPv4, nil
	case EtherTypeIPv6:
		return NetworkIPv6, nil
	default:
		return NetworkOther, nil
	}
}

// ParseNetwork fills the addresses and protocol of pkt and returns the offset of the
// transport header. pkt.Network must already be set by ParseLink.
func ParseNetwork(frame []byte, pkt *Packet) (int, error) {
	switch pkt.Network {
	case NetworkIPv4:
		ip, err := header(frame, EthHdrLen, IPv4HdrLen)
		if err != nil {
			return 0, err
		}

		ihl := int(ip[0]&0x0f) << 2
		if ihl < IPv4HdrLen {
			return 0, fmt.Errorf("%w: ipv4 header length %d", ErrBounds, ihl)
		}

		pkt.Protocol = ip[9]
		pkt.Src = netip.AddrFrom4([4]byte(ip[12:16]))
		pkt.Dst = netip.AddrFrom4([4]byte(ip[16:20]))

		return EthHdrLen + ihl, nil
	case NetworkIPv6:
		ip, err := header(frame, EthHdrLen, IPv6HdrLen)
		if err != nil {
			return 0, err
		}

		pkt.Protocol = ip[6]
		pkt.Src = netip.AddrFrom16([16]byte(ip[8:24]))
		pkt.Dst = netip.AddrFrom16([16]byte(ip[24:40]))

		return EthHdrLen + IPv6HdrLen, nil
	default:
		return 0, fmt.Errorf("no network header for %s payload", pkt.Network)
	}
}

// ParseTransport tags the transport header at off and extracts the port. An
// unrecognised protocol is tagged TransportOther with no read performed.
func ParseTransport(frame []byte, off int, pkt *Packet) error {
	icmp := uint8(ProtoICMP)
	if pkt.Network == NetworkIPv6 {
		icmp = ProtoICMPv6
	}

	switch pkt.Protocol {
	case ProtoTCP:
		tcp, err := header(frame, off, TCPHdrLen)
		if err != nil {
			return err
		}

		pkt.Transport = TransportTCP
		pkt.Port = binary.BigEndian.Uint16(tcp[0:2])
	case ProtoUDP:
		udp, err := header(frame, off, UDPHdrLen)
		if err != nil {
			return err
		}

		pkt.Transport = TransportUDP
		pkt.Port = binary.BigEndian.Uint16(udp[0:2])
	case icmp:
		hdr, err := header(frame, off, ICMPHdrLen)
		if err != nil {
			return err
		}

		// echo identifier, in place of a port
		pkt.Transport = TransportICMP
		pkt.Port = binary.BigEndian.Uint16(hdr[4:6])
	default:
		pkt.Transport = TransportOther
	}

	return nil
}
