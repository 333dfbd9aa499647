package classifier_test

import (
	"net"
	"net/netip"
	"sync"
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/require"
	"github.com/tcassar-diss/xdpfilter/classifier"
)

var (
	srcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	dstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}

	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))

	return buf.Bytes()
}

func eth(t layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: t}
}

func ipv4(src, dst string, proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.IP(netip.MustParseAddr(src).AsSlice()),
		DstIP:    net.IP(netip.MustParseAddr(dst).AsSlice()),
	}
}

func ipv6(src, dst string, next layers.IPProtocol) *layers.IPv6 {
	return &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: next,
		SrcIP:      net.IP(netip.MustParseAddr(src).AsSlice()),
		DstIP:      net.IP(netip.MustParseAddr(dst).AsSlice()),
	}
}

func tcp(sport uint16) *layers.TCP {
	return &layers.TCP{SrcPort: layers.TCPPort(sport), DstPort: 80, SYN: true, Window: 1024}
}

func udp(sport uint16) *layers.UDP {
	return &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: 53}
}

func tcpV4(t *testing.T, src string, sport uint16) []byte {
	return serialize(t, eth(layers.EthernetTypeIPv4), ipv4(src, "10.0.0.1", layers.IPProtocolTCP), tcp(sport))
}

func tcpV6(t *testing.T, src string, sport uint16) []byte {
	return serialize(t, eth(layers.EthernetTypeIPv6), ipv6(src, "fd00::1", layers.IPProtocolTCP), tcp(sport))
}

func toV4(t *testing.T, dst string) []byte {
	return serialize(t, eth(layers.EthernetTypeIPv4), ipv4("10.0.0.1", dst, layers.IPProtocolUDP), udp(4000))
}

func toV6(t *testing.T, dst string) []byte {
	return serialize(t, eth(layers.EthernetTypeIPv6), ipv6("fd00::1", dst, layers.IPProtocolUDP), udp(4000))
}

func arp(t *testing.T) []byte {
	return serialize(t, eth(layers.EthernetTypeARP), gopacket.Payload(make([]byte, 28)))
}

// collector keeps every record it is handed.
type collector struct {
	mu      sync.Mutex
	records []classifier.Record
}

func (c *collector) Record(r classifier.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = append(c.records, r)
}

func (c *collector) all() []classifier.Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]classifier.Record(nil), c.records...)
}

// fakeClock is a manually advanced nanosecond clock.
type fakeClock struct {
	mu  sync.Mutex
	now uint64
}

func (f *fakeClock) read() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.now
}

func (f *fakeClock) advance(ns uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now += ns
}
