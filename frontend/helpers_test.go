package frontend_test

import (
	"net"
	"net/netip"
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func testLogger(t *testing.T) *zap.SugaredLogger {
	return zaptest.NewLogger(t).Sugar()
}

// tcpFrame builds an Ethernet/IPv4/TCP SYN from src.
func tcpFrame(t *testing.T, src string) []byte {
	t.Helper()

	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true},
		&layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 0x01},
			DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 0x02},
			EthernetType: layers.EthernetTypeIPv4,
		},
		&layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      64,
			Protocol: layers.IPProtocolTCP,
			SrcIP:    net.IP(netip.MustParseAddr(src).AsSlice()),
			DstIP:    net.IP{10, 0, 0, 1},
		},
		&layers.TCP{SrcPort: 40000, DstPort: 443, SYN: true, Window: 1024},
	))

	return buf.Bytes()
}

func newNopLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
