package bpf

import (
	"bytes"
	"encoding/binary"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tcassar-diss/xdpfilter/classifier"
	"github.com/tcassar-diss/xdpfilter/store"
)

func rawEvent(t *testing.T, ev verdictEvent) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, ev))
	require.Equal(t, verdictEventSize, buf.Len())

	return buf.Bytes()
}

func TestDecodeEvent(t *testing.T) {
	v6 := netip.MustParseAddr("2001:db8::7")

	tests := []struct {
		name string
		ev   verdictEvent
		want classifier.Record
	}{
		{
			name: "ingress ipv4 drop",
			ev: verdictEvent{
				Hook:   uint8(classifier.HookIngress),
				Family: uint8(store.FamilyV4),
				Port:   41000,
				Action: uint32(classifier.XDPDrop),
				Addr:   [16]byte{192, 0, 2, 7},
			},
			want: classifier.Record{
				Hook:    classifier.HookIngress,
				Family:  store.FamilyV4,
				Addr:    netip.MustParseAddr("192.0.2.7"),
				Port:    41000,
				Verdict: "drop",
			},
		},
		{
			name: "egress ipv6 shot",
			ev: verdictEvent{
				Hook:   uint8(classifier.HookEgress),
				Family: uint8(store.FamilyV6),
				Action: uint32(classifier.TCShot),
				Addr:   v6.As16(),
			},
			want: classifier.Record{
				Hook:    classifier.HookEgress,
				Family:  store.FamilyV6,
				Addr:    v6,
				Verdict: "shot",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeEvent(rawEvent(t, tt.ev))
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeEventMalformed(t *testing.T) {
	_, err := decodeEvent(make([]byte, verdictEventSize-1))
	require.Error(t, err)

	_, err = decodeEvent(rawEvent(t, verdictEvent{Hook: 1, Family: 5}))
	require.Error(t, err)

	_, err = decodeEvent(rawEvent(t, verdictEvent{Hook: 9, Family: 4}))
	require.Error(t, err)
}

func TestParseXDPMode(t *testing.T) {
	tests := []struct {
		in      string
		want    XDPMode
		wantErr bool
	}{
		{"", XDPDefault, false},
		{"default", XDPDefault, false},
		{"generic", XDPGeneric, false},
		{"native", XDPDriver, false},
		{"offload", XDPOffload, false},
		{"turbo", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseXDPMode(tt.in)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.NotEmpty(t, got.String())
		})
	}
}
