package classifier_test

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tcassar-diss/xdpfilter/classifier"
	"github.com/tcassar-diss/xdpfilter/store"
	"go.uber.org/zap"
)

func TestEgress(t *testing.T) {
	ms := store.NewMemoryStore(16, 16)
	require.NoError(t, ms.Add(netip.MustParseAddr("198.51.100.1")))
	require.NoError(t, ms.Add(netip.MustParseAddr("2001:db8::dead")))

	rec := &collector{}
	cfg := classifier.DefaultCfg()
	cfg.Recorder = rec

	eg := classifier.NewEgress(zap.NewNop().Sugar(), &ms.Store, cfg)

	short := toV4(t, "198.51.100.2")

	shortIHL := toV4(t, "198.51.100.2")
	shortIHL[classifier.EthHdrLen] = 0x44

	tests := []struct {
		name  string
		frame []byte
		want  classifier.TCAction
	}{
		{"blocked ipv4 destination", toV4(t, "198.51.100.1"), classifier.TCShot},
		{"allowed ipv4 destination", toV4(t, "198.51.100.2"), classifier.TCPipe},
		{"blocked ipv6 destination", toV6(t, "2001:db8::dead"), classifier.TCShot},
		{"allowed ipv6 destination", toV6(t, "2001:db8::beef"), classifier.TCPipe},
		{"non ip", arp(t), classifier.TCPipe},
		{"short ethernet", short[:6], classifier.TCShot},
		{"short ipv4", short[:classifier.EthHdrLen+4], classifier.TCShot},
		{"ipv4 ihl below 5", shortIHL, classifier.TCShot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, eg.Classify(tt.frame))
		})
	}

	// one record for each of the four complete ip frames
	recs := rec.all()
	require.Len(t, recs, 4)
	require.Equal(t, classifier.Record{
		Hook:    classifier.HookEgress,
		Family:  store.FamilyV4,
		Addr:    netip.MustParseAddr("198.51.100.1"),
		Verdict: "shot",
	}, recs[0])

	require.Zero(t, ms.TrackerV4Mem.Len())
	require.Equal(t, uint64(5), cfg.Stats.Snapshot().EgressShot)
	require.Equal(t, uint64(3), cfg.Stats.Snapshot().EgressPipe)
}

func TestEgressIgnoresSource(t *testing.T) {
	ms := store.NewMemoryStore(16, 16)
	require.NoError(t, ms.Add(netip.MustParseAddr("10.0.0.1")))

	eg := classifier.NewEgress(zap.NewNop().Sugar(), &ms.Store, classifier.DefaultCfg())

	// toV4 always sends from 10.0.0.1
	require.Equal(t, classifier.TCPipe, eg.Classify(toV4(t, "198.51.100.2")))
}
