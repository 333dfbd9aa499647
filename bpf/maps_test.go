package bpf

import (
	"os"
	"testing"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/rlimit"
	"github.com/stretchr/testify/require"
	"github.com/tcassar-diss/xdpfilter/store"
)

func requireRoot(t *testing.T) {
	t.Helper()

	if os.Geteuid() != 0 {
		t.Skip("creating bpf maps needs root")
	}

	require.NoError(t, rlimit.RemoveMemlock())
}

func newHashMap(t *testing.T, keySize, valueSize, capacity uint32) *ebpf.Map {
	t.Helper()

	m, err := ebpf.NewMap(&ebpf.MapSpec{
		Type:       ebpf.Hash,
		KeySize:    keySize,
		ValueSize:  valueSize,
		MaxEntries: capacity,
	})
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	return m
}

func TestHashTableCapacity(t *testing.T) {
	requireRoot(t)

	tbl := NewHashTable[store.V4Key, uint32](MapDenyV4, newHashMap(t, 4, 4, 2))

	require.NoError(t, tbl.Insert(1, store.SentinelV4))
	require.NoError(t, tbl.Insert(2, store.SentinelV4))
	require.ErrorIs(t, tbl.Insert(3, store.SentinelV4), store.ErrCapacity)

	// replacing an existing key is not subject to capacity
	require.NoError(t, tbl.Insert(2, store.SentinelV4))

	_, err := tbl.Lookup(1)
	require.NoError(t, err)

	_, err = tbl.Lookup(3)
	require.ErrorIs(t, err, store.ErrKeyNotExist)

	require.NoError(t, tbl.Delete(1))
	require.ErrorIs(t, tbl.Delete(1), store.ErrKeyNotExist)
}

func TestHashTableTrackerEntry(t *testing.T) {
	requireRoot(t)

	tbl := NewHashTable[store.V6Key, store.TrackerEntry](MapTrackerV6, newHashMap(t, 16, 16, 4))

	key := store.V6Key{0x20, 0x01, 0x0d, 0xb8, 15: 1}
	require.NoError(t, tbl.Insert(key, store.TrackerEntry{LastUpdate: 42, PacketCount: 7}))

	got, err := tbl.Lookup(key)
	require.NoError(t, err)
	require.Equal(t, uint64(42), got.LastUpdate)
	require.Equal(t, uint32(7), got.PacketCount)
}

func TestOpenDenyTablesNotPublished(t *testing.T) {
	requireRoot(t)

	_, err := OpenDenyTables(t.TempDir())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestLoadImage(t *testing.T) {
	requireRoot(t)

	path := os.Getenv("XDPFILTER_IMAGE")
	if path == "" {
		t.Skip("XDPFILTER_IMAGE not set")
	}

	cfg := DefaultLoadCfg()
	cfg.DenyCapacity = 8

	p, err := LoadImage(testLogger(t), path, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, p.Teardown()) })

	counts, err := p.ReadStats()
	require.NoError(t, err)
	require.Zero(t, counts.IngressPass)

	require.NoError(t, p.Store().Add(mustAddr("192.0.2.1")))

	ok, err := p.Store().Contains(mustAddr("192.0.2.1"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLoadImageMalformed(t *testing.T) {
	requireRoot(t)

	path := t.TempDir() + "/bad.o"
	require.NoError(t, os.WriteFile(path, []byte("not an elf"), 0o600))

	_, err := LoadImage(testLogger(t), path, DefaultLoadCfg())
	require.ErrorIs(t, err, ErrLoad)
}
