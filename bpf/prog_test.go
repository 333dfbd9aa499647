package bpf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cilium/ebpf"
	"github.com/stretchr/testify/require"
)

// publishedProgram is a Program over bare deny maps, published under a fresh
// directory on bpffs.
func publishedProgram(t *testing.T) (*Program, string) {
	t.Helper()

	requireRoot(t)

	if err := checkBPFFS(DefaultPinDir); err != nil {
		t.Skipf("no bpffs at %s: %v", DefaultPinDir, err)
	}

	dir, err := os.MkdirTemp(DefaultPinDir, "xdpfilter-test-")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	p := &Program{
		logger: testLogger(t),
		coll: &ebpf.Collection{
			Maps: map[string]*ebpf.Map{
				MapDenyV4: newHashMap(t, 4, 4, 4),
				MapDenyV6: newHashMap(t, 16, 16, 4),
			},
		},
	}

	require.NoError(t, p.Publish(dir))

	return p, dir
}

func TestPublishTwice(t *testing.T) {
	p, dir := publishedProgram(t)

	other := &Program{logger: testLogger(t), coll: p.coll}
	require.ErrorIs(t, other.Publish(dir), ErrAlreadyPublished)

	require.NoError(t, p.Teardown())
}

func TestTeardownUnpins(t *testing.T) {
	p, dir := publishedProgram(t)

	require.NoError(t, p.Teardown())

	for _, name := range []string{MapDenyV4, MapDenyV6} {
		_, err := os.Lstat(filepath.Join(dir, name))
		require.ErrorIs(t, err, os.ErrNotExist)
	}
}

func TestTeardownPinAlreadyGone(t *testing.T) {
	p, dir := publishedProgram(t)

	require.NoError(t, os.Remove(filepath.Join(dir, MapDenyV4)))

	// an absent pin is already unpublished
	require.NoError(t, p.Teardown())

	_, err := os.Lstat(filepath.Join(dir, MapDenyV6))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestTeardownUnpinFailure(t *testing.T) {
	p, dir := publishedProgram(t)

	// a non-empty directory where the v4 pin was cannot be removed
	v4 := filepath.Join(dir, MapDenyV4)
	require.NoError(t, os.Remove(v4))
	require.NoError(t, os.MkdirAll(filepath.Join(v4, "busy"), 0o700))

	err := p.Teardown()
	require.Error(t, err)
	require.ErrorContains(t, err, MapDenyV4)
	require.NotContains(t, err.Error(), MapDenyV6)

	// the failure does not stop the next table from being unpinned
	_, err = os.Lstat(filepath.Join(dir, MapDenyV6))
	require.ErrorIs(t, err, os.ErrNotExist)
}
