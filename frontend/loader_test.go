package frontend_test

import (
	"context"
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tcassar-diss/xdpfilter/bpf"
	"github.com/tcassar-diss/xdpfilter/classifier"
	"github.com/tcassar-diss/xdpfilter/frontend"
	"github.com/tcassar-diss/xdpfilter/store"
)

var (
	errNoSuchLink = errors.New("no such link")
	errUnpin      = errors.New("failed to unpin blocklist_v4: permission denied")
)

// fakeDataplane runs a Go ingress classifier over a MemoryStore. Watch replays
// frames pushed onto events through it.
type fakeDataplane struct {
	ms     *store.MemoryStore
	stats  *classifier.Stats
	events chan []byte

	attachErr   error
	teardownErr error

	mu        sync.Mutex
	calls     []string
	torndown  int
	published string
}

func newFakeDataplane() *fakeDataplane {
	return &fakeDataplane{
		ms:     store.NewMemoryStore(16, 16),
		stats:  &classifier.Stats{},
		events: make(chan []byte, 16),
	}
}

func (f *fakeDataplane) call(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, name)
}

func (f *fakeDataplane) Store() *store.Store { return &f.ms.Store }

func (f *fakeDataplane) AttachIngress(string, bpf.XDPMode) error {
	f.call("ingress")

	return f.attachErr
}

func (f *fakeDataplane) AttachEgress(string, uint16) error {
	f.call("egress")

	return nil
}

func (f *fakeDataplane) Publish(pinDir string) error {
	f.call("publish")
	f.published = pinDir

	return nil
}

func (f *fakeDataplane) ReadStats() (classifier.Counts, error) {
	return f.stats.Snapshot(), nil
}

func (f *fakeDataplane) Watch(ctx context.Context, rec classifier.Recorder) error {
	in := classifier.NewIngress(newNopLogger(), &f.ms.Store, &classifier.Cfg{
		Policy:   classifier.DefaultPolicy(),
		Recorder: rec,
		Stats:    f.stats,
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-f.events:
			in.Classify(frame)
		}
	}
}

func (f *fakeDataplane) Teardown() error {
	f.call("teardown")

	f.mu.Lock()
	defer f.mu.Unlock()

	f.torndown++

	return f.teardownErr
}

func loaderConfig(t *testing.T) *frontend.Config {
	cfg := frontend.DefaultConfig()
	cfg.Ingress.Interface = "eth0"
	cfg.PinDir = filepath.Join(t.TempDir(), "xdpfilter")

	return cfg
}

func TestLoaderStart(t *testing.T) {
	cfg := loaderConfig(t)
	cfg.Blocklist = writeFile(t, "blocklist", "192.0.2.1\n2001:db8::1\n")

	dp := newFakeDataplane()
	l := frontend.NewLoader(testLogger(t), cfg, dp)

	require.NoError(t, l.Start())
	require.Equal(t, []string{"ingress", "egress", "publish"}, dp.calls)
	require.Equal(t, cfg.PinDir, dp.published)

	ok, err := dp.ms.Contains(netip.MustParseAddr("2001:db8::1"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLoaderStartFailureTearsDown(t *testing.T) {
	dp := newFakeDataplane()
	dp.attachErr = errNoSuchLink

	l := frontend.NewLoader(testLogger(t), loaderConfig(t), dp)

	require.ErrorIs(t, l.Start(), errNoSuchLink)
	require.Equal(t, []string{"ingress", "teardown"}, dp.calls)
}

func TestLoaderStartBadBlocklist(t *testing.T) {
	cfg := loaderConfig(t)
	cfg.Blocklist = writeFile(t, "blocklist", "not-an-address\n")

	dp := newFakeDataplane()
	l := frontend.NewLoader(testLogger(t), cfg, dp)

	require.Error(t, l.Start())
	require.Equal(t, []string{"teardown"}, dp.calls)
}

func TestLoaderRun(t *testing.T) {
	cfg := loaderConfig(t)
	cfg.RecordCSV = filepath.Join(t.TempDir(), "records.csv")

	dp := newFakeDataplane()
	l := frontend.NewLoader(testLogger(t), cfg, dp)
	require.NoError(t, l.Start())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	dp.events <- tcpFrame(t, "198.51.100.9")

	require.Eventually(t, func() bool {
		return dp.stats.Snapshot().IngressPass == 1
	}, time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	require.Equal(t, 1, dp.torndown)

	// closers ran, so the CSV is flushed
	bts, err := os.ReadFile(cfg.RecordCSV)
	require.NoError(t, err)
	require.Len(t, strings.Split(strings.TrimSpace(string(bts)), "\n"), 2)
	require.Contains(t, string(bts), "ingress,ipv4,198.51.100.9,40000,pass")
}

func TestLoaderRunTeardownFailure(t *testing.T) {
	cfg := loaderConfig(t)
	cfg.RecordCSV = filepath.Join(t.TempDir(), "records.csv")

	dp := newFakeDataplane()
	dp.teardownErr = errUnpin

	l := frontend.NewLoader(testLogger(t), cfg, dp)
	require.NoError(t, l.Start())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// cleanup failures are logged, the run itself still succeeds
	require.NoError(t, l.Run(ctx))
	require.Equal(t, 1, dp.torndown)

	bts, err := os.ReadFile(cfg.RecordCSV)
	require.NoError(t, err)
	require.Equal(t, "hook,family,addr,port,verdict\n", string(bts))
}
