package frontend_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tcassar-diss/xdpfilter/classifier"
	"github.com/tcassar-diss/xdpfilter/frontend"
	"github.com/tcassar-diss/xdpfilter/store"
)

func scrape(t *testing.T, m *frontend.Metrics) (int, string) {
	t.Helper()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func TestMetrics(t *testing.T) {
	m := frontend.NewMetrics(testLogger(t), func() (classifier.Counts, error) {
		return classifier.Counts{IngressPass: 7, IngressDrop: 3, AutoBlocked: 1, EgressShot: 2}, nil
	})

	m.Record(classifier.Record{
		Hook:    classifier.HookIngress,
		Family:  store.FamilyV4,
		Addr:    netip.MustParseAddr("192.0.2.1"),
		Verdict: classifier.XDPDrop.String(),
	})

	code, body := scrape(t, m)
	require.Equal(t, http.StatusOK, code)

	for _, line := range []string{
		`xdpfilter_packets_total{hook="ingress",verdict="pass"} 7`,
		`xdpfilter_packets_total{hook="ingress",verdict="drop"} 3`,
		`xdpfilter_packets_total{hook="egress",verdict="shot"} 2`,
		`xdpfilter_packets_total{hook="egress",verdict="pipe"} 0`,
		`xdpfilter_auto_blocked_total 1`,
		`xdpfilter_records_total{family="ipv4",hook="ingress",verdict="drop"} 1`,
	} {
		require.Contains(t, body, line)
	}
}

func TestMetricsSourceError(t *testing.T) {
	m := frontend.NewMetrics(testLogger(t), func() (classifier.Counts, error) {
		return classifier.Counts{}, errors.New("map closed")
	})

	code, _ := scrape(t, m)
	require.Equal(t, http.StatusInternalServerError, code)
}
