package frontend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tcassar-diss/xdpfilter/classifier"
	"go.uber.org/zap"
)

// StatsSource reads verdict counters, from the kernel or from a Go classifier.
type StatsSource func() (classifier.Counts, error)

type statsCollector struct {
	logger      *zap.SugaredLogger
	source      StatsSource
	verdicts    *prometheus.Desc
	autoBlocked *prometheus.Desc
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.verdicts
	ch <- c.autoBlocked
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	counts, err := c.source()
	if err != nil {
		c.logger.Warnw("failed to read stats for metrics", "err", err)
		ch <- prometheus.NewInvalidMetric(c.verdicts, err)

		return
	}

	for _, v := range []struct {
		hook, verdict string
		n             uint64
	}{
		{"ingress", classifier.XDPPass.String(), counts.IngressPass},
		{"ingress", classifier.XDPDrop.String(), counts.IngressDrop},
		{"ingress", classifier.XDPAborted.String(), counts.IngressAborted},
		{"egress", classifier.TCPipe.String(), counts.EgressPipe},
		{"egress", classifier.TCShot.String(), counts.EgressShot},
	} {
		ch <- prometheus.MustNewConstMetric(c.verdicts, prometheus.CounterValue, float64(v.n), v.hook, v.verdict)
	}

	ch <- prometheus.MustNewConstMetric(c.autoBlocked, prometheus.CounterValue, float64(counts.AutoBlocked))
}

// Metrics exports the verdict counters and counts the records it is handed. It is a
// classifier.Recorder.
type Metrics struct {
	logger   *zap.SugaredLogger
	registry *prometheus.Registry
	records  *prometheus.CounterVec
}

func NewMetrics(logger *zap.SugaredLogger, source StatsSource) *Metrics {
	m := &Metrics{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xdpfilter_records_total",
				Help: "Per-packet verdict records received from the classifiers",
			},
			[]string{"hook", "family", "verdict"},
		),
	}

	m.registry.MustRegister(m.records)
	m.registry.MustRegister(&statsCollector{
		logger: logger,
		source: source,
		verdicts: prometheus.NewDesc(
			"xdpfilter_packets_total",
			"Packets classified, by hook and verdict",
			[]string{"hook", "verdict"}, nil,
		),
		autoBlocked: prometheus.NewDesc(
			"xdpfilter_auto_blocked_total",
			"Sources added to the deny list by the rate limiter",
			nil, nil,
		),
	})

	return m
}

func (m *Metrics) Record(r classifier.Record) {
	m.records.WithLabelValues(r.Hook.String(), r.Family.String(), r.Verdict).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	m.logger.Infow("metrics server listening", "addr", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}

	return nil
}
