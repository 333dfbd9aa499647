package frontend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tcassar-diss/xdpfilter/bpf"
	"github.com/tcassar-diss/xdpfilter/classifier"
	"github.com/tcassar-diss/xdpfilter/store"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Dataplane is what the loader drives. *bpf.Program is the real one.
type Dataplane interface {
	Store() *store.Store
	AttachIngress(iface string, mode bpf.XDPMode) error
	AttachEgress(iface string, priority uint16) error
	Publish(pinDir string) error
	ReadStats() (classifier.Counts, error)
	Watch(ctx context.Context, rec classifier.Recorder) error
	Teardown() error
}

// Loader seeds, attaches and publishes a dataplane, then holds it until cancelled.
type Loader struct {
	logger  *zap.SugaredLogger
	cfg     *Config
	dp      Dataplane
	metrics *Metrics
	csv     *classifier.CSVRecorder
	closers []func() error
}

func NewLoader(logger *zap.SugaredLogger, cfg *Config, dp Dataplane) *Loader {
	return &Loader{
		logger:  logger,
		cfg:     cfg,
		dp:      dp,
		metrics: NewMetrics(logger, dp.ReadStats),
	}
}

// Start seeds the deny list from the configured blocklist, attaches both hooks and
// publishes the deny tables. On failure everything done so far is torn down.
func (l *Loader) Start() error {
	initFns := []func() error{
		l.seed,
		l.openRecordCSV,
		l.attach,
		l.publish,
	}

	for _, fn := range initFns {
		if err := fn(); err != nil {
			if tErr := l.teardown(); tErr != nil {
				l.logger.Warnw("cleanup after failed start", "err", tErr)
			}

			return err
		}
	}

	return nil
}

func (l *Loader) seed() error {
	if l.cfg.Blocklist == "" {
		return nil
	}

	addrs, err := LoadBlocklist(l.cfg.Blocklist)
	if err != nil {
		return err
	}

	SeedDenyList(l.logger, &l.dp.Store().DenyList, addrs)

	return nil
}

func (l *Loader) openRecordCSV() error {
	if l.cfg.RecordCSV == "" {
		return nil
	}

	f, err := os.Create(l.cfg.RecordCSV)
	if err != nil {
		return fmt.Errorf("failed to create an output file for verdict records: %w", err)
	}

	rec, err := classifier.NewCSVRecorder(f)
	if err != nil {
		f.Close()

		return fmt.Errorf("failed to write record header: %w", err)
	}

	l.csv = rec
	l.closers = append(l.closers, rec.Flush, f.Close)

	return nil
}

func (l *Loader) attach() error {
	mode, err := l.cfg.XDPMode()
	if err != nil {
		return err
	}

	if err := l.dp.AttachIngress(l.cfg.Ingress.Interface, mode); err != nil {
		return fmt.Errorf("failed to attach ingress classifier: %w", err)
	}

	if err := l.dp.AttachEgress(l.cfg.EgressInterface(), l.cfg.Egress.Priority); err != nil {
		return fmt.Errorf("failed to attach egress classifier: %w", err)
	}

	return nil
}

func (l *Loader) publish() error {
	if err := l.dp.Publish(l.cfg.PinDir); err != nil {
		return fmt.Errorf("failed to publish deny tables: %w", err)
	}

	return nil
}

func (l *Loader) recorder() classifier.Recorder {
	recs := classifier.Recorders{classifier.NewLogRecorder(l.logger), l.metrics}
	if l.csv != nil {
		recs = append(recs, l.csv)
	}

	return recs
}

// Run blocks until ctx is cancelled, forwarding verdict events and serving metrics
// meanwhile, then tears the dataplane down. Cleanup failures are logged, not
// returned.
func (l *Loader) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := l.dp.Watch(gctx, l.recorder()); err != nil {
			l.logger.Warnw("stopped forwarding verdict events", "err", err)
		}

		return nil
	})

	if l.cfg.MetricsAddr != "" {
		g.Go(func() error {
			if err := l.metrics.Serve(gctx, l.cfg.MetricsAddr); err != nil {
				l.logger.Warnw("metrics unavailable", "err", err)
			}

			return nil
		})
	}

	l.logger.Infow("filtering until interrupted",
		"ingress", l.cfg.Ingress.Interface,
		"egress", l.cfg.EgressInterface(),
		"pin_dir", l.cfg.PinDir,
	)

	<-ctx.Done()
	l.logger.Infow("stopping: context cancelled")

	if err := g.Wait(); err != nil {
		l.logger.Warnw("background task failed", "err", err)
	}

	l.logStats()

	if err := l.teardown(); err != nil {
		l.logger.Warnw("teardown incomplete", "err", err)
	}

	return nil
}

func (l *Loader) teardown() error {
	errs := l.dp.Teardown()

	for _, fn := range l.closers {
		errs = multierr.Append(errs, fn())
	}

	l.closers = nil

	return errs
}

func (l *Loader) logStats() {
	stats, err := l.dp.ReadStats()
	if err != nil {
		l.logger.Warnw("failed to read stats map", "err", err)

		return
	}

	bts, err := json.Marshal(stats)
	if err != nil {
		l.logger.Warnw("failed to marshal stats", "err", err)

		return
	}

	l.logger.Infoln(string(bts))
}

// RunLoader loads the image, starts a Loader on it and runs until SIGINT or SIGTERM.
func RunLoader(ctx context.Context, logger *zap.SugaredLogger, cfg *Config) error {
	logger.Infoln("=== Launching xdpfilter ===")

	if cfg.Ingress.Interface == "" {
		return fmt.Errorf("%w: no ingress interface", ErrInvalidConfig)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	loadCfg, err := cfg.LoadCfg()
	if err != nil {
		return err
	}

	prog, err := bpf.LoadImage(logger, cfg.Image, loadCfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	l := NewLoader(logger, cfg, prog)

	if err := l.Start(); err != nil {
		return err
	}

	return l.Run(ctx)
}
