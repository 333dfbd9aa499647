package bpf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/rlimit"
	"github.com/tcassar-diss/xdpfilter/classifier"
	"github.com/tcassar-diss/xdpfilter/store"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// LoadCfg is frozen into the image at load time: capacities size the maps and the
// policy is written to read-only globals.
type LoadCfg struct {
	Policy          classifier.Policy
	DenyCapacity    uint32
	TrackerCapacity uint32
}

func DefaultLoadCfg() *LoadCfg {
	return &LoadCfg{
		Policy:          classifier.DefaultPolicy(),
		DenyCapacity:    1024,
		TrackerCapacity: 1024,
	}
}

// Program is a loaded xdpfilter image.
//
// Using Program takes four steps: LoadImage creates the maps and programs, the
// Attach methods bind the classifiers to interfaces, Publish pins the deny tables,
// and Teardown undoes all of it.
type Program struct {
	logger *zap.SugaredLogger
	coll   *ebpf.Collection
	store  *store.Store

	ingress link.Link
	egress  *tcHook
	pinned  []string
}

// LoadImage loads the compiled image at path into the kernel.
func LoadImage(logger *zap.SugaredLogger, path string, cfg *LoadCfg) (*Program, error) {
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}

	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("failed to remove memlock rlimit: %w", err)
	}

	spec, err := ebpf.LoadCollectionSpec(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, path, err)
	}

	if err := configure(spec, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, path, err)
	}

	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		var ve *ebpf.VerifierError
		if errors.As(err, &ve) {
			logger.Errorw("verifier rejected program", "log", fmt.Sprintf("%+v", ve))

			return nil, fmt.Errorf("%w: %w", ErrVerification, err)
		}

		return nil, fmt.Errorf("%w: failed to create collection: %w", ErrLoad, err)
	}

	logger.Infow("loaded bpf image",
		"path", path,
		"window", cfg.Policy.Window,
		"threshold", cfg.Policy.Threshold,
		"unknown_transport", cfg.Policy.UnknownTransport.String(),
		"deny_capacity", cfg.DenyCapacity,
		"tracker_capacity", cfg.TrackerCapacity,
	)

	return &Program{
		logger: logger,
		coll:   coll,
		store: &store.Store{
			DenyList: store.DenyList{
				DenyV4: NewHashTable[store.V4Key, uint32](MapDenyV4, coll.Maps[MapDenyV4]),
				DenyV6: NewHashTable[store.V6Key, [16]byte](MapDenyV6, coll.Maps[MapDenyV6]),
			},
			TrackerV4: NewHashTable[store.V4Key, store.TrackerEntry](MapTrackerV4, coll.Maps[MapTrackerV4]),
			TrackerV6: NewHashTable[store.V6Key, store.TrackerEntry](MapTrackerV6, coll.Maps[MapTrackerV6]),
		},
	}, nil
}

func configure(spec *ebpf.CollectionSpec, cfg *LoadCfg) error {
	for _, name := range []string{ProgIngress, ProgEgress} {
		if _, ok := spec.Programs[name]; !ok {
			return fmt.Errorf("image has no program %s", name)
		}
	}

	capacities := map[string]uint32{
		MapDenyV4:    cfg.DenyCapacity,
		MapDenyV6:    cfg.DenyCapacity,
		MapTrackerV4: cfg.TrackerCapacity,
		MapTrackerV6: cfg.TrackerCapacity,
	}

	for name, capacity := range capacities {
		m, ok := spec.Maps[name]
		if !ok {
			return fmt.Errorf("image has no map %s", name)
		}

		if capacity == 0 {
			return fmt.Errorf("capacity of %s must be positive", name)
		}

		m.MaxEntries = capacity
	}

	for _, name := range []string{MapStats, MapEvents} {
		if _, ok := spec.Maps[name]; !ok {
			return fmt.Errorf("image has no map %s", name)
		}
	}

	var unknownPass uint8
	if cfg.Policy.UnknownTransport == classifier.TransportPass {
		unknownPass = 1
	}

	vars := map[string]any{
		varWindow:           uint64(cfg.Policy.Window.Nanoseconds()),
		varThreshold:        cfg.Policy.Threshold,
		varUnknownTransport: unknownPass,
	}

	for name, value := range vars {
		v, ok := spec.Variables[name]
		if !ok {
			return fmt.Errorf("image has no variable %s", name)
		}

		if err := v.Set(value); err != nil {
			return fmt.Errorf("failed to set %s: %w", name, err)
		}
	}

	return nil
}

// Store exposes the live kernel maps.
func (p *Program) Store() *store.Store {
	return p.store
}

// AttachIngress attaches xdp_filter to iface's receive path.
func (p *Program) AttachIngress(iface string, mode XDPMode) error {
	if p.ingress != nil {
		return fmt.Errorf("%w: ingress already attached", ErrAttach)
	}

	idx, err := linkIndex(iface)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAttach, err)
	}

	l, err := link.AttachXDP(link.XDPOptions{
		Program:   p.coll.Programs[ProgIngress],
		Interface: idx,
		Flags:     mode.flags(),
	})
	if err != nil {
		return fmt.Errorf("%w: xdp on %s (%s mode): %w", ErrAttach, iface, mode, err)
	}

	p.ingress = l

	p.logger.Infow("attached ingress hook", "iface", iface, "mode", mode.String())

	return nil
}

// AttachEgress attaches tc_egress to iface's transmit path at the given filter
// priority, creating a clsact qdisc when the interface has none.
func (p *Program) AttachEgress(iface string, priority uint16) error {
	if p.egress != nil {
		return fmt.Errorf("%w: egress already attached", ErrAttach)
	}

	h, err := attachTC(p.coll.Programs[ProgEgress], iface, priority)
	if err != nil {
		return fmt.Errorf("%w: tc egress on %s: %w", ErrAttach, iface, err)
	}

	p.egress = h

	p.logger.Infow("attached egress hook",
		"iface", iface,
		"priority", priority,
		"created_qdisc", h.qdisc != nil,
	)

	return nil
}

// Publish pins both deny tables under pinDir. A pin left behind by another loader is
// an error, not something to overwrite.
func (p *Program) Publish(pinDir string) error {
	if err := checkBPFFS(pinDir); err != nil {
		return err
	}

	for _, name := range []string{MapDenyV4, MapDenyV6} {
		path := filepath.Join(pinDir, name)

		if _, err := os.Lstat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrAlreadyPublished, path)
		}

		if err := p.coll.Maps[name].Pin(path); err != nil {
			return fmt.Errorf("failed to pin %s to %s: %w", name, path, err)
		}

		p.pinned = append(p.pinned, name)

		p.logger.Infow("published table", "table", name, "path", path)
	}

	return nil
}

// ReadStats will report the kernel's verdict counters summed over all CPUs.
func (p *Program) ReadStats() (classifier.Counts, error) {
	return readStats(p.coll.Maps[MapStats])
}

// Watch forwards kernel verdict events to rec until ctx is cancelled.
func (p *Program) Watch(ctx context.Context, rec classifier.Recorder) error {
	return NewMonitor(p.logger, p.coll.Maps[MapEvents], rec).Run(ctx)
}

// Teardown unpins every published table, detaches both hooks and closes the
// collection. Every step is attempted; the failures are returned together.
func (p *Program) Teardown() error {
	var errs error

	for _, name := range p.pinned {
		if err := p.coll.Maps[name].Unpin(); err != nil {
			p.logger.Warnw("failed to unpin table", "table", name, "err", err)
			errs = multierr.Append(errs, fmt.Errorf("failed to unpin %s: %w", name, err))

			continue
		}

		p.logger.Infow("unpublished table", "table", name)
	}

	p.pinned = nil

	if p.ingress != nil {
		if err := p.ingress.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to detach ingress: %w", err))
		}

		p.ingress = nil
	}

	if p.egress != nil {
		if err := p.egress.detach(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to detach egress: %w", err))
		}

		p.egress = nil
	}

	p.coll.Close()

	return errs
}
