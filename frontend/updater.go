package frontend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"

	"github.com/tcassar-diss/xdpfilter/bpf"
	"github.com/tcassar-diss/xdpfilter/store"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Exit statuses of the block command.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitPartial = 3
)

type Mode uint8

const (
	ModeAdd Mode = iota
	ModeRemove
)

func (m Mode) String() string {
	if m == ModeRemove {
		return "remove"
	}

	return "add"
}

type Status uint8

const (
	StatusAdded Status = iota
	StatusRemoved
	// StatusAlreadyAbsent is a successful Remove of an address that was not listed.
	StatusAlreadyAbsent
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusAdded:
		return "added"
	case StatusRemoved:
		return "removed"
	case StatusAlreadyAbsent:
		return "already-absent"
	default:
		return "failed"
	}
}

// Outcome is the result of applying one address. Err is set only for StatusFailed.
type Outcome struct {
	Addr   netip.Addr
	Status Status
	Err    error
}

// Report lists one Outcome per address in the order applied. Nothing in a Report is
// ever rolled back.
type Report struct {
	Domain   string
	Mode     Mode
	Outcomes []Outcome
}

func (r Report) Failed() int {
	n := 0

	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			n++
		}
	}

	return n
}

// Err combines the per-address failures, or returns nil when there were none.
func (r Report) Err() error {
	var errs error

	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", o.Addr, o.Err))
		}
	}

	if errs == nil {
		return nil
	}

	return fmt.Errorf("%d of %d addresses failed: %w", r.Failed(), len(r.Outcomes), errs)
}

func (r Report) ExitCode() int {
	switch failed := r.Failed(); {
	case failed == 0:
		return ExitOK
	case failed < len(r.Outcomes):
		return ExitPartial
	default:
		return ExitFailure
	}
}

// WriteReport prints one line per outcome.
func WriteReport(w io.Writer, r Report) error {
	for _, o := range r.Outcomes {
		line := fmt.Sprintf("%s\t%s", o.Addr, o.Status)
		if o.Err != nil {
			line += "\t" + o.Err.Error()
		}

		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	return nil
}

// Updater mutates a deny list from outside the loader process.
type Updater struct {
	logger   *zap.SugaredLogger
	deny     *store.DenyList
	resolver Resolver
}

func NewUpdater(logger *zap.SugaredLogger, deny *store.DenyList, resolver Resolver) *Updater {
	return &Updater{
		logger:   logger,
		deny:     deny,
		resolver: resolver,
	}
}

func (u *Updater) Apply(addr netip.Addr, mode Mode) Outcome {
	out := Outcome{Addr: addr}

	switch mode {
	case ModeAdd:
		if err := u.deny.Add(addr); err != nil {
			out.Status, out.Err = StatusFailed, err
		} else {
			out.Status = StatusAdded
		}
	case ModeRemove:
		err := u.deny.Remove(addr)

		switch {
		case err == nil:
			out.Status = StatusRemoved
		case errors.Is(err, store.ErrKeyNotExist):
			out.Status = StatusAlreadyAbsent
		default:
			out.Status, out.Err = StatusFailed, err
		}
	default:
		out.Status, out.Err = StatusFailed, fmt.Errorf("unknown mode %d", mode)
	}

	if out.Status == StatusFailed {
		u.logger.Warnw("failed to update deny list", "addr", addr, "mode", mode.String(), "err", out.Err)
	} else {
		u.logger.Infow("updated deny list", "addr", addr, "mode", mode.String(), "status", out.Status.String())
	}

	return out
}

// ApplyAll applies every address in turn. A failure does not stop the batch.
func (u *Updater) ApplyAll(addrs []netip.Addr, mode Mode) Report {
	r := Report{
		Mode:     mode,
		Outcomes: make([]Outcome, 0, len(addrs)),
	}

	for _, a := range addrs {
		r.Outcomes = append(r.Outcomes, u.Apply(a, mode))
	}

	return r
}

// ApplyDomain resolves domain and applies all of its addresses. A resolution
// failure is returned as the error and nothing is applied.
func (u *Updater) ApplyDomain(ctx context.Context, domain string, mode Mode) (Report, error) {
	addrs, err := u.resolver.Resolve(ctx, domain)
	if err != nil {
		return Report{Domain: domain, Mode: mode}, fmt.Errorf("failed to resolve %s: %w", domain, err)
	}

	u.logger.Infow("resolved domain", "domain", domain, "ipv4", addrs.V4, "ipv6", addrs.V6)

	r := u.ApplyAll(addrs.All(), mode)
	r.Domain = domain

	return r, nil
}

// OpenUpdater opens the deny tables published under cfg.PinDir. The returned close
// function releases them.
func OpenUpdater(logger *zap.SugaredLogger, cfg *Config) (*Updater, func() error, error) {
	tables, err := bpf.OpenDenyTables(cfg.PinDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open deny tables (is the loader running?): %w", err)
	}

	resolver, err := NewDNSResolver(logger, cfg.Resolver)
	if err != nil {
		tables.Close()

		return nil, nil, err
	}

	return NewUpdater(logger, &tables.DenyList, resolver), tables.Close, nil
}

// RunUpdater resolves domain and applies it to the published deny tables.
func RunUpdater(ctx context.Context, logger *zap.SugaredLogger, cfg *Config, domain string, mode Mode) (Report, error) {
	u, closeFn, err := OpenUpdater(logger, cfg)
	if err != nil {
		return Report{Domain: domain, Mode: mode}, err
	}
	defer closeFn()

	return u.ApplyDomain(ctx, domain, mode)
}
