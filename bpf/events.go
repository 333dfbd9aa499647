package bpf

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/tcassar-diss/xdpfilter/classifier"
	"github.com/tcassar-diss/xdpfilter/store"
	"go.uber.org/zap"
)

// verdictEvent mirrors struct verdict_event in xdpfilter.c.
type verdictEvent struct {
	Hook   uint8
	Family uint8
	Port   uint16
	Action uint32
	Addr   [16]byte
}

const verdictEventSize = 24

// Monitor forwards the kernel's per-packet verdict events to a Recorder.
//
// Events are best effort: the kernel drops them when the ring buffer is full, so the
// kernel stats map remains the source of truth for totals.
type Monitor struct {
	logger *zap.SugaredLogger
	events *ebpf.Map
	rec    classifier.Recorder
}

func NewMonitor(logger *zap.SugaredLogger, events *ebpf.Map, rec classifier.Recorder) *Monitor {
	return &Monitor{
		logger: logger,
		events: events,
		rec:    rec,
	}
}

// Run reads events until ctx is cancelled. Calls to Run are blocking.
func (m *Monitor) Run(ctx context.Context) error {
	rd, err := ringbuf.NewReader(m.events)
	if err != nil {
		return fmt.Errorf("failed to get reader to events ringbuf: %w", err)
	}
	defer rd.Close()

	// rd.Read blocks until there is a record or the reader is closed
	stop := context.AfterFunc(ctx, func() { rd.Close() })
	defer stop()

	m.logger.Info("monitor listening for verdict events")

	for {
		record, err := rd.Read()
		if errors.Is(err, ringbuf.ErrClosed) {
			m.logger.Info("events ringbuf closed")

			return nil
		} else if err != nil {
			return fmt.Errorf("failed to read from events ringbuf: %w", err)
		}

		r, err := decodeEvent(record.RawSample)
		if err != nil {
			m.logger.Warnw("dropping malformed verdict event", "err", err)

			continue
		}

		m.rec.Record(r)
	}
}

func decodeEvent(raw []byte) (classifier.Record, error) {
	var ev verdictEvent

	if len(raw) < verdictEventSize {
		return classifier.Record{}, fmt.Errorf("short verdict event: %d bytes", len(raw))
	}

	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &ev); err != nil {
		return classifier.Record{}, fmt.Errorf("failed to unmarshal verdict event: %w", err)
	}

	r := classifier.Record{
		Hook:   classifier.Hook(ev.Hook),
		Family: store.Family(ev.Family),
		Port:   ev.Port,
	}

	switch r.Family {
	case store.FamilyV4:
		r.Addr = netip.AddrFrom4([4]byte(ev.Addr[:4]))
	case store.FamilyV6:
		r.Addr = netip.AddrFrom16(ev.Addr)
	default:
		return classifier.Record{}, fmt.Errorf("verdict event with family %d", ev.Family)
	}

	switch r.Hook {
	case classifier.HookIngress:
		r.Verdict = classifier.XDPAction(ev.Action).String()
	case classifier.HookEgress:
		r.Verdict = classifier.TCAction(ev.Action).String()
	default:
		return classifier.Record{}, fmt.Errorf("verdict event with hook %d", ev.Hook)
	}

	return r, nil
}
