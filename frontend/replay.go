package frontend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"slices"

	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
	"github.com/tcassar-diss/xdpfilter/classifier"
	"github.com/tcassar-diss/xdpfilter/store"
	"go.uber.org/zap"
)

// ReplaySummary is printed by the replay command.
type ReplaySummary struct {
	Packets int               `json:"packets"`
	Counts  classifier.Counts `json:"counts"`
	// Blocked lists the deny table after the replay, seeded entries included.
	Blocked []string `json:"blocked"`
}

type ReplayCfg struct {
	// Egress runs the egress classifier instead of the ingress one.
	Egress   bool
	Recorder classifier.Recorder
}

// Replay classifies every frame of an Ethernet pcap capture against an in-memory
// store. Capture timestamps drive the rate limiter clock.
func Replay(logger *zap.SugaredLogger, cfg *Config, capture io.Reader, rcfg ReplayCfg) (*ReplaySummary, error) {
	policy, err := cfg.ClassifierPolicy()
	if err != nil {
		return nil, err
	}

	r, err := pcapgo.NewReader(capture)
	if err != nil {
		return nil, fmt.Errorf("failed to read pcap header: %w", err)
	}

	if r.LinkType() != layers.LinkTypeEthernet {
		return nil, fmt.Errorf("unsupported link type %s (need ethernet)", r.LinkType())
	}

	ms := store.NewMemoryStore(int(cfg.Capacity.Deny), int(cfg.Capacity.Tracker))

	if cfg.Blocklist != "" {
		addrs, err := LoadBlocklist(cfg.Blocklist)
		if err != nil {
			return nil, err
		}

		SeedDenyList(logger, &ms.DenyList, addrs)
	}

	var now uint64

	ccfg := &classifier.Cfg{
		Policy:   policy,
		Clock:    func() uint64 { return now },
		Recorder: rcfg.Recorder,
		Stats:    &classifier.Stats{},
	}

	in := classifier.NewIngress(logger, &ms.Store, ccfg)
	eg := classifier.NewEgress(logger, &ms.Store, ccfg)

	summary := &ReplaySummary{}

	for {
		data, ci, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, fmt.Errorf("failed to read packet %d: %w", summary.Packets+1, err)
		}

		now = uint64(ci.Timestamp.UnixNano())

		if rcfg.Egress {
			eg.Classify(data)
		} else {
			in.Classify(data)
		}

		summary.Packets++
	}

	summary.Counts = ccfg.Stats.Snapshot()
	summary.Blocked = blocked(ms)

	return summary, nil
}

func blocked(ms *store.MemoryStore) []string {
	addrs := make([]netip.Addr, 0, ms.DenyV4Mem.Len()+ms.DenyV6Mem.Len())

	for _, k := range ms.DenyV4Mem.Keys() {
		addrs = append(addrs, k.Addr())
	}

	for _, k := range ms.DenyV6Mem.Keys() {
		addrs = append(addrs, k.Addr())
	}

	slices.SortFunc(addrs, netip.Addr.Compare)

	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}

	return out
}

// RunReplay replays the capture at path and writes the summary to w as JSON.
func RunReplay(logger *zap.SugaredLogger, cfg *Config, path string, egress bool, w io.Writer) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	defer file.Close()

	recs := classifier.Recorders{classifier.NewLogRecorder(logger)}

	if cfg.RecordCSV != "" {
		f, err := os.Create(cfg.RecordCSV)
		if err != nil {
			return fmt.Errorf("failed to create an output file for verdict records: %w", err)
		}
		defer f.Close()

		csvRec, err := classifier.NewCSVRecorder(f)
		if err != nil {
			return fmt.Errorf("failed to write record header: %w", err)
		}

		defer func() {
			if err := csvRec.Flush(); err != nil {
				logger.Warnw("failed to flush verdict records", "err", err)
			}
		}()

		recs = append(recs, csvRec)
	}

	summary, err := Replay(logger, cfg, file, ReplayCfg{Egress: egress, Recorder: recs})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(summary)
}
