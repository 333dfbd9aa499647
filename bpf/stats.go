package bpf

import (
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/tcassar-diss/xdpfilter/classifier"
)

// statType indexes the per-CPU stats array; it mirrors enum stat_type in xdpfilter.c.
type statType uint32

const (
	statIngressPass statType = iota
	statIngressDrop
	statIngressAborted
	statAutoBlocked
	statEgressPipe
	statEgressShot
	statEnd
)

// readStats sums every per-CPU slot of the stats array.
func readStats(m *ebpf.Map) (classifier.Counts, error) {
	var totals [statEnd]uint64

	for s := statIngressPass; s < statEnd; s++ {
		var perCPU []uint64

		if err := m.Lookup(&s, &perCPU); err != nil {
			return classifier.Counts{}, fmt.Errorf("failed to read stat %d: %w", s, err)
		}

		for _, v := range perCPU {
			totals[s] += v
		}
	}

	return classifier.Counts{
		IngressPass:    totals[statIngressPass],
		IngressDrop:    totals[statIngressDrop],
		IngressAborted: totals[statIngressAborted],
		AutoBlocked:    totals[statAutoBlocked],
		EgressPipe:     totals[statEgressPipe],
		EgressShot:     totals[statEgressShot],
	}, nil
}
