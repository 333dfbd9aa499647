//go:build linux

package classifier

import (
	"time"

	"golang.org/x/sys/unix"
)

// MonotonicClock reads CLOCK_MONOTONIC, the clock behind bpf_ktime_get_ns, so
// timestamps are comparable with the kernel trackers.
func MonotonicClock() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return uint64(time.Now().UnixNano())
	}

	return uint64(ts.Sec)*1e9 + uint64(ts.Nsec)
}
