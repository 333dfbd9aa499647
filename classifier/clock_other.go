//go:build !linux

package classifier

import "time"

var start = time.Now()

func MonotonicClock() uint64 {
	return uint64(time.Since(start))
}
