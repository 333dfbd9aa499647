package classifier

// Clock returns a monotonic timestamp in nanoseconds.
type Clock func() uint64
