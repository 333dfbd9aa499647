package classifier

import (
	"github.com/tcassar-diss/xdpfilter/store"
	"go.uber.org/zap"
)

// RateLimiter is a fixed-window packet counter per source address. A source that
// sends more than Policy.Threshold packets inside one window is inserted into the
// deny table.
//
// An observation is a Lookup followed by an Insert with no lock around the pair.
// Concurrent observations of the same source can lose increments, so the count is
// approximate and bursts straddling a window boundary are under-counted.
type RateLimiter struct {
	logger *zap.SugaredLogger
	store  *store.Store
	policy Policy
	clock  Clock
	stats  *Stats
}

func NewRateLimiter(logger *zap.SugaredLogger, s *store.Store, policy Policy, clock Clock, stats *Stats) *RateLimiter {
	return &RateLimiter{
		logger: logger,
		store:  s,
		policy: policy,
		clock:  clock,
		stats:  stats,
	}
}

// ObserveV4 accounts one passing packet from key and reports whether this packet
// pushed the source over the threshold.
func (r *RateLimiter) ObserveV4(key store.V4Key) bool {
	blocked, count := observe(r.store.TrackerV4, r.store.DenyV4, store.SentinelV4, key, r.clock(), r.policy)
	if blocked {
		r.autoBlocked(key.Addr().String(), count)
	}

	return blocked
}

// ObserveV6 is ObserveV4 for IPv6 sources.
func (r *RateLimiter) ObserveV6(key store.V6Key) bool {
	blocked, count := observe(r.store.TrackerV6, r.store.DenyV6, store.SentinelV6, key, r.clock(), r.policy)
	if blocked {
		r.autoBlocked(key.Addr().String(), count)
	}

	return blocked
}

func (r *RateLimiter) autoBlocked(addr string, count uint32) {
	r.stats.autoBlocked.Add(1)
	r.logger.Warnw("source exceeded rate threshold, blocking",
		"addr", addr,
		"packets", count,
		"window", r.policy.Window,
	)
}

func observe[K comparable, V any](
	tracker store.Table[K, store.TrackerEntry],
	deny store.Table[K, V],
	sentinel V,
	key K,
	now uint64,
	policy Policy,
) (bool, uint32) {
	entry, err := tracker.Lookup(key)
	if err != nil {
		// a full tracker drops the observation
		_ = tracker.Insert(key, store.TrackerEntry{LastUpdate: now, PacketCount: 1})

		return false, 1
	}

	if now-entry.LastUpdate >= uint64(policy.Window) {
		_ = tracker.Insert(key, store.TrackerEntry{LastUpdate: now, PacketCount: 1})

		return false, 1
	}

	entry.PacketCount++
	_ = tracker.Insert(key, entry)

	if entry.PacketCount <= policy.Threshold {
		return false, entry.PacketCount
	}

	return deny.Insert(key, sentinel) == nil, entry.PacketCount
}
