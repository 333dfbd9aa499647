// Package store holds the address-keyed tables shared by the packet classifiers and
// the control plane.
//
// Every table operation is atomic for the key it touches and nothing else: there is
// no compound check-then-update. Callers that read an entry and write it back race
// with other callers doing the same, and lose updates. The rate limiter relies on
// exactly these semantics.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

var (
	// ErrKeyNotExist is returned when looking up or deleting an absent key.
	ErrKeyNotExist = errors.New("key does not exist")
	// ErrCapacity is returned when inserting a new key into a full table.
	ErrCapacity = errors.New("table is at capacity")
	// ErrNotFound is returned when opening a table that has not been published.
	ErrNotFound = errors.New("table not published")
	// ErrInvalidAddr is returned for addresses that are neither IPv4 nor IPv6.
	ErrInvalidAddr = errors.New("invalid address")
)

// Table is a fixed-capacity table keyed by address.
type Table[K comparable, V any] interface {
	Lookup(key K) (V, error)
	// Insert creates or replaces the entry for key. Replacing never fails for
	// capacity; creating a new entry in a full table returns ErrCapacity.
	Insert(key K, value V) error
	Delete(key K) error
}

// Family is an address family. IPv4 and IPv6 state never share a table.
type Family uint8

const (
	FamilyOther Family = 0
	FamilyV4    Family = 4
	FamilyV6    Family = 6
)

func (f Family) String() string {
	switch f {
	case FamilyV4:
		return "ipv4"
	case FamilyV6:
		return "ipv6"
	default:
		return "other"
	}
}

// V4Key is an IPv4 address as a host-order integer, matching the kernel side which
// stores bpf_ntohl(saddr).
type V4Key uint32

// V6Key is an IPv6 address in network byte order.
type V6Key [16]byte

// Deny table values are unused; presence of the key is the block decision.
const SentinelV4 uint32 = 0

var SentinelV6 [16]byte

// TrackerEntry is the fixed-window rate state for one source address. PacketCount is
// only meaningful while now-LastUpdate is below the window.
type TrackerEntry struct {
	LastUpdate  uint64
	PacketCount uint32
	_           uint32
}

// KeyV4 converts a 4-byte address into its table key.
func KeyV4(a [4]byte) V4Key {
	return V4Key(binary.BigEndian.Uint32(a[:]))
}

// Addr returns the address a key was built from.
func (k V4Key) Addr() netip.Addr {
	var a [4]byte
	binary.BigEndian.PutUint32(a[:], uint32(k))

	return netip.AddrFrom4(a)
}

func (k V6Key) Addr() netip.Addr {
	return netip.AddrFrom16(k)
}

// DenyList is the family-agnostic view over the two deny tables.
type DenyList struct {
	DenyV4 Table[V4Key, uint32]
	DenyV6 Table[V6Key, [16]byte]
}

// Contains reports whether addr is present in the matching deny table.
func (d DenyList) Contains(addr netip.Addr) (bool, error) {
	addr = addr.Unmap()

	var err error

	switch {
	case addr.Is4():
		_, err = d.DenyV4.Lookup(KeyV4(addr.As4()))
	case addr.Is6():
		_, err = d.DenyV6.Lookup(V6Key(addr.As16()))
	default:
		return false, fmt.Errorf("%w: %s", ErrInvalidAddr, addr)
	}

	if errors.Is(err, ErrKeyNotExist) {
		return false, nil
	}

	return err == nil, err
}

// Add inserts addr into the matching deny table.
func (d DenyList) Add(addr netip.Addr) error {
	addr = addr.Unmap()

	switch {
	case addr.Is4():
		return d.DenyV4.Insert(KeyV4(addr.As4()), SentinelV4)
	case addr.Is6():
		return d.DenyV6.Insert(V6Key(addr.As16()), SentinelV6)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidAddr, addr)
	}
}

// Remove deletes addr from the matching deny table. An absent key yields
// ErrKeyNotExist.
func (d DenyList) Remove(addr netip.Addr) error {
	addr = addr.Unmap()

	switch {
	case addr.Is4():
		return d.DenyV4.Delete(KeyV4(addr.As4()))
	case addr.Is6():
		return d.DenyV6.Delete(V6Key(addr.As16()))
	default:
		return fmt.Errorf("%w: %s", ErrInvalidAddr, addr)
	}
}

// Store is the full set of tables: the two deny tables, which the control plane may
// publish, and the two private rate trackers.
type Store struct {
	DenyList
	TrackerV4 Table[V4Key, TrackerEntry]
	TrackerV6 Table[V6Key, TrackerEntry]
}
