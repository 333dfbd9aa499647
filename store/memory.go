package store

import (
	"fmt"
	"hash/maphash"
	"sync"
	"sync/atomic"
)

const stripes = 64

type stripe[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]V
}

// Memory is an in-process Table with a fixed capacity. Keys are spread over lock
// stripes so each operation is atomic for its key only, like a kernel hash map.
type Memory[K comparable, V any] struct {
	capacity int64
	size     atomic.Int64
	seed     maphash.Seed
	stripes  [stripes]stripe[K, V]
}

// NewMemory returns an empty table holding at most capacity entries.
func NewMemory[K comparable, V any](capacity int) *Memory[K, V] {
	m := &Memory[K, V]{
		capacity: int64(capacity),
		seed:     maphash.MakeSeed(),
	}

	for i := range m.stripes {
		m.stripes[i].entries = make(map[K]V)
	}

	return m
}

func (m *Memory[K, V]) stripe(key K) *stripe[K, V] {
	return &m.stripes[maphash.Comparable(m.seed, key)%stripes]
}

func (m *Memory[K, V]) Lookup(key K) (V, error) {
	s := m.stripe(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.entries[key]
	if !ok {
		// bare sentinel: a miss is the common case on the packet path
		return v, ErrKeyNotExist
	}

	return v, nil
}

func (m *Memory[K, V]) Insert(key K, value V) error {
	s := m.stripe(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		if m.size.Add(1) > m.capacity {
			m.size.Add(-1)

			return fmt.Errorf("insert %v: %w (max %d entries)", key, ErrCapacity, m.capacity)
		}
	}

	s.entries[key] = value

	return nil
}

func (m *Memory[K, V]) Delete(key K) error {
	s := m.stripe(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return fmt.Errorf("delete %v: %w", key, ErrKeyNotExist)
	}

	delete(s.entries, key)
	m.size.Add(-1)

	return nil
}

// Len returns the number of entries.
func (m *Memory[K, V]) Len() int {
	return int(m.size.Load())
}

// Keys returns a snapshot of the keys. It is not atomic across stripes.
func (m *Memory[K, V]) Keys() []K {
	keys := make([]K, 0, m.Len())

	for i := range m.stripes {
		s := &m.stripes[i]

		s.mu.Lock()
		for k := range s.entries {
			keys = append(keys, k)
		}
		s.mu.Unlock()
	}

	return keys
}

// MemoryStore is a Store backed by Memory tables.
type MemoryStore struct {
	Store

	DenyV4Mem    *Memory[V4Key, uint32]
	DenyV6Mem    *Memory[V6Key, [16]byte]
	TrackerV4Mem *Memory[V4Key, TrackerEntry]
	TrackerV6Mem *Memory[V6Key, TrackerEntry]
}

// NewMemoryStore builds a Store whose deny tables hold deny entries per family and
// whose trackers hold tracker entries per family.
func NewMemoryStore(deny, tracker int) *MemoryStore {
	ms := &MemoryStore{
		DenyV4Mem:    NewMemory[V4Key, uint32](deny),
		DenyV6Mem:    NewMemory[V6Key, [16]byte](deny),
		TrackerV4Mem: NewMemory[V4Key, TrackerEntry](tracker),
		TrackerV6Mem: NewMemory[V6Key, TrackerEntry](tracker),
	}

	ms.Store = Store{
		DenyList: DenyList{
			DenyV4: ms.DenyV4Mem,
			DenyV6: ms.DenyV6Mem,
		},
		TrackerV4: ms.TrackerV4Mem,
		TrackerV6: ms.TrackerV6Mem,
	}

	return ms
}
