package bpf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cilium/ebpf"
	"github.com/tcassar-diss/xdpfilter/store"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// HashTable is a store.Table over a kernel hash map. Each call is one bpf syscall, so
// it is atomic for its key and races with the classifiers like any other writer.
type HashTable[K comparable, V any] struct {
	name string
	m    *ebpf.Map
}

func NewHashTable[K comparable, V any](name string, m *ebpf.Map) *HashTable[K, V] {
	return &HashTable[K, V]{name: name, m: m}
}

func (h *HashTable[K, V]) Lookup(key K) (V, error) {
	var v V

	if err := h.m.Lookup(&key, &v); err != nil {
		return v, h.wrap("lookup", key, err)
	}

	return v, nil
}

func (h *HashTable[K, V]) Insert(key K, value V) error {
	if err := h.m.Update(&key, &value, ebpf.UpdateAny); err != nil {
		return h.wrap("insert", key, err)
	}

	return nil
}

func (h *HashTable[K, V]) Delete(key K) error {
	if err := h.m.Delete(&key); err != nil {
		return h.wrap("delete", key, err)
	}

	return nil
}

// MaxEntries is the fixed capacity the map was created with.
func (h *HashTable[K, V]) MaxEntries() uint32 {
	return h.m.MaxEntries()
}

func (h *HashTable[K, V]) wrap(op string, key K, err error) error {
	switch {
	case errors.Is(err, ebpf.ErrKeyNotExist):
		return fmt.Errorf("%s %s[%v]: %w", op, h.name, key, store.ErrKeyNotExist)
	case errors.Is(err, unix.E2BIG):
		return fmt.Errorf("%s %s[%v]: %w (max %d entries)", op, h.name, key, store.ErrCapacity, h.m.MaxEntries())
	default:
		return fmt.Errorf("failed to %s %s[%v]: %w", op, h.name, key, err)
	}
}

// DenyTables is a deny list opened from pinned maps by a process other than the
// loader.
type DenyTables struct {
	store.DenyList

	v4 *ebpf.Map
	v6 *ebpf.Map
}

// OpenDenyTables opens blocklist_v4 and blocklist_v6 under pinDir. Both must be
// pinned; a missing pin is store.ErrNotFound.
func OpenDenyTables(pinDir string) (*DenyTables, error) {
	v4, err := loadPinned(pinDir, MapDenyV4)
	if err != nil {
		return nil, err
	}

	v6, err := loadPinned(pinDir, MapDenyV6)
	if err != nil {
		v4.Close()

		return nil, err
	}

	return &DenyTables{
		DenyList: store.DenyList{
			DenyV4: NewHashTable[store.V4Key, uint32](MapDenyV4, v4),
			DenyV6: NewHashTable[store.V6Key, [16]byte](MapDenyV6, v6),
		},
		v4: v4,
		v6: v6,
	}, nil
}

func loadPinned(pinDir, name string) (*ebpf.Map, error) {
	path := filepath.Join(pinDir, name)

	m, err := ebpf.LoadPinnedMap(path, nil)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: nothing pinned at %s", store.ErrNotFound, path)
	} else if err != nil {
		return nil, fmt.Errorf("failed to open pinned map %s: %w", path, err)
	}

	return m, nil
}

// Close releases the map handles; the pins themselves stay in place.
func (d *DenyTables) Close() error {
	return multierr.Append(d.v4.Close(), d.v6.Close())
}
