package obj

import (
	"fmt"

	"github.com/google/btree"
)

const btreeDegree = 8

// SectionAddress is an address qualified by the index of the section it
// belongs to. Relocatable objects reuse the same addresses across sections.
type SectionAddress struct {
	Section uint32
	Address uint32
}

func NewSectionAddress(section int, address uint32) SectionAddress {
	return SectionAddress{Section: uint32(section), Address: address}
}

func (a SectionAddress) Less(b SectionAddress) bool {
	if a.Section != b.Section {
		return a.Section < b.Section
	}
	return a.Address < b.Address
}

func (a SectionAddress) Add(off uint32) SectionAddress {
	return SectionAddress{Section: a.Section, Address: a.Address + off}
}

func (a SectionAddress) String() string {
	return fmt.Sprintf("%d:%#010X", a.Section, a.Address)
}

type sectionAddressEntry[V any] struct {
	key   SectionAddress
	value V
}

// SectionAddressMap is an ordered map keyed by SectionAddress.
// The zero value is ready to use.
type SectionAddressMap[V any] struct {
	tree *btree.BTreeG[sectionAddressEntry[V]]
}

func (m *SectionAddressMap[V]) init() {
	if m.tree == nil {
		m.tree = btree.NewG(btreeDegree, func(a, b sectionAddressEntry[V]) bool {
			return a.key.Less(b.key)
		})
	}
}

// Insert sets the value at addr and returns the previous value, if any.
func (m *SectionAddressMap[V]) Insert(addr SectionAddress, value V) (V, bool) {
	m.init()
	old, ok := m.tree.ReplaceOrInsert(sectionAddressEntry[V]{key: addr, value: value})
	return old.value, ok
}

func (m *SectionAddressMap[V]) Get(addr SectionAddress) (V, bool) {
	var zero V
	if m.tree == nil {
		return zero, false
	}
	e, ok := m.tree.Get(sectionAddressEntry[V]{key: addr})
	return e.value, ok
}

func (m *SectionAddressMap[V]) Contains(addr SectionAddress) bool {
	return m.tree != nil && m.tree.Has(sectionAddressEntry[V]{key: addr})
}

func (m *SectionAddressMap[V]) Delete(addr SectionAddress) (V, bool) {
	var zero V
	if m.tree == nil {
		return zero, false
	}
	e, ok := m.tree.Delete(sectionAddressEntry[V]{key: addr})
	return e.value, ok
}

func (m *SectionAddressMap[V]) Len() int {
	if m.tree == nil {
		return 0
	}
	return m.tree.Len()
}

// Ascend calls fn for every entry in ascending order until fn returns false.
func (m *SectionAddressMap[V]) Ascend(fn func(addr SectionAddress, value V) bool) {
	if m.tree == nil {
		return
	}
	m.tree.Ascend(func(e sectionAddressEntry[V]) bool {
		return fn(e.key, e.value)
	})
}

// AscendRange iterates over entries in [lo, hi).
func (m *SectionAddressMap[V]) AscendRange(lo, hi SectionAddress, fn func(addr SectionAddress, value V) bool) {
	if m.tree == nil {
		return
	}
	m.tree.AscendRange(sectionAddressEntry[V]{key: lo}, sectionAddressEntry[V]{key: hi}, func(e sectionAddressEntry[V]) bool {
		return fn(e.key, e.value)
	})
}

func (m *SectionAddressMap[V]) Clone() SectionAddressMap[V] {
	if m.tree == nil {
		return SectionAddressMap[V]{}
	}
	return SectionAddressMap[V]{tree: m.tree.Clone()}
}

// AddressRanges is a set of half-open address intervals. Overlapping and
// adjacent intervals within a section are coalesced on insert.
type AddressRanges struct {
	inner SectionAddressMap[uint32]
}

func (r *AddressRanges) Insert(start SectionAddress, end uint32) {
	if end <= start.Address {
		return
	}
	// Absorb an interval that starts before and reaches start.
	r.inner.init()
	r.inner.tree.DescendLessOrEqual(sectionAddressEntry[uint32]{key: start}, func(e sectionAddressEntry[uint32]) bool {
		if e.key.Section == start.Section && e.value >= start.Address {
			start.Address = e.key.Address
			end = max(end, e.value)
		}
		return false
	})
	var absorbed []SectionAddress
	r.inner.AscendRange(start, SectionAddress{Section: start.Section, Address: end}, func(addr SectionAddress, e uint32) bool {
		absorbed = append(absorbed, addr)
		end = max(end, e)
		return true
	})
	// An interval starting exactly at end is adjacent.
	if e, ok := r.inner.Get(SectionAddress{Section: start.Section, Address: end}); ok {
		absorbed = append(absorbed, SectionAddress{Section: start.Section, Address: end})
		end = e
	}
	for _, addr := range absorbed {
		r.inner.Delete(addr)
	}
	r.inner.Insert(start, end)
}

func (r *AddressRanges) Contains(addr SectionAddress) bool {
	if r.inner.tree == nil {
		return false
	}
	found := false
	r.inner.tree.DescendLessOrEqual(sectionAddressEntry[uint32]{key: addr}, func(e sectionAddressEntry[uint32]) bool {
		found = e.key.Section == addr.Section && addr.Address < e.value
		return false
	})
	return found
}

func (r *AddressRanges) Len() int {
	return r.inner.Len()
}

func (r *AddressRanges) Ascend(fn func(start SectionAddress, end uint32) bool) {
	r.inner.Ascend(fn)
}

func (r *AddressRanges) Clone() AddressRanges {
	return AddressRanges{inner: r.inner.Clone()}
}
