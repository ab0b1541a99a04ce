package obj

import (
	"github.com/google/btree"
)

// ObjSplit attributes the range [start, End) of a section to a translation
// unit. The start address is the key the split is stored under.
type ObjSplit struct {
	Unit string
	// End is exclusive. Zero means the split extends to the end of its section.
	End uint32
	// Align is the required alignment of the unit's data, zero if unspecified.
	Align uint32
	// Common marks uninitialized data merged into a shared block by the linker.
	Common bool
	// Autogenerated splits come from analysis heuristics and may be replaced.
	Autogenerated bool
	Skip          bool
	// Rename is the section name to emit the split under, empty to keep it.
	Rename string
}

type splitEntry struct {
	address uint32
	unit    UnitID
	split   ObjSplit
}

// ObjSplits indexes the splits of one section by start address. Splits of
// sections owned by the same ObjInfo share a unit table.
type ObjSplits struct {
	units *unitTable
	tree  *btree.BTreeG[splitEntry]
}

func (s *ObjSplits) init() {
	if s.units == nil {
		s.units = newUnitTable()
	}
	if s.tree == nil {
		s.tree = btree.NewG(btreeDegree, func(a, b splitEntry) bool {
			return a.address < b.address
		})
	}
}

// attach rebinds the index to a shared unit table, re-interning any splits
// pushed before the section was handed to an ObjInfo.
func (s *ObjSplits) attach(units *unitTable) {
	if s.units == units {
		return
	}
	old := s.units
	s.units = units
	if s.tree == nil || old == nil {
		return
	}
	var entries []splitEntry
	s.tree.Ascend(func(e splitEntry) bool {
		entries = append(entries, e)
		return true
	})
	for _, e := range entries {
		e.unit = units.intern(old.name(e.unit))
		s.tree.ReplaceOrInsert(e)
	}
}

func (s *ObjSplits) export(e splitEntry) ObjSplit {
	split := e.split
	split.Unit = s.units.name(e.unit)
	return split
}

// Push stores split at address, replacing any split already starting there.
func (s *ObjSplits) Push(address uint32, split ObjSplit) {
	s.init()
	id := s.units.intern(split.Unit)
	split.Unit = ""
	s.tree.ReplaceOrInsert(splitEntry{address: address, unit: id, split: split})
}

func (s *ObjSplits) Remove(address uint32) (ObjSplit, bool) {
	if s.tree == nil {
		return ObjSplit{}, false
	}
	e, ok := s.tree.Delete(splitEntry{address: address})
	if !ok {
		return ObjSplit{}, false
	}
	return s.export(e), true
}

func (s *ObjSplits) At(address uint32) (ObjSplit, bool) {
	if s.tree == nil {
		return ObjSplit{}, false
	}
	e, ok := s.tree.Get(splitEntry{address: address})
	if !ok {
		return ObjSplit{}, false
	}
	return s.export(e), true
}

func (s *ObjSplits) Len() int {
	if s.tree == nil {
		return 0
	}
	return s.tree.Len()
}

func (s *ObjSplits) Ascend(fn func(address uint32, split ObjSplit) bool) {
	if s.tree == nil {
		return
	}
	s.tree.Ascend(func(e splitEntry) bool {
		return fn(e.address, s.export(e))
	})
}

// ForUnit returns the split owned by unit, or nil if the unit has none in
// this section.
func (s *ObjSplits) ForUnit(unit string) (uint32, *ObjSplit, error) {
	if s.tree == nil {
		return 0, nil, nil
	}
	id, ok := s.units.lookup(unit)
	if !ok {
		return 0, nil, nil
	}
	id = s.units.resolve(id)
	var (
		found *splitEntry
		err   error
	)
	s.tree.Ascend(func(e splitEntry) bool {
		if s.units.resolve(e.unit) != id {
			return true
		}
		if found != nil {
			err = &MultipleSplitsError{
				Unit:   unit,
				First:  [2]uint32{found.address, found.split.End},
				Second: [2]uint32{e.address, e.split.End},
			}
			return false
		}
		found = &e
		return true
	})
	if err != nil {
		return 0, nil, err
	}
	if found == nil {
		return 0, nil, nil
	}
	split := s.export(*found)
	return found.address, &split, nil
}

// ForRange calls fn for every split intersecting [start, end) in ascending
// order. An end of zero leaves the range open.
func (s *ObjSplits) ForRange(start, end uint32, fn func(address uint32, split ObjSplit) bool) {
	if s.tree == nil {
		return
	}
	stopped := false
	// Splits are disjoint, so only the nearest split starting below start
	// can reach into the range.
	s.tree.DescendLessOrEqual(splitEntry{address: start}, func(e splitEntry) bool {
		if e.address == start {
			return true
		}
		if rangesIntersect(e.address, e.split.End, start, end) {
			stopped = !fn(e.address, s.export(e))
		}
		return false
	})
	if stopped {
		return
	}
	hi := effectiveEnd(start, end)
	s.tree.AscendGreaterOrEqual(splitEntry{address: start}, func(e splitEntry) bool {
		if uint64(e.address) >= hi {
			return false
		}
		return fn(e.address, s.export(e))
	})
}

// ForAddress returns the split containing address.
func (s *ObjSplits) ForAddress(address uint32) (uint32, ObjSplit, bool) {
	if s.tree == nil {
		return 0, ObjSplit{}, false
	}
	var (
		found splitEntry
		ok    bool
	)
	s.tree.DescendLessOrEqual(splitEntry{address: address}, func(e splitEntry) bool {
		found = e
		ok = uint64(address) < effectiveEnd(e.address, e.split.End)
		return false
	})
	if !ok {
		return 0, ObjSplit{}, false
	}
	return found.address, s.export(found), true
}

func (s *ObjSplits) disjoint() bool {
	if s.tree == nil {
		return true
	}
	var prevEnd uint64
	ok := true
	s.tree.Ascend(func(e splitEntry) bool {
		if uint64(e.address) < prevEnd {
			ok = false
			return false
		}
		prevEnd = effectiveEnd(e.address, e.split.End)
		return true
	})
	return ok
}

// effectiveEnd maps an open end to the top of the address space and gives
// empty splits a single byte so they still collide with their neighbours.
func effectiveEnd(start, end uint32) uint64 {
	if end == 0 {
		return 1 << 32
	}
	if end <= start {
		return uint64(start) + 1
	}
	return uint64(end)
}

func rangesIntersect(s1, e1, s2, e2 uint32) bool {
	return uint64(s1) < effectiveEnd(s2, e2) && uint64(s2) < effectiveEnd(s1, e1)
}

// unionEnd merges two split ends, where zero means open.
func unionEnd(a, b uint32) uint32 {
	if a == 0 || b == 0 {
		return 0
	}
	return max(a, b)
}
