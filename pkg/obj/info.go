package obj

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/samber/lo"

	"ppcdtk/pkg/utils"
)

// ObjInfo is a loaded executable or module. It owns its sections and
// symbols and is mutated in place by successive analysis passes; it is not
// safe for concurrent use.
type ObjInfo struct {
	Kind         ObjKind
	Architecture ObjArchitecture
	Name         string
	Symbols      ObjSymbols
	Sections     ObjSections
	Entry        *uint64

	// Linker generated
	SdaBase      *uint32
	Sda2Base     *uint32
	StackAddress *uint32
	StackEnd     *uint32
	DbStackAddr  *uint32
	ArenaLo      *uint32
	ArenaHi      *uint32

	LinkOrder                []ObjUnit
	BlockedRelocationSources AddressRanges
	BlockedRelocationTargets AddressRanges

	// KnownFunctions holds function starts recovered from .ctors, .dtors and
	// extab, mapped to their size or 0 if unknown.
	KnownFunctions SectionAddressMap[uint32]

	// ModuleID is 0 for the main image.
	ModuleID              uint32
	UnresolvedRelocations []RelReloc

	units  *unitTable
	logger log.Logger
}

func NewObjInfo(kind ObjKind, arch ObjArchitecture, name string, symbols []ObjSymbol, sections []*ObjSection) *ObjInfo {
	units := newUnitTable()
	logger := log.NewNopLogger()
	return &ObjInfo{
		Kind:         kind,
		Architecture: arch,
		Name:         name,
		Symbols:      newObjSymbols(kind, symbols, logger),
		Sections:     newObjSections(kind, sections, units),
		units:        units,
		logger:       logger,
	}
}

func (o *ObjInfo) SetLogger(logger log.Logger) {
	o.logger = logger
	o.Symbols.logger = logger
}

// linkerSymbols maps names the linker reserves to the field they populate.
var linkerSymbols = map[string]func(o *ObjInfo, addr uint32){
	"_SDA_BASE_":     func(o *ObjInfo, addr uint32) { o.SdaBase = &addr },
	"_SDA2_BASE_":    func(o *ObjInfo, addr uint32) { o.Sda2Base = &addr },
	"_stack_addr":    func(o *ObjInfo, addr uint32) { o.StackAddress = &addr },
	"_stack_end":     func(o *ObjInfo, addr uint32) { o.StackEnd = &addr },
	"_db_stack_addr": func(o *ObjInfo, addr uint32) { o.DbStackAddr = &addr },
	"__ArenaLo":      func(o *ObjInfo, addr uint32) { o.ArenaLo = &addr },
	"__ArenaHi":      func(o *ObjInfo, addr uint32) { o.ArenaHi = &addr },
}

func (o *ObjInfo) AddSymbol(symbol ObjSymbol, replace bool) (SymbolIndex, error) {
	if set, ok := linkerSymbols[symbol.Name]; ok {
		set(o, uint32(symbol.Address))
	}
	return o.Symbols.Add(symbol, replace)
}

// AddUnit appends unit to the link order unless a unit of that name is
// already present.
func (o *ObjInfo) AddUnit(unit ObjUnit) {
	if lo.ContainsBy(o.LinkOrder, func(u ObjUnit) bool { return u.Name == unit.Name }) {
		return
	}
	o.LinkOrder = append(o.LinkOrder, unit)
}

// Units lists unit names in link order, followed by units that only appear
// in splits, in section order.
func (o *ObjInfo) Units() []string {
	names := lo.Map(o.LinkOrder, func(u ObjUnit, _ int) string { return u.Name })
	o.Sections.AllSplits(func(_ int, _ *ObjSection, _ uint32, split ObjSplit) bool {
		names = append(names, split.Unit)
		return true
	})
	return lo.Uniq(names)
}

func (o *ObjInfo) AddKnownFunction(addr SectionAddress, size uint32) {
	if old, ok := o.KnownFunctions.Get(addr); ok && size == 0 {
		size = old
	}
	o.KnownFunctions.Insert(addr, size)
}

func (o *ObjInfo) AddUnresolvedRelocation(r RelReloc) {
	o.UnresolvedRelocations = append(o.UnresolvedRelocations, r)
}

// splitPlan is the outcome of validating an AddSplit call. Nothing is
// mutated until the plan is complete.
type splitPlan struct {
	start  uint32
	split  ObjSplit
	remove []uint32
	rename []string
}

// AddSplit attributes [address, split.End) of a section to split.Unit.
//
// A unit already present in the section has its split widened to cover both
// ranges. Autogenerated splits in the way are absorbed and their units
// renamed to split.Unit across the whole object, while an autogenerated
// split never displaces a confirmed one. Conflicts are detected before
// anything is changed, so a failed call leaves the object untouched.
func (o *ObjInfo) AddSplit(sectionIndex int, address uint32, split ObjSplit) error {
	section, ok := o.Sections.Get(sectionIndex)
	if !ok {
		return &InvalidSectionError{Index: sectionIndex}
	}
	if split.End != 0 && split.End > section.End() {
		return &SplitOutOfBoundsError{
			Unit:         split.Unit,
			Start:        address,
			End:          split.End,
			Section:      section.Name,
			SectionStart: section.Start(),
			SectionEnd:   section.End(),
		}
	}

	plan, err := o.planSplit(section, address, split)
	if err != nil || plan == nil {
		return err
	}

	for _, addr := range plan.remove {
		section.Splits.Remove(addr)
	}
	id := o.units.intern(split.Unit)
	for _, unit := range plan.rename {
		from, ok := o.units.lookup(unit)
		if !ok {
			continue
		}
		level.Debug(o.logger).Log("msg", "renaming unit", "unit", unit, "to", split.Unit)
		o.units.alias(from, id)
	}
	level.Debug(o.logger).Log(
		"msg", "adding split",
		"unit", split.Unit,
		"section", section.Name,
		"range", utils.HexRange(plan.start, plan.split.End),
	)
	section.Splits.Push(plan.start, plan.split)
	return nil
}

// planSplit computes the merged split and the entries it replaces. A nil
// plan with a nil error means the call is a no-op.
func (o *ObjInfo) planSplit(section *ObjSection, address uint32, split ObjSplit) (*splitPlan, error) {
	plan := &splitPlan{start: address, split: split}

	existingAddr, existing, err := section.Splits.ForUnit(split.Unit)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		merged, err := mergeSplit(section, existingAddr, *existing, address, split)
		if err != nil {
			return nil, err
		}
		plan.start = min(existingAddr, address)
		plan.split = merged
		if plan.start == existingAddr && merged.End == existing.End {
			level.Debug(o.logger).Log(
				"msg", "split already covered",
				"unit", split.Unit,
				"section", section.Name,
				"existing", utils.HexRange(existingAddr, existing.End),
				"range", utils.HexRange(address, split.End),
			)
			return nil, nil
		}
		level.Debug(o.logger).Log(
			"msg", "extending split",
			"unit", split.Unit,
			"section", section.Name,
			"existing", utils.HexRange(existingAddr, existing.End),
			"range", utils.HexRange(address, split.End),
		)
	}

	// Grow the plan until it is closed: every split it touches is either
	// absorbed or a conflict, and every other split of an absorbed unit in
	// this section is pulled in as well.
	removed := map[uint32]bool{}
	renamed := map[string]bool{}
	owned := func(unit string) bool { return unit == split.Unit || renamed[unit] }
	for {
		var (
			conflict error
			skip     bool
			changed  bool
		)
		section.Splits.ForRange(plan.start, plan.split.End, func(addr uint32, s ObjSplit) bool {
			if removed[addr] {
				return true
			}
			if !owned(s.Unit) {
				if split.Autogenerated && !s.Autogenerated {
					level.Debug(o.logger).Log(
						"msg", "keeping confirmed split",
						"unit", s.Unit,
						"section", section.Name,
						"range", utils.HexRange(addr, s.End),
					)
					skip = true
					return false
				}
				if !s.Autogenerated {
					conflict = &OverlappingSplitError{
						Unit:          split.Unit,
						Section:       section.Name,
						Start:         plan.start,
						End:           plan.split.End,
						ExistingUnit:  s.Unit,
						ExistingStart: addr,
						ExistingEnd:   s.End,
					}
					return false
				}
				renamed[s.Unit] = true
			}
			removed[addr] = true
			changed = true
			return true
		})
		if skip {
			return nil, nil
		}
		if conflict != nil {
			return nil, conflict
		}

		section.Splits.Ascend(func(addr uint32, s ObjSplit) bool {
			if removed[addr] || !renamed[s.Unit] {
				return true
			}
			var merged ObjSplit
			merged, conflict = mergeSplit(section, plan.start, plan.split, addr, s)
			if conflict != nil {
				return false
			}
			plan.start = min(plan.start, addr)
			plan.split = merged
			removed[addr] = true
			changed = true
			return true
		})
		if conflict != nil {
			return nil, conflict
		}
		if !changed {
			break
		}
	}

	utils.Assert(existing == nil || removed[existingAddr], "existing split outside merged range")
	plan.remove = lo.Keys(removed)
	plan.rename = lo.Keys(renamed)
	return plan, nil
}

// mergeSplit combines two splits of the same unit into one covering both.
func mergeSplit(section *ObjSection, existingAddr uint32, existing ObjSplit, address uint32, split ObjSplit) (ObjSplit, error) {
	align := existing.Align
	if split.Align != 0 {
		if align != 0 && align != split.Align {
			return ObjSplit{}, &AlignmentConflictError{
				Unit:     split.Unit,
				Section:  section.Name,
				Start:    existingAddr,
				End:      existing.End,
				Existing: existing.Align,
				Incoming: split.Align,
			}
		}
		align = split.Align
	}
	if split.Common != existing.Common {
		return ObjSplit{}, &CommonFlagConflictError{
			Unit:           split.Unit,
			Section:        section.Name,
			ExistingStart:  existingAddr,
			ExistingEnd:    existing.End,
			ExistingCommon: existing.Common,
			IncomingStart:  address,
			IncomingEnd:    split.End,
			IncomingCommon: split.Common,
		}
	}
	return ObjSplit{
		Unit:          existing.Unit,
		End:           unionEnd(existing.End, split.End),
		Align:         align,
		Common:        split.Common,
		Autogenerated: existing.Autogenerated && split.Autogenerated,
	}, nil
}

// IsUnitAutogenerated reports whether every split of unit is autogenerated.
// A unit with no splits counts as autogenerated.
func (o *ObjInfo) IsUnitAutogenerated(unit string) bool {
	auto := true
	o.Sections.AllSplits(func(_ int, _ *ObjSection, _ uint32, split ObjSplit) bool {
		if split.Unit == unit && !split.Autogenerated {
			auto = false
			return false
		}
		return true
	})
	return auto
}

func (o *ObjInfo) CodeSize() uint32 {
	return lo.SumBy(o.Sections.sections, func(s *ObjSection) uint32 {
		if s.Kind != SectionCode {
			return 0
		}
		return uint32(s.Size)
	})
}

// DataSize counts every non-code section plus common symbols, which occupy
// no section bytes until the linker allocates them.
func (o *ObjInfo) DataSize() uint32 {
	sections := lo.SumBy(o.Sections.sections, func(s *ObjSection) uint32 {
		if s.Kind == SectionCode {
			return 0
		}
		return uint32(s.Size)
	})
	common := lo.SumBy(o.Symbols.symbols, func(s ObjSymbol) uint32 {
		if !s.Flags.IsCommon() {
			return 0
		}
		return uint32(s.Size)
	})
	return sections + common
}
