package obj

type ObjSectionKind uint8

const (
	SectionCode ObjSectionKind = iota
	SectionData
	SectionReadOnlyData
	SectionBss
)

func (k ObjSectionKind) String() string {
	switch k {
	case SectionCode:
		return "code"
	case SectionData:
		return "data"
	case SectionReadOnlyData:
		return "rodata"
	case SectionBss:
		return "bss"
	}
	return "unknown"
}

type ObjSection struct {
	Name    string
	Kind    ObjSectionKind
	Address uint64
	Size    uint64
	Data    []byte
	Align   uint64
	// ElfIndex is the index of the section in the file it was read from.
	ElfIndex   int
	FileOffset uint64
	// SectionKnown is set once the section's name and kind are confirmed.
	SectionKnown bool

	Splits      ObjSplits
	Relocations ObjRelocations
}

func (s *ObjSection) Start() uint32 {
	return uint32(s.Address)
}

func (s *ObjSection) End() uint32 {
	return uint32(s.Address + s.Size)
}

func (s *ObjSection) Contains(address uint32) bool {
	return address >= s.Start() && address < s.End()
}

// ObjSections keeps sections in file order; a section's index is its
// position.
type ObjSections struct {
	kind     ObjKind
	units    *unitTable
	sections []*ObjSection
}

func newObjSections(kind ObjKind, sections []*ObjSection, units *unitTable) ObjSections {
	for _, s := range sections {
		s.Splits.attach(units)
	}
	return ObjSections{kind: kind, units: units, sections: sections}
}

func (s *ObjSections) Len() int {
	return len(s.sections)
}

func (s *ObjSections) Get(index int) (*ObjSection, bool) {
	if index < 0 || index >= len(s.sections) {
		return nil, false
	}
	return s.sections[index], true
}

func (s *ObjSections) Push(section *ObjSection) int {
	section.Splits.attach(s.units)
	s.sections = append(s.sections, section)
	return len(s.sections) - 1
}

func (s *ObjSections) Ascend(fn func(index int, section *ObjSection) bool) {
	for i, section := range s.sections {
		if !fn(i, section) {
			return
		}
	}
}

// ByName returns the first section called name.
func (s *ObjSections) ByName(name string) (int, *ObjSection, bool) {
	for i, section := range s.sections {
		if section.Name == name {
			return i, section, true
		}
	}
	return -1, nil, false
}

func (s *ObjSections) ByKind(kind ObjSectionKind) []int {
	var out []int
	for i, section := range s.sections {
		if section.Kind == kind {
			out = append(out, i)
		}
	}
	return out
}

// AtAddress finds the section containing address. Only meaningful for
// executables, where sections do not share addresses.
func (s *ObjSections) AtAddress(address uint32) (int, *ObjSection, bool) {
	if s.kind != ObjKindExecutable {
		return -1, nil, false
	}
	for i, section := range s.sections {
		if section.Contains(address) {
			return i, section, true
		}
	}
	return -1, nil, false
}

// WithRange finds the section containing all of [start, end).
func (s *ObjSections) WithRange(start, end uint32) (int, *ObjSection, bool) {
	if s.kind != ObjKindExecutable {
		return -1, nil, false
	}
	for i, section := range s.sections {
		if start >= section.Start() && end <= section.End() {
			return i, section, true
		}
	}
	return -1, nil, false
}

// AllSplits visits every split of every section in section order.
func (s *ObjSections) AllSplits(fn func(index int, section *ObjSection, address uint32, split ObjSplit) bool) {
	for i, section := range s.sections {
		stop := false
		section.Splits.Ascend(func(address uint32, split ObjSplit) bool {
			stop = !fn(i, section, address, split)
			return !stop
		})
		if stop {
			return
		}
	}
}
