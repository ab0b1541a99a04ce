package obj

// RelReloc is a relocation of a loadable module that is resolved when the
// module is linked against its imports.
type RelReloc struct {
	Kind          RelocKind
	Section       uint8
	Address       uint32
	ModuleID      uint32
	TargetSection uint8
	Addend        uint32
}

func (r RelReloc) External(moduleID uint32) bool {
	return r.ModuleID != moduleID
}
