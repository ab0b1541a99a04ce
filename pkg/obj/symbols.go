package obj

import (
	"strings"

	"github.com/dolthub/swiss"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

type SymbolIndex uint32

type ObjSymbolKind uint8

const (
	SymbolUnknown ObjSymbolKind = iota
	SymbolFunction
	SymbolObject
	SymbolSection
)

type ObjSymbolScope uint8

const (
	ScopeUnknown ObjSymbolScope = iota
	ScopeGlobal
	ScopeWeak
	ScopeLocal
)

type ObjSymbolFlagSet uint32

const (
	// FlagCommon marks an uninitialized global coalesced by the linker.
	FlagCommon ObjSymbolFlagSet = 1 << iota
	FlagHidden
	FlagForceActive
	// FlagRelocationIgnore keeps relocation analysis from targeting the symbol.
	FlagRelocationIgnore
	FlagNoWrite
	FlagStripped
)

func (f ObjSymbolFlagSet) Has(flag ObjSymbolFlagSet) bool { return f&flag != 0 }

func (f ObjSymbolFlagSet) IsCommon() bool { return f.Has(FlagCommon) }

func (f ObjSymbolFlagSet) IsHidden() bool { return f.Has(FlagHidden) }

func (f ObjSymbolFlagSet) IsForceActive() bool { return f.Has(FlagForceActive) }

func (f *ObjSymbolFlagSet) Set(flag ObjSymbolFlagSet, v bool) {
	if v {
		*f |= flag
	} else {
		*f &^= flag
	}
}

type ObjSymbol struct {
	Name          string
	DemangledName string
	Address       uint64
	// Section is the index of the defining section, nil for absolute symbols.
	Section   *int
	Size      uint64
	SizeKnown bool
	Kind      ObjSymbolKind
	Scope     ObjSymbolScope
	Flags     ObjSymbolFlagSet
	Align     uint32
}

func (s *ObjSymbol) inSection(section int) bool {
	return s.Section != nil && *s.Section == section
}

// Names given to symbols discovered by analysis rather than read from a
// symbol table.
var autoSymbolPrefixes = []string{"lbl_", "fn_", "jumptable_", "gap_"}

func isAutoSymbol(s *ObjSymbol) bool {
	for _, prefix := range autoSymbolPrefixes {
		if strings.HasPrefix(s.Name, prefix) {
			return true
		}
	}
	return false
}

type ObjSymbols struct {
	kind    ObjKind
	logger  log.Logger
	symbols []ObjSymbol
	byName  *swiss.Map[string, []SymbolIndex]
}

func newObjSymbols(kind ObjKind, symbols []ObjSymbol, logger log.Logger) ObjSymbols {
	s := ObjSymbols{
		kind:    kind,
		logger:  logger,
		symbols: symbols,
		byName:  swiss.NewMap[string, []SymbolIndex](uint32(max(len(symbols), 8))),
	}
	for i := range symbols {
		s.index(SymbolIndex(i))
	}
	return s
}

func (s *ObjSymbols) index(idx SymbolIndex) {
	name := s.symbols[idx].Name
	ids, _ := s.byName.Get(name)
	s.byName.Put(name, append(ids, idx))
}

func (s *ObjSymbols) unindex(idx SymbolIndex) {
	name := s.symbols[idx].Name
	ids, ok := s.byName.Get(name)
	if !ok {
		return
	}
	out := ids[:0]
	for _, id := range ids {
		if id != idx {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		s.byName.Delete(name)
		return
	}
	s.byName.Put(name, out)
}

func (s *ObjSymbols) Len() int {
	return len(s.symbols)
}

func (s *ObjSymbols) At(idx SymbolIndex) (*ObjSymbol, bool) {
	if int(idx) >= len(s.symbols) {
		return nil, false
	}
	return &s.symbols[idx], true
}

func (s *ObjSymbols) Ascend(fn func(idx SymbolIndex, symbol *ObjSymbol) bool) {
	for i := range s.symbols {
		if !fn(SymbolIndex(i), &s.symbols[i]) {
			return
		}
	}
}

// AddDirect appends symbol without looking for an existing entry.
func (s *ObjSymbols) AddDirect(symbol ObjSymbol) SymbolIndex {
	idx := SymbolIndex(len(s.symbols))
	s.symbols = append(s.symbols, symbol)
	s.index(idx)
	return idx
}

// Add inserts symbol. With replace set, a symbol already describing the same
// location is overwritten in place and its index returned; otherwise the
// symbol is appended under a fresh index.
func (s *ObjSymbols) Add(symbol ObjSymbol, replace bool) (SymbolIndex, error) {
	if symbol.Section == nil && s.kind == ObjKindRelocatable {
		return 0, errors.Errorf("absolute symbol %s in relocatable object", symbol.Name)
	}
	if !replace {
		return s.AddDirect(symbol), nil
	}
	idx, ok := s.conflicting(&symbol)
	if !ok {
		return s.AddDirect(symbol), nil
	}
	existing := s.symbols[idx]
	switch {
	case symbol.SizeKnown && existing.SizeKnown && symbol.Size != existing.Size:
		level.Warn(s.logger).Log(
			"msg", "replacing symbol with different size",
			"symbol", symbol.Name,
			"existing", existing.Name,
			"old_size", existing.Size,
			"new_size", symbol.Size,
		)
	case !symbol.SizeKnown:
		symbol.Size = existing.Size
		symbol.SizeKnown = existing.SizeKnown
	}
	if symbol.Kind == SymbolUnknown {
		symbol.Kind = existing.Kind
	}
	if err := s.Replace(idx, symbol); err != nil {
		return 0, err
	}
	return idx, nil
}

func (s *ObjSymbols) conflicting(symbol *ObjSymbol) (SymbolIndex, bool) {
	if symbol.Section == nil {
		ids, _ := s.byName.Get(symbol.Name)
		for _, id := range ids {
			if s.symbols[id].Section == nil {
				return id, true
			}
		}
		return 0, false
	}
	for _, id := range s.AtSectionAddress(*symbol.Section, uint32(symbol.Address)) {
		existing := &s.symbols[id]
		if existing.Kind == symbol.Kind || (existing.Kind == SymbolUnknown && isAutoSymbol(existing)) {
			return id, true
		}
	}
	return 0, false
}

func (s *ObjSymbols) Replace(idx SymbolIndex, symbol ObjSymbol) error {
	if int(idx) >= len(s.symbols) {
		return errors.Errorf("invalid symbol index %d", idx)
	}
	s.unindex(idx)
	s.symbols[idx] = symbol
	s.index(idx)
	return nil
}

func (s *ObjSymbols) ForName(name string) []SymbolIndex {
	ids, _ := s.byName.Get(name)
	return append([]SymbolIndex(nil), ids...)
}

// ByName returns the symbol called name, preferring global definitions.
func (s *ObjSymbols) ByName(name string) (SymbolIndex, *ObjSymbol, bool) {
	ids, ok := s.byName.Get(name)
	if !ok || len(ids) == 0 {
		return 0, nil, false
	}
	best := ids[0]
	for _, id := range ids {
		if s.symbols[id].Scope == ScopeGlobal {
			best = id
			break
		}
	}
	return best, &s.symbols[best], true
}

func (s *ObjSymbols) ForSection(section int) []SymbolIndex {
	var out []SymbolIndex
	for i := range s.symbols {
		if s.symbols[i].inSection(section) {
			out = append(out, SymbolIndex(i))
		}
	}
	return out
}

func (s *ObjSymbols) AtSectionAddress(section int, address uint32) []SymbolIndex {
	var out []SymbolIndex
	for i := range s.symbols {
		if s.symbols[i].inSection(section) && uint32(s.symbols[i].Address) == address {
			out = append(out, SymbolIndex(i))
		}
	}
	return out
}
