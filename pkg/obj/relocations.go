package obj

import (
	"debug/elf"
	"fmt"
	"strings"

	"github.com/google/btree"
	"github.com/pkg/errors"

	"ppcdtk/pkg/utils"
)

type RelocKind uint8

const (
	// RelocAbsolute embeds the full 32-bit target address in a data word.
	RelocAbsolute RelocKind = iota
	// RelocPpcAddr16Hi is the upper half of an address.
	RelocPpcAddr16Hi
	// RelocPpcAddr16Ha is the upper half adjusted for the sign of the paired low half.
	RelocPpcAddr16Ha
	RelocPpcAddr16Lo
	// RelocPpcRel24 is a 24-bit word-aligned branch displacement.
	RelocPpcRel24
	// RelocPpcRel14 is a 14-bit word-aligned conditional branch displacement.
	RelocPpcRel14
	// RelocPpcEmbSda21 addresses small data relative to r2 or r13.
	RelocPpcEmbSda21
)

type relocKindName struct {
	short  string
	legacy string
	elf    elf.R_PPC
}

var relocKindNames = [...]relocKindName{
	RelocAbsolute:    {"abs", "Absolute", elf.R_PPC_ADDR32},
	RelocPpcAddr16Hi: {"hi", "PpcAddr16Hi", elf.R_PPC_ADDR16_HI},
	RelocPpcAddr16Ha: {"ha", "PpcAddr16Ha", elf.R_PPC_ADDR16_HA},
	RelocPpcAddr16Lo: {"l", "PpcAddr16Lo", elf.R_PPC_ADDR16_LO},
	RelocPpcRel24:    {"rel24", "PpcRel24", elf.R_PPC_REL24},
	RelocPpcRel14:    {"rel14", "PpcRel14", elf.R_PPC_REL14},
	RelocPpcEmbSda21: {"sda21", "PpcEmbSda21", elf.R_PPC_EMB_SDA21},
}

func RelocKinds() []RelocKind {
	kinds := make([]RelocKind, len(relocKindNames))
	for i := range relocKindNames {
		kinds[i] = RelocKind(i)
	}
	return kinds
}

func (k RelocKind) valid() bool {
	return int(k) < len(relocKindNames)
}

func (k RelocKind) String() string {
	if !k.valid() {
		return fmt.Sprintf("RelocKind(%d)", uint8(k))
	}
	return relocKindNames[k].short
}

// ParseRelocKind accepts the short code or the legacy long name of a kind.
func ParseRelocKind(s string) (RelocKind, error) {
	for i, n := range relocKindNames {
		if s == n.short || s == n.legacy {
			return RelocKind(i), nil
		}
	}
	codes := make([]string, len(relocKindNames))
	for i, n := range relocKindNames {
		codes[i] = n.short
	}
	return 0, errors.Errorf("unknown relocation kind %q, expected one of %s", s, strings.Join(codes, ", "))
}

func (k RelocKind) MarshalText() ([]byte, error) {
	if !k.valid() {
		return nil, errors.Errorf("invalid relocation kind %d", uint8(k))
	}
	return []byte(relocKindNames[k].short), nil
}

func (k *RelocKind) UnmarshalText(text []byte) error {
	kind, err := ParseRelocKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

func (k RelocKind) ElfType() elf.R_PPC {
	return relocKindNames[k].elf
}

func RelocKindFromElf(typ elf.R_PPC) (RelocKind, error) {
	for i, n := range relocKindNames {
		if n.elf == typ {
			return RelocKind(i), nil
		}
	}
	return 0, errors.Errorf("unsupported relocation type %s", typ)
}

type ObjReloc struct {
	Kind         RelocKind
	TargetSymbol SymbolIndex
	Addend       int64
	// Module is the id of the module the target lives in, nil if local.
	Module *uint32
}

func (r ObjReloc) clone() ObjReloc {
	if r.Module != nil {
		module := *r.Module
		r.Module = &module
	}
	return r
}

type RelocationEntry struct {
	Address uint32
	Reloc   ObjReloc
}

type ExistingRelocationError struct {
	Address uint32
	Value   ObjReloc
}

func (e *ExistingRelocationError) Error() string {
	return fmt.Sprintf("relocation already exists at address %#010X", e.Address)
}

type relocEntry struct {
	address uint32
	reloc   *ObjReloc
}

// ObjRelocations holds at most one relocation per 4-byte word of a section.
// Addresses are aligned down to the containing word on insert.
type ObjRelocations struct {
	tree *btree.BTreeG[relocEntry]
}

func newRelocTree() *btree.BTreeG[relocEntry] {
	return btree.NewG(btreeDegree, func(a, b relocEntry) bool {
		return a.address < b.address
	})
}

func alignReloc(address uint32) uint32 {
	return utils.AlignDown(address, 4)
}

// NewObjRelocations builds a table from entries in order. On a duplicate
// word it stops and returns the table built so far along with an
// *ExistingRelocationError describing the entry already present.
func NewObjRelocations(entries []RelocationEntry) (*ObjRelocations, error) {
	r := &ObjRelocations{}
	for _, e := range entries {
		if err := r.Insert(e.Address, e.Reloc); err != nil {
			return r, err
		}
	}
	return r, nil
}

func (r *ObjRelocations) Len() int {
	if r.tree == nil {
		return 0
	}
	return r.tree.Len()
}

func (r *ObjRelocations) IsEmpty() bool {
	return r.Len() == 0
}

func (r *ObjRelocations) Insert(address uint32, reloc ObjReloc) error {
	if r.tree == nil {
		r.tree = newRelocTree()
	}
	address = alignReloc(address)
	if existing, ok := r.tree.Get(relocEntry{address: address}); ok {
		return &ExistingRelocationError{Address: address, Value: *existing.reloc}
	}
	r.tree.ReplaceOrInsert(relocEntry{address: address, reloc: &reloc})
	return nil
}

func (r *ObjRelocations) Replace(address uint32, reloc ObjReloc) {
	if r.tree == nil {
		r.tree = newRelocTree()
	}
	r.tree.ReplaceOrInsert(relocEntry{address: alignReloc(address), reloc: &reloc})
}

func (r *ObjRelocations) Remove(address uint32) (ObjReloc, bool) {
	if r.tree == nil {
		return ObjReloc{}, false
	}
	e, ok := r.tree.Delete(relocEntry{address: address})
	if !ok {
		return ObjReloc{}, false
	}
	return *e.reloc, true
}

// At looks up the relocation stored at address. Entries are only ever keyed
// by word-aligned addresses.
func (r *ObjRelocations) At(address uint32) (ObjReloc, bool) {
	if p := r.AtMut(address); p != nil {
		return *p, true
	}
	return ObjReloc{}, false
}

func (r *ObjRelocations) AtMut(address uint32) *ObjReloc {
	if r.tree == nil {
		return nil
	}
	e, ok := r.tree.Get(relocEntry{address: address})
	if !ok {
		return nil
	}
	return e.reloc
}

func (r *ObjRelocations) Contains(address uint32) bool {
	return r.tree != nil && r.tree.Has(relocEntry{address: address})
}

func (r *ObjRelocations) Ascend(fn func(address uint32, reloc ObjReloc) bool) {
	r.AscendMut(func(address uint32, reloc *ObjReloc) bool {
		return fn(address, *reloc)
	})
}

func (r *ObjRelocations) AscendMut(fn func(address uint32, reloc *ObjReloc) bool) {
	if r.tree == nil {
		return
	}
	r.tree.Ascend(func(e relocEntry) bool {
		return fn(e.address, e.reloc)
	})
}

func (r *ObjRelocations) Descend(fn func(address uint32, reloc ObjReloc) bool) {
	if r.tree == nil {
		return
	}
	r.tree.Descend(func(e relocEntry) bool {
		return fn(e.address, *e.reloc)
	})
}

// AscendRange iterates over relocations in [lo, hi).
func (r *ObjRelocations) AscendRange(lo, hi uint32, fn func(address uint32, reloc ObjReloc) bool) {
	if r.tree == nil {
		return
	}
	r.tree.AscendRange(relocEntry{address: lo}, relocEntry{address: hi}, func(e relocEntry) bool {
		return fn(e.address, *e.reloc)
	})
}

// DescendRange iterates over relocations in (lo, hi] from the top down.
func (r *ObjRelocations) DescendRange(hi, lo uint32, fn func(address uint32, reloc ObjReloc) bool) {
	if r.tree == nil {
		return
	}
	r.tree.DescendRange(relocEntry{address: hi}, relocEntry{address: lo}, func(e relocEntry) bool {
		return fn(e.address, *e.reloc)
	})
}

// CloneMap returns a snapshot detached from the table.
func (r *ObjRelocations) CloneMap() map[uint32]ObjReloc {
	out := make(map[uint32]ObjReloc, r.Len())
	r.Ascend(func(address uint32, reloc ObjReloc) bool {
		out[address] = reloc.clone()
		return true
	})
	return out
}

func (r *ObjRelocations) Clone() ObjRelocations {
	var c ObjRelocations
	r.Ascend(func(address uint32, reloc ObjReloc) bool {
		c.Replace(address, reloc.clone())
		return true
	})
	return c
}
