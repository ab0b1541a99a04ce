package obj

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectRange(s *ObjSplits, start, end uint32) []uint32 {
	var out []uint32
	s.ForRange(start, end, func(address uint32, _ ObjSplit) bool {
		out = append(out, address)
		return true
	})
	return out
}

func TestObjSplits_ForRange(t *testing.T) {
	var s ObjSplits
	s.Push(0x100, ObjSplit{Unit: "a.c", End: 0x180})
	s.Push(0x200, ObjSplit{Unit: "b.c", End: 0x280})
	s.Push(0x300, ObjSplit{Unit: "c.c"})

	assert.Equal(t, []uint32{0x100}, collectRange(&s, 0x140, 0x160))
	assert.Empty(t, collectRange(&s, 0x180, 0x200))
	assert.Equal(t, []uint32{0x100, 0x200}, collectRange(&s, 0x17c, 0x204))
	assert.Equal(t, []uint32{0x200, 0x300}, collectRange(&s, 0x200, 0))
	assert.Equal(t, []uint32{0x300}, collectRange(&s, 0x1000, 0x1004), "open split reaches every later address")

	var first []uint32
	s.ForRange(0, 0, func(address uint32, _ ObjSplit) bool {
		first = append(first, address)
		return false
	})
	assert.Equal(t, []uint32{0x100}, first)
}

func TestObjSplits_ForAddress(t *testing.T) {
	var s ObjSplits
	s.Push(0x100, ObjSplit{Unit: "a.c", End: 0x180})
	s.Push(0x200, ObjSplit{Unit: "b.c"})

	addr, split, ok := s.ForAddress(0x17f)
	require.True(t, ok)
	assert.Equal(t, uint32(0x100), addr)
	assert.Equal(t, "a.c", split.Unit)

	_, _, ok = s.ForAddress(0x180)
	assert.False(t, ok)
	_, _, ok = s.ForAddress(0xff)
	assert.False(t, ok)

	addr, split, ok = s.ForAddress(0xffff0000)
	require.True(t, ok)
	assert.Equal(t, uint32(0x200), addr)
	assert.Equal(t, "b.c", split.Unit)
}

func TestObjSplits_PushReplacesAtSameStart(t *testing.T) {
	var s ObjSplits
	s.Push(0x100, ObjSplit{Unit: "a.c", End: 0x180})
	s.Push(0x100, ObjSplit{Unit: "b.c", End: 0x120, Align: 8})
	assert.Equal(t, 1, s.Len())

	split, ok := s.At(0x100)
	require.True(t, ok)
	assert.Equal(t, ObjSplit{Unit: "b.c", End: 0x120, Align: 8}, split)

	removed, ok := s.Remove(0x100)
	require.True(t, ok)
	assert.Equal(t, "b.c", removed.Unit)
	assert.Zero(t, s.Len())
	_, ok = s.Remove(0x100)
	assert.False(t, ok)
}

func TestObjSplits_ForUnit(t *testing.T) {
	var s ObjSplits
	addr, split, err := s.ForUnit("a.c")
	require.NoError(t, err)
	assert.Nil(t, split)
	assert.Zero(t, addr)

	s.Push(0x100, ObjSplit{Unit: "a.c", End: 0x180})
	s.Push(0x200, ObjSplit{Unit: "b.c", End: 0x280})
	addr, split, err = s.ForUnit("b.c")
	require.NoError(t, err)
	require.NotNil(t, split)
	assert.Equal(t, uint32(0x200), addr)
	assert.Equal(t, uint32(0x280), split.End)

	s.Push(0x300, ObjSplit{Unit: "a.c", End: 0x380})
	_, _, err = s.ForUnit("a.c")
	var multiple *MultipleSplitsError
	require.ErrorAs(t, err, &multiple)
	assert.Equal(t, [2]uint32{0x100, 0x180}, multiple.First)
	assert.Equal(t, [2]uint32{0x300, 0x380}, multiple.Second)
}

func TestObjSplits_AttachReinternsUnits(t *testing.T) {
	section := &ObjSection{Name: ".text", Kind: SectionCode, Address: 0x100, Size: 0x100}
	section.Splits.Push(0x100, ObjSplit{Unit: "a.c", End: 0x140})
	o := NewObjInfo(ObjKindExecutable, ArchitecturePowerPC, "main.dol", nil, []*ObjSection{section})

	require.NoError(t, o.AddSplit(0, 0x140, ObjSplit{Unit: "a.c", End: 0x180}))
	split, ok := section.Splits.At(0x100)
	require.True(t, ok)
	assert.Equal(t, ObjSplit{Unit: "a.c", End: 0x180}, split)
	assert.Equal(t, 1, section.Splits.Len())
}

func TestObjSplits_Disjoint(t *testing.T) {
	var s ObjSplits
	assert.True(t, s.disjoint())
	s.Push(0x100, ObjSplit{Unit: "a.c", End: 0x180})
	s.Push(0x180, ObjSplit{Unit: "b.c", End: 0x180})
	assert.True(t, s.disjoint())
	s.Push(0x17c, ObjSplit{Unit: "c.c", End: 0x17c})
	assert.False(t, s.disjoint())
}

func TestUnionEnd(t *testing.T) {
	assert.Equal(t, uint32(0x200), unionEnd(0x100, 0x200))
	assert.Equal(t, uint32(0), unionEnd(0, 0x200))
	assert.Equal(t, uint32(0), unionEnd(0x100, 0))
}
