package obj

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addrRange struct {
	Start SectionAddress
	End   uint32
}

func rangesOf(r *AddressRanges) []addrRange {
	var out []addrRange
	r.Ascend(func(start SectionAddress, end uint32) bool {
		out = append(out, addrRange{start, end})
		return true
	})
	return out
}

func TestAddressRanges_Coalesce(t *testing.T) {
	var r AddressRanges
	r.Insert(NewSectionAddress(0, 0x100), 0x140)
	r.Insert(NewSectionAddress(0, 0x200), 0x240)
	r.Insert(NewSectionAddress(1, 0x140), 0x180)
	assert.Equal(t, 3, r.Len())

	// Adjacent on both sides.
	r.Insert(NewSectionAddress(0, 0x140), 0x200)
	assert.Equal(t, []addrRange{
		{NewSectionAddress(0, 0x100), 0x240},
		{NewSectionAddress(1, 0x140), 0x180},
	}, rangesOf(&r))

	r.Insert(NewSectionAddress(0, 0x80), 0x120)
	r.Insert(NewSectionAddress(0, 0x10), 0x10)
	assert.Equal(t, []addrRange{
		{NewSectionAddress(0, 0x80), 0x240},
		{NewSectionAddress(1, 0x140), 0x180},
	}, rangesOf(&r))
}

func TestAddressRanges_Contains(t *testing.T) {
	var r AddressRanges
	assert.False(t, r.Contains(NewSectionAddress(0, 0)))

	r.Insert(NewSectionAddress(2, 0x80003100), 0x80003110)
	assert.True(t, r.Contains(NewSectionAddress(2, 0x80003100)))
	assert.True(t, r.Contains(NewSectionAddress(2, 0x8000310c)))
	assert.False(t, r.Contains(NewSectionAddress(2, 0x80003110)))
	assert.False(t, r.Contains(NewSectionAddress(3, 0x80003104)))
	assert.False(t, r.Contains(NewSectionAddress(1, 0x80003104)))

	clone := r.Clone()
	r.Insert(NewSectionAddress(2, 0x80003110), 0x80003120)
	assert.True(t, r.Contains(NewSectionAddress(2, 0x80003118)))
	assert.False(t, clone.Contains(NewSectionAddress(2, 0x80003118)))
}

func TestSectionAddressMap(t *testing.T) {
	var m SectionAddressMap[uint32]
	_, ok := m.Get(NewSectionAddress(0, 0x10))
	assert.False(t, ok)

	_, replaced := m.Insert(NewSectionAddress(1, 0x10), 4)
	assert.False(t, replaced)
	m.Insert(NewSectionAddress(0, 0x20), 8)
	m.Insert(NewSectionAddress(1, 0x00), 12)
	old, replaced := m.Insert(NewSectionAddress(1, 0x10), 16)
	assert.True(t, replaced)
	assert.Equal(t, uint32(4), old)

	var keys []string
	m.Ascend(func(addr SectionAddress, _ uint32) bool {
		keys = append(keys, addr.String())
		return true
	})
	assert.Equal(t, []string{"0:0X00000020", "1:0X00000000", "1:0X00000010"}, keys)

	var inSection []uint32
	m.AscendRange(NewSectionAddress(1, 0), NewSectionAddress(2, 0), func(_ SectionAddress, v uint32) bool {
		inSection = append(inSection, v)
		return true
	})
	assert.Equal(t, []uint32{12, 16}, inSection)

	v, ok := m.Delete(NewSectionAddress(0, 0x20))
	require.True(t, ok)
	assert.Equal(t, uint32(8), v)
	assert.False(t, m.Contains(NewSectionAddress(0, 0x20)))
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, NewSectionAddress(1, 0x14), NewSectionAddress(1, 0x10).Add(4))
}
