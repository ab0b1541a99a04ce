package obj

import (
	"fmt"

	"ppcdtk/pkg/utils"
)

type InvalidSectionError struct {
	Index int
}

func (e *InvalidSectionError) Error() string {
	return fmt.Sprintf("invalid section index %d", e.Index)
}

type SplitOutOfBoundsError struct {
	Unit         string
	Start, End   uint32
	Section      string
	SectionStart uint32
	SectionEnd   uint32
}

func (e *SplitOutOfBoundsError) Error() string {
	return fmt.Sprintf("split %s %s is outside section %s %s",
		e.Unit, utils.HexRange(e.Start, e.End), e.Section, utils.HexRange(e.SectionStart, e.SectionEnd))
}

type AlignmentConflictError struct {
	Unit       string
	Section    string
	Start, End uint32
	Existing   uint32
	Incoming   uint32
}

func (e *AlignmentConflictError) Error() string {
	return fmt.Sprintf("conflicting alignment for split %s %s %s: %#X != %#X",
		e.Unit, e.Section, utils.HexRange(e.Start, e.End), e.Incoming, e.Existing)
}

type CommonFlagConflictError struct {
	Unit                       string
	Section                    string
	ExistingStart, ExistingEnd uint32
	ExistingCommon             bool
	IncomingStart, IncomingEnd uint32
	IncomingCommon             bool
}

func (e *CommonFlagConflictError) Error() string {
	return fmt.Sprintf("conflicting common flag for split %s %s %s (%t) and %s (%t)",
		e.Unit, e.Section,
		utils.HexRange(e.ExistingStart, e.ExistingEnd), e.ExistingCommon,
		utils.HexRange(e.IncomingStart, e.IncomingEnd), e.IncomingCommon)
}

type OverlappingSplitError struct {
	Unit                       string
	Section                    string
	Start, End                 uint32
	ExistingUnit               string
	ExistingStart, ExistingEnd uint32
}

func (e *OverlappingSplitError) Error() string {
	return fmt.Sprintf("new split %s %s %s overlaps existing split %s %s",
		e.Unit, e.Section, utils.HexRange(e.Start, e.End),
		e.ExistingUnit, utils.HexRange(e.ExistingStart, e.ExistingEnd))
}

// MultipleSplitsError is returned when a unit owns more than one split in a
// section where a single split was expected.
type MultipleSplitsError struct {
	Unit    string
	Section string
	First   [2]uint32
	Second  [2]uint32
}

func (e *MultipleSplitsError) Error() string {
	return fmt.Sprintf("multiple splits for unit %s in %s: %s, %s",
		e.Unit, e.Section,
		utils.HexRange(e.First[0], e.First[1]), utils.HexRange(e.Second[0], e.Second[1]))
}
