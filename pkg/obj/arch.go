package obj

import (
	"debug/elf"

	"github.com/pkg/errors"
)

type ObjKind uint8

const (
	// ObjKindExecutable is a fully linked image.
	ObjKindExecutable ObjKind = iota
	// ObjKindRelocatable is an object whose addresses are section relative.
	ObjKindRelocatable
)

func (k ObjKind) String() string {
	switch k {
	case ObjKindExecutable:
		return "executable"
	case ObjKindRelocatable:
		return "relocatable"
	}
	return "unknown"
}

type ObjArchitecture uint8

const (
	ArchitecturePowerPC ObjArchitecture = iota
)

func ArchitectureFromMachine(machine elf.Machine) (ObjArchitecture, error) {
	switch machine {
	case elf.EM_PPC:
		return ArchitecturePowerPC, nil
	}
	return 0, errors.Errorf("unsupported machine %s", machine)
}

func (a ObjArchitecture) Machine() elf.Machine {
	return elf.EM_PPC
}

func (a ObjArchitecture) String() string {
	return "powerpc"
}
