package linker

import (
	"debug/elf"

	"github.com/chenyang8094/mold/pkg/utils"
)

type MachineType uint8

const (
	MachineTypeNone MachineType = iota
	MachineTypeI386
)

func (m MachineType) String() string {
	switch m {
	case MachineTypeNone:
		return "none"
	case MachineTypeI386:
		return "i386"
	}

	utils.Unreachable()
	return ""
}

func GetMachineTypeFromContent(content []byte) MachineType {
	switch GetFileTypeFromContent(content) {
	case FileTypeObject:
		machine := utils.Read[uint16](content[18:])
		if elf.Machine(machine) == elf.EM_386 &&
			elf.Class(content[elf.EI_CLASS]) == elf.ELFCLASS32 &&
			elf.Data(content[elf.EI_DATA]) == elf.ELFDATA2LSB {
			return MachineTypeI386
		}
	}

	return MachineTypeNone
}
