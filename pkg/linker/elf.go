package linker

import (
	"bytes"
	"debug/elf"
	"fmt"
	"unsafe"
)

const EhdrSize = int(unsafe.Sizeof(Ehdr{}))
const ShdrSize = int(unsafe.Sizeof(Shdr{}))
const SymSize = int(unsafe.Sizeof(Sym{}))
const PhdrSize = int(unsafe.Sizeof(Phdr{}))
const RelSize = int(unsafe.Sizeof(ElfRel{}))

const WordSize = 4
const PageSize = 4096
const ImageBase uint64 = 0x08048000

// ELF32 layouts; i386 objects are always ELFCLASS32, little endian.
type Ehdr struct {
	Ident     [16]uint8
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint32
	PhOff     uint32
	ShOff     uint32
	Flags     uint32
	EhSize    uint16
	PhEntSize uint16
	PhNum     uint16
	ShEntSize uint16
	ShNum     uint16
	ShStrndx  uint16
}

type Shdr struct {
	Name      uint32
	Type      uint32
	Flags     uint32
	Addr      uint32
	Offset    uint32
	Size      uint32
	Link      uint32
	Info      uint32
	AddrAlign uint32
	EntSize   uint32
}

type Phdr struct {
	Type     uint32
	Offset   uint32
	VAddr    uint32
	PAddr    uint32
	FileSize uint32
	MemSize  uint32
	Flags    uint32
	Align    uint32
}

type Sym struct {
	Name  uint32
	Val   uint32
	Size  uint32
	Info  uint8
	Other uint8
	Shndx uint16
}

func (s *Sym) GetShndx(table []uint32, idx uint32) uint32 {
	if elf.SectionIndex(s.Shndx) != elf.SHN_XINDEX {
		return uint32(s.Shndx)
	}
	return table[idx]
}

func (s *Sym) IsAbs() bool {
	return s.Shndx == uint16(elf.SHN_ABS)
}

func (s *Sym) IsUndef() bool {
	return s.Shndx == uint16(elf.SHN_UNDEF)
}

func (s *Sym) IsCommon() bool {
	return s.Shndx == uint16(elf.SHN_COMMON)
}

func (s *Sym) Type() elf.SymType {
	return elf.ST_TYPE(s.Info)
}

func (s *Sym) Bind() elf.SymBind {
	return elf.ST_BIND(s.Info)
}

func (s *Sym) Visibility() elf.SymVis {
	return elf.ST_VISIBILITY(s.Other)
}

// ElfRel is the on-disk Elf32_Rel record.
type ElfRel struct {
	Offset uint32
	Info   uint32
}

// Rel is a decoded i386 relocation. i386 objects carry no explicit addend;
// it is read from the relocated bytes, see GetAddend.
type Rel struct {
	Offset uint32
	Type   elf.R_386
	Sym    uint32
}

func NewRel(erel ElfRel) Rel {
	return Rel{
		Offset: erel.Offset,
		Type:   elf.R_386(elf.R_TYPE32(erel.Info)),
		Sym:    elf.R_SYM32(erel.Info),
	}
}

func NewElfRel(offset uint32, typ elf.R_386, sym uint32) ElfRel {
	return ElfRel{Offset: offset, Info: elf.R_INFO32(sym, uint32(typ))}
}

func (r Rel) String() string {
	return fmt.Sprintf("%v at 0x%x", r.Type, r.Offset)
}

func ElfGetName(strTab []byte, offset uint32) string {
	length := uint32(bytes.IndexByte(strTab[offset:], 0))
	return string(strTab[offset : offset+length])
}
