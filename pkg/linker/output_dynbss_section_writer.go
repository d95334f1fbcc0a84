package linker

import (
	"debug/elf"

	"github.com/chenyang8094/mold/pkg/utils"
)

// DynbssSection reserves space for imported variables that the executable
// refers to directly; R_386_COPY fills them at load time.
type DynbssSection struct {
	OutputWriter
	Syms []*Symbol
}

func NewDynbssSection() *DynbssSection {
	d := &DynbssSection{OutputWriter: *NewOutputWriter()}
	d.Name = ".dynbss"
	d.Shdr.Type = uint32(elf.SHT_NOBITS)
	d.Shdr.Flags = uint32(elf.SHF_ALLOC | elf.SHF_WRITE)
	d.Shdr.AddrAlign = 16
	return d
}

func (d *DynbssSection) AddSymbol(sym *Symbol) {
	offset := utils.AlignTo(uint64(d.Shdr.Size), uint64(d.Shdr.AddrAlign))
	sym.CopyrelOffset = int64(offset)
	d.Shdr.Size = uint32(offset + sym.GetSize())
	d.Syms = append(d.Syms, sym)
}
