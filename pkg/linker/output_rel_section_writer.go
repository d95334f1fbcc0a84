package linker

import (
	"debug/elf"
)

// RelDynSection is laid out as the GOT's relocations, then copy
// relocations, then one window per input section in the order AssignSlots
// visited them. Each part is written by its owner.
type RelDynSection struct {
	OutputWriter
	GotDynrels    int
	CopyrelOffset int
	NumEntries    int
}

func NewRelDynSection() *RelDynSection {
	r := &RelDynSection{OutputWriter: *NewOutputWriter()}
	r.Name = ".rel.dyn"
	r.Shdr.Type = uint32(elf.SHT_REL)
	r.Shdr.Flags = uint32(elf.SHF_ALLOC)
	r.Shdr.AddrAlign = WordSize
	r.Shdr.EntSize = uint32(RelSize)
	return r
}

func (r *RelDynSection) UpdateShdr(ctx *Context) {
	r.Shdr.Size = uint32(r.NumEntries * RelSize)
}

func (r *RelDynSection) CopyBuf(ctx *Context) error {
	start := uint32(r.CopyrelOffset * RelSize)
	dynrel := &dynrelWriter{buf: ctx.Buf[r.Shdr.Offset+start : r.Shdr.Offset+r.Shdr.Size]}
	for _, sym := range ctx.Dynbss.Syms {
		dynrel.emit(sym.GetAddr(ctx), elf.R_386_COPY, sym.DynsymIdx)
	}
	return nil
}

// RelPltSection has one entry per PLT symbol, in PLT order; the PLT entry
// passes the entry's offset to the resolver.
type RelPltSection struct {
	OutputWriter
}

func NewRelPltSection() *RelPltSection {
	r := &RelPltSection{OutputWriter: *NewOutputWriter()}
	r.Name = ".rel.plt"
	r.Shdr.Type = uint32(elf.SHT_REL)
	r.Shdr.Flags = uint32(elf.SHF_ALLOC)
	r.Shdr.AddrAlign = WordSize
	r.Shdr.EntSize = uint32(RelSize)
	return r
}

func (r *RelPltSection) UpdateShdr(ctx *Context) {
	r.Shdr.Size = uint32(len(ctx.Plt.Syms) * RelSize)
	if ctx.GotPlt != nil {
		r.Shdr.Info = uint32(ctx.GotPlt.Shndx)
	}
}

func (r *RelPltSection) CopyBuf(ctx *Context) error {
	dynrel := &dynrelWriter{buf: ctx.Buf[r.Shdr.Offset : r.Shdr.Offset+r.Shdr.Size]}
	for _, sym := range ctx.Plt.Syms {
		if sym.IsIfunc() && !sym.IsImported {
			dynrel.emit(sym.GetGotPltAddr(ctx), elf.R_386_IRELATIVE, 0)
		} else {
			dynrel.emit(sym.GetGotPltAddr(ctx), elf.R_386_JMP_SLOT, sym.DynsymIdx)
		}
	}
	return nil
}
