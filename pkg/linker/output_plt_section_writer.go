package linker

import "debug/elf"

type PltSection struct {
	OutputWriter
	Syms []*Symbol
}

func NewPltSection() *PltSection {
	p := &PltSection{OutputWriter: *NewOutputWriter()}
	p.Name = ".plt"
	p.Shdr.Type = uint32(elf.SHT_PROGBITS)
	p.Shdr.Flags = uint32(elf.SHF_ALLOC | elf.SHF_EXECINSTR)
	p.Shdr.AddrAlign = 16
	return p
}

func (p *PltSection) AddSymbol(sym *Symbol) {
	sym.PltIdx = int32(len(p.Syms))
	p.Syms = append(p.Syms, sym)
}

func (p *PltSection) UpdateShdr(ctx *Context) {
	if len(p.Syms) == 0 {
		p.Shdr.Size = 0
		return
	}
	p.Shdr.Size = uint32(PltHeaderSize + len(p.Syms)*PltEntrySize)
}

func (p *PltSection) CopyBuf(ctx *Context) error {
	if len(p.Syms) == 0 {
		return nil
	}

	base := ctx.Buf[p.Shdr.Offset:]
	WritePltHeader(ctx, base)
	for i, sym := range p.Syms {
		WritePltEntry(ctx, base[PltHeaderSize+i*PltEntrySize:], sym)
	}
	return nil
}
