package linker

import "debug/elf"

// PltGotSection holds PLT entries for symbols that also have a GOT slot.
// They jump through that slot and need no lazy binding.
type PltGotSection struct {
	OutputWriter
	Syms []*Symbol
}

func NewPltGotSection() *PltGotSection {
	p := &PltGotSection{OutputWriter: *NewOutputWriter()}
	p.Name = ".plt.got"
	p.Shdr.Type = uint32(elf.SHT_PROGBITS)
	p.Shdr.Flags = uint32(elf.SHF_ALLOC | elf.SHF_EXECINSTR)
	p.Shdr.AddrAlign = 16
	return p
}

func (p *PltGotSection) AddSymbol(sym *Symbol) {
	sym.PltGotIdx = int32(len(p.Syms))
	p.Syms = append(p.Syms, sym)
}

func (p *PltGotSection) UpdateShdr(ctx *Context) {
	p.Shdr.Size = uint32(len(p.Syms) * PltGotEntrySize)
}

func (p *PltGotSection) CopyBuf(ctx *Context) error {
	base := ctx.Buf[p.Shdr.Offset:]
	for i, sym := range p.Syms {
		WritePltgotEntry(ctx, base[i*PltGotEntrySize:], sym)
	}
	return nil
}
