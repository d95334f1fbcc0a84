package linker

import (
	"debug/elf"

	"github.com/chenyang8094/mold/pkg/utils"
)

type OutputEhdrWriter struct {
	OutputWriter
}

func NewOutputEhdrWriter() *OutputEhdrWriter {
	return &OutputEhdrWriter{
		OutputWriter{
			Name: "ehdr",
			Shdr: Shdr{
				Flags:     uint32(elf.SHF_ALLOC),
				Size:      uint32(EhdrSize),
				AddrAlign: WordSize,
			},
		},
	}
}

// getEntryAddress returns _start if some input defines it, else the start
// of .text.
func getEntryAddress(ctx *Context) uint64 {
	if sym, ok := ctx.SymbolMap["_start"]; ok && sym.File != nil {
		return sym.GetAddr(ctx)
	}

	for _, osec := range ctx.OutputSections {
		if osec.Name == ".text" {
			return uint64(osec.Shdr.Addr)
		}
	}
	return 0
}

func (o *OutputEhdrWriter) CopyBuf(ctx *Context) error {
	ehdr := Ehdr{}
	WriteMagic(ehdr.Ident[:])
	ehdr.Ident[elf.EI_CLASS] = uint8(elf.ELFCLASS32)
	ehdr.Ident[elf.EI_DATA] = uint8(elf.ELFDATA2LSB)
	ehdr.Ident[elf.EI_VERSION] = uint8(elf.EV_CURRENT)
	ehdr.Ident[elf.EI_OSABI] = 0
	ehdr.Ident[elf.EI_ABIVERSION] = 0

	if ctx.Args.Pic {
		ehdr.Type = uint16(elf.ET_DYN)
	} else {
		ehdr.Type = uint16(elf.ET_EXEC)
	}
	ehdr.Machine = uint16(elf.EM_386)
	ehdr.Version = uint32(elf.EV_CURRENT)
	ehdr.Entry = uint32(getEntryAddress(ctx))
	ehdr.EhSize = uint16(EhdrSize)
	ehdr.PhOff = ctx.Phdr.Shdr.Offset
	ehdr.PhEntSize = uint16(PhdrSize)
	ehdr.PhNum = uint16(ctx.Phdr.Shdr.Size / uint32(PhdrSize))
	ehdr.ShOff = ctx.Shdr.Shdr.Offset
	ehdr.ShEntSize = uint16(ShdrSize)
	ehdr.ShNum = uint16(ctx.Shdr.Shdr.Size / uint32(ShdrSize))
	if ctx.Shstrtab != nil {
		ehdr.ShStrndx = uint16(ctx.Shstrtab.Shndx)
	}

	utils.Write[Ehdr](ctx.Buf, ehdr)
	return nil
}
