package linker

import (
	"debug/elf"

	"github.com/chenyang8094/mold/pkg/utils"
)

type OutputPhdrsWriter struct {
	OutputWriter
	Phdrs []Phdr
}

func NewOutputPhdrsWriter() *OutputPhdrsWriter {
	return &OutputPhdrsWriter{
		OutputWriter: OutputWriter{
			Name: "phdr",
			Shdr: Shdr{
				AddrAlign: WordSize,
				Flags:     uint32(elf.SHF_ALLOC),
			},
		},
	}
}

func (o *OutputPhdrsWriter) UpdateShdr(ctx *Context) {
	o.createPhdrs(ctx)
	o.Shdr.Size = uint32(len(o.Phdrs)) * uint32(PhdrSize)
}

func (o *OutputPhdrsWriter) CopyBuf(ctx *Context) error {
	base := ctx.Buf[o.Shdr.Offset:]
	for _, phdr := range o.Phdrs {
		utils.Write[Phdr](base, phdr)
		base = base[PhdrSize:]
	}
	return nil
}

// createPhdrs builds PHDR, NOTE, LOAD, TLS and GNU_STACK segments from the
// sorted chunk list. It also fixes the thread pointer, which on i386 sits
// at the end of the TLS block.
func (o *OutputPhdrsWriter) createPhdrs(ctx *Context) {
	o.Phdrs = make([]Phdr, 0)

	define := func(typ, flags uint32, minAlign uint32, chunk Chunker) {
		o.Phdrs = append(o.Phdrs, Phdr{})
		phdr := &o.Phdrs[len(o.Phdrs)-1]
		shdr := chunk.GetShdr()
		phdr.Type = typ
		phdr.Flags = flags
		phdr.Align = max(minAlign, shdr.AddrAlign)
		phdr.Offset = shdr.Offset
		if shdr.Type == uint32(elf.SHT_NOBITS) {
			phdr.FileSize = 0
		} else {
			phdr.FileSize = shdr.Size
		}
		phdr.VAddr = shdr.Addr
		phdr.PAddr = shdr.Addr
		phdr.MemSize = shdr.Size
	}

	push := func(chunk Chunker) {
		phdr := &o.Phdrs[len(o.Phdrs)-1]
		shdr := chunk.GetShdr()
		phdr.Align = max(phdr.Align, shdr.AddrAlign)
		if shdr.Type != uint32(elf.SHT_NOBITS) {
			phdr.FileSize = shdr.Addr + shdr.Size - phdr.VAddr
		}
		phdr.MemSize = shdr.Addr + shdr.Size - phdr.VAddr
	}

	define(uint32(elf.PT_PHDR), uint32(elf.PF_R), WordSize, ctx.Phdr)

	chunks := ctx.Chunks
	for i := 0; i < len(chunks); i++ {
		if !isNote(chunks[i]) {
			continue
		}

		flags := toPhdrFlags(chunks[i])
		define(uint32(elf.PT_NOTE), flags, chunks[i].GetShdr().AddrAlign, chunks[i])
		for i+1 < len(chunks) && isNote(chunks[i+1]) && toPhdrFlags(chunks[i+1]) == flags {
			push(chunks[i+1])
			i++
		}
	}

	// .tbss takes no space in any LOAD segment.
	loadable := utils.RemoveIf(append([]Chunker{}, chunks...), func(chunk Chunker) bool {
		return isTbss(chunk) || !isAlloc(chunk)
	})

	for i := 0; i < len(loadable); {
		first := loadable[i]
		flags := toPhdrFlags(first)
		define(uint32(elf.PT_LOAD), flags, PageSize, first)
		i++

		for i < len(loadable) && !isBss(loadable[i]) && toPhdrFlags(loadable[i]) == flags {
			push(loadable[i])
			i++
		}
		for i < len(loadable) && isBss(loadable[i]) && toPhdrFlags(loadable[i]) == flags {
			push(loadable[i])
			i++
		}
	}

	for i := 0; i < len(chunks); i++ {
		if !isTls(chunks[i]) {
			continue
		}

		define(uint32(elf.PT_TLS), toPhdrFlags(chunks[i]), 1, chunks[i])
		for i+1 < len(chunks) && isTls(chunks[i+1]) {
			push(chunks[i+1])
			i++
		}

		phdr := &o.Phdrs[len(o.Phdrs)-1]
		ctx.TlsBegin = uint64(phdr.VAddr)
		ctx.TpAddr = utils.AlignTo(uint64(phdr.VAddr)+uint64(phdr.MemSize), uint64(phdr.Align))
		break
	}

	o.Phdrs = append(o.Phdrs, Phdr{
		Type:  uint32(elf.PT_GNU_STACK),
		Flags: uint32(elf.PF_R | elf.PF_W),
		Align: 1,
	})
}
