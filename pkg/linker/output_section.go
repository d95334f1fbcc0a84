package linker

import (
	"debug/elf"
	"strings"
)

type OutputSection struct {
	OutputWriter
	InputSections []*InputSection
	Idx           uint32 // the index in ctx.OutputSections
}

func NewOutputSection(name string, typ uint32, flags uint32, idx uint32) *OutputSection {
	o := &OutputSection{OutputWriter: *NewOutputWriter()}
	o.Name = name
	o.Shdr.Type = typ
	o.Shdr.Flags = flags
	o.Idx = idx
	return o
}

func (o *OutputSection) CopyBuf(ctx *Context) error {
	if o.Shdr.Type == uint32(elf.SHT_NOBITS) {
		return nil
	}

	base := ctx.Buf[o.Shdr.Offset:]
	for _, isec := range o.InputSections {
		isec.WriteTo(ctx, base[isec.Offset:])
	}
	return nil
}

var prefixes = []string{
	".text.", ".data.rel.ro.", ".data.", ".rodata.", ".bss.rel.ro.", ".bss.",
	".init_array.", ".fini_array.", ".tbss.", ".tdata.", ".gcc_except_table.",
	".ctors.", ".dtors.",
}

// GetOutputName maps an input section name to the output section it is
// placed in, e.g. .text.foo to .text.
func GetOutputName(name string, flags uint32) string {
	if (name == ".rodata" || strings.HasPrefix(name, ".rodata.")) &&
		flags&uint32(elf.SHF_MERGE) != 0 {
		if flags&uint32(elf.SHF_STRINGS) != 0 {
			return ".rodata.str"
		}
		return ".rodata.cst"
	}

	for _, prefix := range prefixes {
		stem := prefix[:len(prefix)-1]
		if name == stem || strings.HasPrefix(name, prefix) {
			return stem
		}
	}

	return name
}

func GetOutputSection(ctx *Context, name string, typ, flags uint32) *OutputSection {
	name = GetOutputName(name, flags)
	flags = flags &^ uint32(elf.SHF_GROUP) &^ uint32(elf.SHF_COMPRESSED) &^
		uint32(elf.SHF_LINK_ORDER)

	for _, osec := range ctx.OutputSections {
		if name == osec.Name && typ == osec.Shdr.Type && flags == osec.Shdr.Flags {
			return osec
		}
	}

	osec := NewOutputSection(name, typ, flags, uint32(len(ctx.OutputSections)))
	ctx.OutputSections = append(ctx.OutputSections, osec)
	return osec
}

func isTbss(chunk Chunker) bool {
	shdr := chunk.GetShdr()
	return shdr.Type == uint32(elf.SHT_NOBITS) && shdr.Flags&uint32(elf.SHF_TLS) != 0
}

func isBss(chunk Chunker) bool {
	shdr := chunk.GetShdr()
	return shdr.Type == uint32(elf.SHT_NOBITS) && shdr.Flags&uint32(elf.SHF_TLS) == 0
}

func isTls(chunk Chunker) bool {
	return chunk.GetShdr().Flags&uint32(elf.SHF_TLS) != 0
}

func isNote(chunk Chunker) bool {
	shdr := chunk.GetShdr()
	return shdr.Type == uint32(elf.SHT_NOTE) && shdr.Flags&uint32(elf.SHF_ALLOC) != 0
}

func isAlloc(chunk Chunker) bool {
	return chunk.GetShdr().Flags&uint32(elf.SHF_ALLOC) != 0
}

// toPhdrFlags gives the segment permissions a chunk needs.
func toPhdrFlags(chunk Chunker) uint32 {
	ret := uint32(elf.PF_R)
	flags := chunk.GetShdr().Flags
	if flags&uint32(elf.SHF_WRITE) != 0 {
		ret |= uint32(elf.PF_W)
	}
	if flags&uint32(elf.SHF_EXECINSTR) != 0 {
		ret |= uint32(elf.PF_X)
	}
	return ret
}
