package linker

import (
	"debug/elf"

	"github.com/chenyang8094/mold/pkg/utils"
)

// EhFrameSection concatenates the .eh_frame sections of all inputs. Its
// relocations are applied here rather than by the generic appliers since
// unwind tables only ever hold absolute or PC-relative words.
type EhFrameSection struct {
	OutputSection
}

func NewEhFrameSection() *EhFrameSection {
	e := &EhFrameSection{}
	e.Name = ".eh_frame"
	e.Shdr.Type = uint32(elf.SHT_PROGBITS)
	e.Shdr.Flags = uint32(elf.SHF_ALLOC)
	e.Shdr.AddrAlign = WordSize
	return e
}

// ApplyReloc patches the word at offset, relative to the start of the
// output section, with val, the address the relocation refers to.
func (e *EhFrameSection) ApplyReloc(ctx *Context, rel *Rel, offset uint64, val uint64) error {
	loc := ctx.Buf[uint64(e.Shdr.Offset)+offset:]

	switch rel.Type {
	case elf.R_386_NONE:
	case elf.R_386_32:
		utils.Write[uint32](loc, uint32(val))
	case elf.R_386_PC32:
		utils.Write[uint32](loc, uint32(val-uint64(e.Shdr.Addr)-offset))
	default:
		return newFatal(nil, rel, nil, "unsupported relocation in .eh_frame")
	}
	return nil
}

func (e *EhFrameSection) CopyBuf(ctx *Context) error {
	base := ctx.Buf[e.Shdr.Offset:]

	for _, isec := range e.InputSections {
		if !isec.IsAlive {
			continue
		}
		copy(base[isec.Offset:], isec.Content)

		for a := range isec.Rels {
			rel := &isec.Rels[a]
			if rel.Type == elf.R_386_NONE {
				continue
			}

			sym := isec.ObjFile.Symbols[rel.Sym]
			if sym.File == nil {
				ctx.Diag.ReportUndef(sym, isec)
				continue
			}

			S, A, _ := isec.symbolValue(ctx, rel, sym)
			offset := uint64(isec.Offset) + uint64(rel.Offset)
			if err := e.ApplyReloc(ctx, rel, offset, uint64(S+A)); err != nil {
				err.(*LinkError).Section = isec
				return err
			}
		}
	}
	return nil
}
