package linker

import (
	"debug/elf"

	"github.com/chenyang8094/mold/pkg/utils"
)

// dynrelWriter appends Elf32_Rel records to a section's window in .rel.dyn.
type dynrelWriter struct {
	buf []byte
}

func (w *dynrelWriter) emit(offset uint64, typ elf.R_386, sym uint32) {
	utils.Assert(len(w.buf) >= RelSize)
	utils.Write[ElfRel](w.buf, NewElfRel(uint32(offset), typ, sym))
	w.buf = w.buf[RelSize:]
}

func (i *InputSection) relaxAt(idx int) RelaxKind {
	if idx < len(i.Relax) {
		return i.Relax[idx]
	}
	return RelaxNone
}

func (i *InputSection) dynrelWindow(ctx *Context) *dynrelWriter {
	if i.NumDynrel == 0 || ctx.RelDyn == nil || ctx.Buf == nil {
		return &dynrelWriter{}
	}
	start := uint64(ctx.RelDyn.Shdr.Offset) + uint64(i.ReldynOffset*RelSize)
	return &dynrelWriter{buf: ctx.Buf[start : start+uint64(i.NumDynrel*RelSize)]}
}

// symbolValue returns S and A for rel. A reference to a section symbol of
// a mergeable section resolves to the fragment it points into.
func (i *InputSection) symbolValue(ctx *Context, rel *Rel, sym *Symbol) (int64, int64, bool) {
	if frag, addend := i.GetFragment(rel); frag != nil {
		return int64(frag.GetAddr()), addend, true
	}
	return int64(sym.GetAddr(ctx)), i.GetAddend(rel), false
}

// ApplyRelocAlloc patches the copy of this section at base. The relaxation
// decisions taken by ScanRelocations are replayed, never re-derived.
func (i *InputSection) ApplyRelocAlloc(ctx *Context, base []byte) {
	rels := i.Rels
	dynrel := i.dynrelWindow(ctx)

	for a := 0; a < len(rels); a++ {
		rel := &rels[a]
		if rel.Type == elf.R_386_NONE {
			continue
		}

		sym := i.ObjFile.Symbols[rel.Sym]
		if sym.File == nil {
			continue
		}

		loc := base[rel.Offset:]

		check := func(val, lo, hi int64) {
			if val < lo || hi <= val {
				ctx.Errorf("%s: relocation %v against %s out of range: %d is not in [%d, %d)",
					i, rel, sym, val, lo, hi)
			}
		}

		S, A, _ := i.symbolValue(ctx, rel, sym)
		P := int64(i.GetAddr()) + int64(rel.Offset)
		GOT := int64(ctx.GotAddr())

		switch rel.Type {
		case elf.R_386_8:
			check(S+A, 0, 1<<8)
			loc[0] = uint8(S + A)
		case elf.R_386_16:
			check(S+A, 0, 1<<16)
			utils.Write[uint16](loc, uint16(S+A))
		case elf.R_386_32:
			i.applyDynAbsrel(ctx, sym, rel, loc, S, A, P, dynrel)
		case elf.R_386_PC8:
			check(S+A-P, -(1 << 7), 1<<7)
			loc[0] = uint8(S + A - P)
		case elf.R_386_PC16:
			check(S+A-P, -(1 << 15), 1<<15)
			utils.Write[uint16](loc, uint16(S+A-P))
		case elf.R_386_PC32, elf.R_386_PLT32:
			utils.Write[uint32](loc, uint32(S+A-P))
		case elf.R_386_GOT32:
			utils.Write[uint32](loc, uint32(int64(sym.GotIdx)*WordSize+A))
		case elf.R_386_GOT32X:
			if i.relaxAt(a) == RelaxGot32x {
				insn := relaxGot32x(base[rel.Offset-2:])
				utils.Assert(insn != 0)
				base[rel.Offset-2] = uint8(insn >> 8)
				base[rel.Offset-1] = uint8(insn)
				utils.Write[uint32](loc, uint32(S+A-GOT))
			} else {
				utils.Write[uint32](loc, uint32(int64(sym.GotIdx)*WordSize+A))
			}
		case elf.R_386_GOTOFF:
			utils.Write[uint32](loc, uint32(S+A-GOT))
		case elf.R_386_GOTPC:
			utils.Write[uint32](loc, uint32(GOT+A-P))
		case elf.R_386_TLS_GOTIE:
			utils.Write[uint32](loc, uint32(int64(sym.GetGotTpAddr(ctx))+A-GOT))
		case elf.R_386_TLS_LE:
			utils.Write[uint32](loc, uint32(S+A-int64(ctx.TpAddr)))
		case elf.R_386_TLS_IE:
			utils.Write[uint32](loc, uint32(int64(sym.GetGotTpAddr(ctx))+A))
		case elf.R_386_TLS_GD:
			if i.relaxAt(a) == RelaxTlsGdToLe {
				rewriteTlsGd(base, rel.Offset, rels[a+1].Type, uint32(int64(ctx.TpAddr)-S-A))
				a++
			} else {
				utils.Write[uint32](loc, uint32(int64(sym.GetTlsGdAddr(ctx))+A-GOT))
			}
		case elf.R_386_TLS_LDM:
			if i.relaxAt(a) == RelaxTlsLdToLe {
				rewriteTlsLd(base, rel.Offset, rels[a+1].Type, uint32(ctx.TpAddr-ctx.TlsBegin))
				a++
			} else {
				utils.Write[uint32](loc, uint32(int64(ctx.Got.GetTlsLdAddr(ctx))+A-GOT))
			}
		case elf.R_386_TLS_LDO_32:
			utils.Write[uint32](loc, uint32(S+A-int64(ctx.TlsBegin)))
		case elf.R_386_SIZE32:
			utils.Write[uint32](loc, uint32(int64(sym.GetSize())+A))
		case elf.R_386_TLS_GOTDESC:
			if i.relaxAt(a) == RelaxTlsDescToLe {
				// lea x@tlsdesc(%ebx), %eax -> lea x@ntpoff, %eax
				base[rel.Offset-2] = 0x8d
				base[rel.Offset-1] = 0x05
				utils.Write[uint32](loc, uint32(S+A-int64(ctx.TpAddr)))
			} else {
				utils.Write[uint32](loc, uint32(int64(sym.GetTlsDescAddr(ctx))+A-GOT))
			}
		case elf.R_386_TLS_DESC_CALL:
			if i.relaxAt(a) == RelaxTlsDescToLe {
				// call *(%eax) -> nop
				loc[0] = 0x66
				loc[1] = 0x90
			}
		default:
			utils.Unreachable()
		}
	}
}

// applyDynAbsrel resolves a word-sized absolute relocation, or leaves it
// to the dynamic loader when the address is not known at link time.
func (i *InputSection) applyDynAbsrel(ctx *Context, sym *Symbol, rel *Rel, loc []byte,
	S, A, P int64, dynrel *dynrelWriter) {
	switch getRelAction(ctx, sym, &dynAbsrelTable) {
	case actNone, actCopyrel, actPlt, actCplt:
		utils.Write[uint32](loc, uint32(S+A))
	case actBaserel:
		dynrel.emit(uint64(P), elf.R_386_RELATIVE, 0)
		utils.Write[uint32](loc, uint32(S+A))
	case actDynrel:
		dynrel.emit(uint64(P), elf.R_386_32, sym.DynsymIdx)
		WriteAddend(loc, A, rel.Type)
	case actError:
	default:
		utils.Unreachable()
	}
}

// ApplyRelocNonalloc patches a section that is not mapped at runtime, such
// as debug info. Nothing here can go through the GOT or the PLT, and there
// is no place address to be relative to.
func (i *InputSection) ApplyRelocNonalloc(ctx *Context, base []byte) {
	for a := range i.Rels {
		rel := &i.Rels[a]
		if rel.Type == elf.R_386_NONE {
			continue
		}

		sym := i.ObjFile.Symbols[rel.Sym]
		if sym.File == nil {
			ctx.Diag.ReportUndef(sym, i)
			continue
		}

		loc := base[rel.Offset:]

		check := func(val, lo, hi int64) {
			if val < lo || hi <= val {
				ctx.Errorf("%s: relocation %v against %s out of range: %d is not in [%d, %d)",
					i, rel, sym, val, lo, hi)
			}
		}

		S, A, isFrag := i.symbolValue(ctx, rel, sym)

		// A reference to a discarded section gets a tombstone instead of an
		// address, so that consumers can tell it from a real zero.
		tombstone := func() (uint64, bool) {
			if isFrag || sym.InputSection == nil || sym.InputSection.IsAlive {
				return 0, false
			}
			return ctx.Tombstone(i)
		}

		switch rel.Type {
		case elf.R_386_8:
			check(S+A, 0, 1<<8)
			loc[0] = uint8(S + A)
		case elf.R_386_16:
			check(S+A, 0, 1<<16)
			utils.Write[uint16](loc, uint16(S+A))
		case elf.R_386_32:
			if val, ok := tombstone(); ok {
				utils.Write[uint32](loc, uint32(val))
			} else {
				utils.Write[uint32](loc, uint32(S+A))
			}
		case elf.R_386_PC8:
			check(S+A, -(1 << 7), 1<<7)
			loc[0] = uint8(S + A)
		case elf.R_386_PC16:
			check(S+A, -(1 << 15), 1<<15)
			utils.Write[uint16](loc, uint16(S+A))
		case elf.R_386_PC32:
			utils.Write[uint32](loc, uint32(S+A))
		case elf.R_386_GOTPC:
			utils.Write[uint32](loc, uint32(int64(ctx.GotAddr())+A))
		case elf.R_386_GOTOFF:
			utils.Write[uint32](loc, uint32(S+A-int64(ctx.GotAddr())))
		case elf.R_386_TLS_LDO_32:
			if val, ok := tombstone(); ok {
				utils.Write[uint32](loc, uint32(val))
			} else {
				utils.Write[uint32](loc, uint32(S+A-int64(ctx.TlsBegin)))
			}
		case elf.R_386_SIZE32:
			utils.Write[uint32](loc, uint32(int64(sym.GetSize())+A))
		default:
			ctx.Errorf("%s: invalid relocation for non-allocated sections: %v", i, rel)
		}
	}
}
