package linker

import (
	"debug/elf"

	"github.com/chenyang8094/mold/pkg/utils"
)

// relAction is what a data or address relocation needs at load time.
type relAction uint8

const (
	actNone    relAction = iota
	actError             // cannot be represented in this kind of output
	actCopyrel           // copy the imported variable into .dynbss
	actPlt               // call through a PLT entry
	actCplt              // canonical PLT: the PLT entry becomes the address
	actDynrel            // dynamic relocation against the symbol
	actBaserel           // R_386_RELATIVE
)

// Rows are indexed by outputKind, columns by symbolClass.
type relTable [3][4]relAction

const (
	outputDso = iota
	outputPie
	outputPde
)

var absrelTable = relTable{
	// absolute, local, imported data, imported code
	{actNone, actError, actError, actError}, // DSO
	{actNone, actError, actError, actError}, // PIE
	{actNone, actNone, actCopyrel, actCplt}, // PDE
}

var dynAbsrelTable = relTable{
	{actNone, actBaserel, actDynrel, actDynrel}, // DSO
	{actNone, actBaserel, actDynrel, actDynrel}, // PIE
	{actNone, actNone, actCopyrel, actCplt},     // PDE
}

var pcrelTable = relTable{
	{actError, actNone, actError, actPlt},   // DSO
	{actError, actNone, actCopyrel, actPlt}, // PIE
	{actNone, actNone, actCopyrel, actCplt}, // PDE
}

func outputKind(ctx *Context) int {
	if ctx.Args.Shared {
		return outputDso
	}
	if ctx.Args.Pic {
		return outputPie
	}
	return outputPde
}

func symbolClass(sym *Symbol) int {
	if sym.IsAbsolute() {
		return 0
	}
	if !sym.IsImported {
		return 1
	}
	if !sym.IsFunc() {
		return 2
	}
	return 3
}

func getRelAction(ctx *Context, sym *Symbol, table *relTable) relAction {
	return table[outputKind(ctx)][symbolClass(sym)]
}

// scanRel marks what an absolute or PC-relative relocation needs, using
// the dynamic relocation policy in table.
func (i *InputSection) scanRel(ctx *Context, sym *Symbol, rel *Rel, table *relTable) {
	switch getRelAction(ctx, sym, table) {
	case actNone:
	case actError:
		ctx.Errorf("%s: %v relocation against symbol `%s' can not be used; recompile with -fPIC",
			i, rel.Type, sym)
	case actCopyrel:
		sym.Flags.Or(NeedsCopyrel)
	case actPlt, actCplt:
		sym.Flags.Or(NeedsPlt)
	case actDynrel, actBaserel:
		if !i.IsWritable() {
			ctx.Errorf("%s: relocation %v against symbol `%s' in read-only section; recompile with -fPIC",
				i, rel.Type, sym)
		}
		i.NumDynrel++
	default:
		utils.Unreachable()
	}
}

func (i *InputSection) checkTlsPair(rels []Rel, idx int) error {
	rel := &rels[idx]
	if idx+1 == len(rels) || !isTlsPairSecond(rels[idx+1].Type) {
		return newFatal(i, rel, nil, "%v reloc must be followed by PLT or GOT32", rel.Type)
	}
	return nil
}

// checkInsnWindow makes sure the bytes a relaxation rewrites, from before
// bytes ahead of rel through size bytes, lie inside the section.
func (i *InputSection) checkInsnWindow(rel *Rel, before, size uint32) error {
	if rel.Offset < before || uint64(rel.Offset-before)+uint64(size) > uint64(len(i.Content)) {
		return newFatal(i, rel, nil, "%v reloc is not inside a complete instruction sequence", rel.Type)
	}
	return nil
}

// tlsPairWindow returns where the GD or LDM sequence starting at a pair's
// first relocation begins and how long it is, which depends on how the
// call to ___tls_get_addr is encoded.
func tlsPairWindow(first, next elf.R_386) (uint32, uint32) {
	viaGot := next == elf.R_386_GOT32 || next == elf.R_386_GOT32X
	switch {
	case first == elf.R_386_TLS_GD && viaGot:
		return 2, 12
	case first == elf.R_386_TLS_GD:
		return 3, 12
	case viaGot:
		return 2, 12
	default:
		return 2, 11
	}
}

// ScanRelocations records in the referenced symbols which GOT, PLT and TLS
// slots this section needs, and decides which relocations are relaxed.
// Sections may be scanned concurrently; symbol flags are only ORed.
func (i *InputSection) ScanRelocations(ctx *Context) error {
	utils.Assert(i.IsAlloc())

	rels := i.Rels
	i.Relax = make([]RelaxKind, len(rels))
	i.NumDynrel = 0

	for a := 0; a < len(rels); a++ {
		rel := &rels[a]
		if rel.Type == elf.R_386_NONE {
			continue
		}

		sym := i.ObjFile.Symbols[rel.Sym]
		if sym.File == nil {
			ctx.Diag.ReportUndef(sym, i)
			continue
		}

		if sym.IsIfunc() {
			sym.Flags.Or(NeedsGot | NeedsPlt)
		}

		switch rel.Type {
		case elf.R_386_8, elf.R_386_16:
			i.scanRel(ctx, sym, rel, &absrelTable)
		case elf.R_386_32:
			i.scanRel(ctx, sym, rel, &dynAbsrelTable)
		case elf.R_386_PC8, elf.R_386_PC16, elf.R_386_PC32:
			i.scanRel(ctx, sym, rel, &pcrelTable)
		case elf.R_386_GOT32, elf.R_386_GOTPC:
			sym.Flags.Or(NeedsGot)
		case elf.R_386_GOT32X:
			if ctx.Args.Relax && !sym.IsImported && sym.IsRelative() &&
				rel.Offset >= 2 && relaxGot32x(i.Content[rel.Offset-2:]) != 0 {
				i.Relax[a] = RelaxGot32x
			} else {
				sym.Flags.Or(NeedsGot)
			}
		case elf.R_386_PLT32:
			if sym.IsImported {
				sym.Flags.Or(NeedsPlt)
			}
		case elf.R_386_TLS_GOTIE, elf.R_386_TLS_LE, elf.R_386_TLS_IE:
			sym.Flags.Or(NeedsGotTp)
		case elf.R_386_TLS_GD:
			if err := i.checkTlsPair(rels, a); err != nil {
				return err
			}

			if relaxTlsGd(ctx, sym) {
				before, size := tlsPairWindow(rel.Type, rels[a+1].Type)
				if err := i.checkInsnWindow(rel, before, size); err != nil {
					return err
				}
				i.Relax[a] = RelaxTlsGdToLe
				i.Relax[a+1] = RelaxPairSecond
				a++
			} else {
				sym.Flags.Or(NeedsTlsGd)
			}
		case elf.R_386_TLS_LDM:
			if err := i.checkTlsPair(rels, a); err != nil {
				return err
			}

			if relaxTlsLd(ctx) {
				before, size := tlsPairWindow(rel.Type, rels[a+1].Type)
				if err := i.checkInsnWindow(rel, before, size); err != nil {
					return err
				}
				i.Relax[a] = RelaxTlsLdToLe
				i.Relax[a+1] = RelaxPairSecond
				a++
			} else {
				ctx.NeedsTlsLd.Store(true)
			}
		case elf.R_386_TLS_GOTDESC:
			if relaxTlsDesc(ctx, sym) {
				if err := i.checkInsnWindow(rel, 2, 6); err != nil {
					return err
				}
				i.Relax[a] = RelaxTlsDescToLe
			} else {
				sym.Flags.Or(NeedsTlsDesc)
			}
		case elf.R_386_TLS_DESC_CALL:
			if relaxTlsDesc(ctx, sym) {
				if err := i.checkInsnWindow(rel, 0, 2); err != nil {
					return err
				}
				i.Relax[a] = RelaxTlsDescToLe
			}
		case elf.R_386_GOTOFF, elf.R_386_TLS_LDO_32, elf.R_386_SIZE32:
		default:
			ctx.Errorf("%s: unknown relocation: %v", i, rel)
		}
	}

	return nil
}
