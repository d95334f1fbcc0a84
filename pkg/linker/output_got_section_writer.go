package linker

import (
	"debug/elf"

	"github.com/chenyang8094/mold/pkg/utils"
)

// GotEntry is one word of .got and the dynamic relocation, if any, that
// the loader applies to it. Type is R_386_NONE for link-time constants.
type GotEntry struct {
	Idx  int32
	Val  uint64
	Type elf.R_386
	Sym  *Symbol
}

type GotSection struct {
	OutputWriter
	GotSyms     []*Symbol
	GotTpSyms   []*Symbol
	TlsGdSyms   []*Symbol
	TlsDescSyms []*Symbol
	TlsLdIdx    int32
}

func NewGotSection() *GotSection {
	g := &GotSection{OutputWriter: *NewOutputWriter(), TlsLdIdx: -1}
	g.Name = ".got"
	g.Shdr.Type = uint32(elf.SHT_PROGBITS)
	g.Shdr.Flags = uint32(elf.SHF_ALLOC | elf.SHF_WRITE)
	g.Shdr.AddrAlign = WordSize
	return g
}

func (g *GotSection) numWords() int32 {
	return int32(g.Shdr.Size / WordSize)
}

func (g *GotSection) AddGotSymbol(sym *Symbol) {
	sym.GotIdx = g.numWords()
	g.Shdr.Size += WordSize
	g.GotSyms = append(g.GotSyms, sym)
}

func (g *GotSection) AddGotTpSymbol(sym *Symbol) {
	sym.GotTpIdx = g.numWords()
	g.Shdr.Size += WordSize
	g.GotTpSyms = append(g.GotTpSyms, sym)
}

// AddTlsGdSymbol reserves the module ID and offset pair passed to
// ___tls_get_addr.
func (g *GotSection) AddTlsGdSymbol(sym *Symbol) {
	sym.TlsGdIdx = g.numWords()
	g.Shdr.Size += WordSize * 2
	g.TlsGdSyms = append(g.TlsGdSyms, sym)
}

func (g *GotSection) AddTlsDescSymbol(sym *Symbol) {
	sym.TlsDescIdx = g.numWords()
	g.Shdr.Size += WordSize * 2
	g.TlsDescSyms = append(g.TlsDescSyms, sym)
}

// AddTlsLd reserves the one pair all local-dynamic accesses share.
func (g *GotSection) AddTlsLd() {
	if g.TlsLdIdx == -1 {
		g.TlsLdIdx = g.numWords()
		g.Shdr.Size += WordSize * 2
	}
}

func (g *GotSection) GetTlsLdAddr(ctx *Context) uint64 {
	utils.Assert(g.TlsLdIdx != -1)
	return uint64(g.Shdr.Addr) + uint64(g.TlsLdIdx)*WordSize
}

func (g *GotSection) GetEntries(ctx *Context) []GotEntry {
	var entries []GotEntry

	for _, sym := range g.GotSyms {
		idx := sym.GotIdx
		switch {
		case sym.IsImported:
			entries = append(entries, GotEntry{idx, 0, elf.R_386_GLOB_DAT, sym})
		case ctx.Args.Pic && sym.IsRelative():
			entries = append(entries, GotEntry{idx, sym.GetAddr(ctx), elf.R_386_RELATIVE, nil})
		default:
			entries = append(entries, GotEntry{idx, sym.GetAddr(ctx), elf.R_386_NONE, nil})
		}
	}

	for _, sym := range g.GotTpSyms {
		idx := sym.GotTpIdx
		switch {
		case sym.IsImported:
			entries = append(entries, GotEntry{idx, 0, elf.R_386_TLS_TPOFF, sym})
		case ctx.Args.Shared:
			entries = append(entries, GotEntry{idx, sym.GetAddr(ctx) - ctx.TlsBegin, elf.R_386_TLS_TPOFF, nil})
		default:
			entries = append(entries, GotEntry{idx, sym.GetAddr(ctx) - ctx.TpAddr, elf.R_386_NONE, nil})
		}
	}

	for _, sym := range g.TlsGdSyms {
		idx := sym.TlsGdIdx
		switch {
		case sym.IsImported:
			entries = append(entries,
				GotEntry{idx, 0, elf.R_386_TLS_DTPMOD32, sym},
				GotEntry{idx + 1, 0, elf.R_386_TLS_DTPOFF32, sym})
		case ctx.Args.Static:
			// Module ID 1 is the executable itself.
			entries = append(entries,
				GotEntry{idx, 1, elf.R_386_NONE, nil},
				GotEntry{idx + 1, sym.GetAddr(ctx) - ctx.TlsBegin, elf.R_386_NONE, nil})
		default:
			entries = append(entries,
				GotEntry{idx, 0, elf.R_386_TLS_DTPMOD32, nil},
				GotEntry{idx + 1, sym.GetAddr(ctx) - ctx.TlsBegin, elf.R_386_NONE, nil})
		}
	}

	for _, sym := range g.TlsDescSyms {
		idx := sym.TlsDescIdx
		if sym.IsImported {
			entries = append(entries, GotEntry{idx, 0, elf.R_386_TLS_DESC, sym})
		} else {
			entries = append(entries,
				GotEntry{idx, 0, elf.R_386_TLS_DESC, nil},
				GotEntry{idx + 1, sym.GetAddr(ctx) - ctx.TlsBegin, elf.R_386_NONE, nil})
		}
	}

	if g.TlsLdIdx != -1 {
		if ctx.Args.Static {
			entries = append(entries, GotEntry{g.TlsLdIdx, 1, elf.R_386_NONE, nil})
		} else {
			entries = append(entries, GotEntry{g.TlsLdIdx, 0, elf.R_386_TLS_DTPMOD32, nil})
		}
	}

	return entries
}

// NumDynrels counts the dynamic relocations the GOT puts at the start of
// .rel.dyn.
func (g *GotSection) NumDynrels(ctx *Context) int {
	n := 0
	for _, ent := range g.GetEntries(ctx) {
		if ent.Type != elf.R_386_NONE {
			n++
		}
	}
	return n
}

func (g *GotSection) CopyBuf(ctx *Context) error {
	base := ctx.Buf[g.Shdr.Offset:]
	dynrel := &dynrelWriter{}
	if ctx.RelDyn != nil {
		dynrel.buf = ctx.Buf[ctx.RelDyn.Shdr.Offset:][:ctx.RelDyn.GotDynrels*RelSize]
	}

	for _, ent := range g.GetEntries(ctx) {
		utils.Write[uint32](base[ent.Idx*WordSize:], uint32(ent.Val))
		if ent.Type == elf.R_386_NONE {
			continue
		}

		var dynsym uint32
		if ent.Sym != nil {
			dynsym = ent.Sym.DynsymIdx
		}
		dynrel.emit(uint64(g.Shdr.Addr)+uint64(ent.Idx)*WordSize, ent.Type, dynsym)
	}
	return nil
}
