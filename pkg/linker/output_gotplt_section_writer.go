package linker

import (
	"debug/elf"

	"github.com/chenyang8094/mold/pkg/utils"
)

// GotPltReserved is the number of words at the start of .got.plt owned by
// the dynamic loader: the address of .dynamic, the link map and the
// resolver.
const GotPltReserved = 3

type GotPltSection struct {
	OutputWriter
}

func NewGotPltSection() *GotPltSection {
	g := &GotPltSection{OutputWriter: *NewOutputWriter()}
	g.Name = ".got.plt"
	g.Shdr.Type = uint32(elf.SHT_PROGBITS)
	g.Shdr.Flags = uint32(elf.SHF_ALLOC | elf.SHF_WRITE)
	g.Shdr.AddrAlign = WordSize
	g.Shdr.Size = GotPltReserved * WordSize
	return g
}

func (g *GotPltSection) UpdateShdr(ctx *Context) {
	g.Shdr.Size = uint32(GotPltReserved+len(ctx.Plt.Syms)) * WordSize
}

// CopyBuf points each imported function's slot at PLT[0], so that the
// first call goes through the lazy resolver. A local ifunc's slot holds its
// resolver, which R_386_IRELATIVE replaces with the selected function.
func (g *GotPltSection) CopyBuf(ctx *Context) error {
	base := ctx.Buf[g.Shdr.Offset:]
	for i := 0; i < GotPltReserved; i++ {
		utils.Write[uint32](base[i*WordSize:], 0)
	}

	for _, sym := range ctx.Plt.Syms {
		val := uint64(ctx.Plt.Shdr.Addr)
		if sym.IsIfunc() && !sym.IsImported {
			val = getIfuncResolverAddr(sym)
		}
		utils.Write[uint32](base[(GotPltReserved+int(sym.PltIdx))*WordSize:], uint32(val))
	}
	return nil
}

func getIfuncResolverAddr(sym *Symbol) uint64 {
	if sym.InputSection == nil {
		return sym.Value
	}
	return sym.InputSection.GetAddr() + sym.Value
}
