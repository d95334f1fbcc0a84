package linker

import (
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/chenyang8094/mold/pkg/utils"
)

func TestAssignSlots(t *testing.T) {
	ctx := newTestContext()
	obj := newTestObj(ctx)

	a, _ := obj.sym("a", elf.STT_FUNC, 0x1000)
	b, _ := obj.sym("b", elf.STT_FUNC, 0x1010)
	c, _ := obj.sym("c", sttGnuIfunc, 0x1020)
	d, _ := obj.sym("d", elf.STT_TLS, 0x5000)
	e, _ := obj.sym("e", elf.STT_TLS, 0x5004)

	a.Flags.Or(NeedsGot | NeedsPlt)
	b.Flags.Or(NeedsPlt)
	c.Flags.Or(NeedsGot | NeedsPlt)
	d.Flags.Or(NeedsTlsGd)
	e.Flags.Or(NeedsGotTp)
	ctx.NeedsTlsLd.Store(true)

	s1 := obj.data(0x2000, make([]byte, 8))
	s1.NumDynrel = 2
	s2 := obj.data(0x2008, make([]byte, 12))
	s2.NumDynrel = 3

	CreateInternalFile(ctx)
	AssignSlots(ctx)

	if a.GotIdx != 0 || c.GotIdx != 1 || d.TlsGdIdx != 2 || e.GotTpIdx != 4 || ctx.Got.TlsLdIdx != 5 {
		t.Errorf("got slots: a=%d c=%d d=%d e=%d ld=%d",
			a.GotIdx, c.GotIdx, d.TlsGdIdx, e.GotTpIdx, ctx.Got.TlsLdIdx)
	}
	if ctx.Got.Shdr.Size != 28 {
		t.Errorf(".got size = %d", ctx.Got.Shdr.Size)
	}

	// A symbol that needs both a GOT slot and a PLT entry shares the GOT
	// slot through .plt.got, unless it is an ifunc.
	if a.PltGotIdx != 0 || a.PltIdx != -1 {
		t.Errorf("a: pltgot=%d plt=%d", a.PltGotIdx, a.PltIdx)
	}
	if b.PltIdx != 0 || c.PltIdx != 1 || c.PltGotIdx != -1 {
		t.Errorf("plt: b=%d c=%d c.pltgot=%d", b.PltIdx, c.PltIdx, c.PltGotIdx)
	}

	if ctx.RelDyn.GotDynrels != 0 || s1.ReldynOffset != 0 || s2.ReldynOffset != 2 ||
		ctx.RelDyn.NumEntries != 5 {
		t.Errorf(".rel.dyn: got=%d s1=%d s2=%d total=%d", ctx.RelDyn.GotDynrels,
			s1.ReldynOffset, s2.ReldynOffset, ctx.RelDyn.NumEntries)
	}

	if end := ctx.GetSymbol("__rel_iplt_end"); end.Value != 16 {
		t.Errorf("__rel_iplt_end = %d", end.Value)
	}
}

func TestAssignSlotsReldynWindows(t *testing.T) {
	ctx := newTestContext()
	ctx.Args.Pic = true
	ctx.Args.Static = false
	obj := newTestObj(ctx)

	x, _ := obj.sym("x", elf.STT_OBJECT, 0x3000)
	x.Flags.Or(NeedsGot)
	y, _ := obj.imported("y", elf.STT_OBJECT)
	y.Flags.Or(NeedsCopyrel)

	s := obj.data(0x2000, make([]byte, 4))
	s.NumDynrel = 1

	AssignSlots(ctx)

	if ctx.RelDyn.GotDynrels != 1 || ctx.RelDyn.CopyrelOffset != 1 || s.ReldynOffset != 2 ||
		ctx.RelDyn.NumEntries != 3 {
		t.Errorf("got=%d copyrel=%d window=%d total=%d", ctx.RelDyn.GotDynrels,
			ctx.RelDyn.CopyrelOffset, s.ReldynOffset, ctx.RelDyn.NumEntries)
	}
	if y.CopyrelOffset != 0 || ctx.Dynbss.Shdr.Size != 16 {
		t.Errorf("copyrel offset %d, .dynbss size %d", y.CopyrelOffset, ctx.Dynbss.Shdr.Size)
	}
}

func readWords(buf []byte, n int) []uint32 {
	ret := make([]uint32, n)
	for i := range ret {
		ret[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return ret
}

func TestGotStatic(t *testing.T) {
	ctx := newTestContext()
	ctx.TlsBegin = 0x5000
	ctx.TpAddr = 0x5100
	obj := newTestObj(ctx)

	z, _ := obj.sym("z", elf.STT_OBJECT, 0x6000)
	x, _ := obj.sym("x", elf.STT_TLS, 0x5010)
	y, _ := obj.sym("y", elf.STT_TLS, 0x5020)
	ctx.Got.AddGotSymbol(z)
	ctx.Got.AddTlsGdSymbol(x)
	ctx.Got.AddGotTpSymbol(y)
	ctx.Got.AddTlsLd()

	if n := ctx.Got.NumDynrels(ctx); n != 0 {
		t.Errorf("static GOT needs %d dynamic relocations", n)
	}

	ctx.Buf = make([]byte, 64)
	if err := ctx.Got.CopyBuf(ctx); err != nil {
		t.Fatal(err)
	}
	want := []uint32{0x6000, 1, 0x10, 0xffffff20, 1, 0}
	got := readWords(ctx.Buf, 6)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("word %d: got 0x%x, want 0x%x", i, got[i], want[i])
		}
	}
}

func TestGotPic(t *testing.T) {
	ctx := newTestContext()
	ctx.Args.Pic = true
	ctx.Args.Static = false
	ctx.TlsBegin = 0x5000
	ctx.Got.Shdr.Addr = 0x3000
	obj := newTestObj(ctx)

	z, _ := obj.sym("z", elf.STT_OBJECT, 0x6000)
	w, _ := obj.imported("w", elf.STT_OBJECT)
	x, _ := obj.sym("x", elf.STT_TLS, 0x5010)
	ctx.Got.AddGotSymbol(z)
	ctx.Got.AddGotSymbol(w)
	ctx.Got.AddTlsGdSymbol(x)

	ctx.RelDyn.GotDynrels = ctx.Got.NumDynrels(ctx)
	if ctx.RelDyn.GotDynrels != 3 {
		t.Fatalf("GotDynrels = %d, want 3", ctx.RelDyn.GotDynrels)
	}

	ctx.Got.Shdr.Offset = 0
	ctx.RelDyn.Shdr.Offset = 0x40
	ctx.Buf = make([]byte, 0x80)
	if err := ctx.Got.CopyBuf(ctx); err != nil {
		t.Fatal(err)
	}

	if got := readWords(ctx.Buf, 4); got[0] != 0x6000 || got[1] != 0 || got[2] != 0 || got[3] != 0x10 {
		t.Errorf("GOT words = %x", got)
	}

	want := []Rel{
		{Offset: 0x3000, Type: elf.R_386_RELATIVE},
		{Offset: 0x3004, Type: elf.R_386_GLOB_DAT, Sym: 7},
		{Offset: 0x3008, Type: elf.R_386_TLS_DTPMOD32},
	}
	for i, w := range want {
		got := NewRel(utils.Read[ElfRel](ctx.Buf[0x40+i*RelSize:]))
		if got != w {
			t.Errorf("dynamic relocation %d: got %+v, want %+v", i, got, w)
		}
	}
}

func TestCopyrel(t *testing.T) {
	ctx := newTestContext()
	obj := newTestObj(ctx)

	a, _ := obj.imported("a", elf.STT_OBJECT)
	b, _ := obj.imported("b", elf.STT_OBJECT)
	b.DynsymIdx = 9
	ctx.Dynbss.AddSymbol(a)
	ctx.Dynbss.AddSymbol(b)
	ctx.Dynbss.Shdr.Addr = 0x8000

	if a.GetAddr(ctx) != 0x8000 || b.GetAddr(ctx) != 0x8010 {
		t.Errorf("addresses 0x%x 0x%x", a.GetAddr(ctx), b.GetAddr(ctx))
	}

	ctx.RelDyn.NumEntries = 2
	ctx.RelDyn.UpdateShdr(ctx)
	ctx.Buf = make([]byte, 16)
	if err := ctx.RelDyn.CopyBuf(ctx); err != nil {
		t.Fatal(err)
	}
	got := NewRel(utils.Read[ElfRel](ctx.Buf[8:]))
	if got != (Rel{Offset: 0x8010, Type: elf.R_386_COPY, Sym: 9}) {
		t.Errorf("got %+v", got)
	}
}

func TestRelPlt(t *testing.T) {
	ctx := newTestContext()
	obj := newTestObj(ctx)

	f, _ := obj.imported("f", elf.STT_FUNC)
	g, _ := obj.sym("g", sttGnuIfunc, 0x1000)
	ctx.Plt.AddSymbol(f)
	ctx.Plt.AddSymbol(g)
	ctx.GotPlt.Shdr.Addr = 0x4000

	ctx.RelPlt.UpdateShdr(ctx)
	ctx.Buf = make([]byte, ctx.RelPlt.Shdr.Size)
	if err := ctx.RelPlt.CopyBuf(ctx); err != nil {
		t.Fatal(err)
	}

	want := []Rel{
		{Offset: 0x400c, Type: elf.R_386_JMP_SLOT, Sym: 7},
		{Offset: 0x4010, Type: elf.R_386_IRELATIVE},
	}
	for i, w := range want {
		got := NewRel(utils.Read[ElfRel](ctx.Buf[i*RelSize:]))
		if got != w {
			t.Errorf("entry %d: got %+v, want %+v", i, got, w)
		}
	}
}

func TestGetOutputName(t *testing.T) {
	tests := []struct {
		name  string
		flags elf.SectionFlag
		want  string
	}{
		{".text", 0, ".text"},
		{".text.main", 0, ".text"},
		{".data.rel.ro.local", 0, ".data.rel.ro"},
		{".tbss.x", 0, ".tbss"},
		{".rodata.str1.1", elf.SHF_MERGE | elf.SHF_STRINGS, ".rodata.str"},
		{".rodata.cst8", elf.SHF_MERGE, ".rodata.cst"},
		{".rodata.foo", 0, ".rodata"},
		{".debug_info", 0, ".debug_info"},
		{".textual", 0, ".textual"},
	}

	for _, tt := range tests {
		if got := GetOutputName(tt.name, uint32(tt.flags)); got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestSortOutputSections(t *testing.T) {
	ctx := newTestContext()

	newSec := func(name string, typ elf.SectionType, flags elf.SectionFlag) *OutputSection {
		return NewOutputSection(name, uint32(typ), uint32(flags), 0)
	}
	comment := newSec(".comment", elf.SHT_PROGBITS, 0)
	bss := newSec(".bss", elf.SHT_NOBITS, elf.SHF_ALLOC|elf.SHF_WRITE)
	data := newSec(".data", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_WRITE)
	tdata := newSec(".tdata", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_WRITE|elf.SHF_TLS)
	text := newSec(".text", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_EXECINSTR)
	rodata := newSec(".rodata", elf.SHT_PROGBITS, elf.SHF_ALLOC)

	ctx.Chunks = []Chunker{ctx.Shdr, comment, bss, data, tdata, rodata, text, ctx.Phdr, ctx.Ehdr}
	SortOutputSections(ctx)

	want := []Chunker{ctx.Ehdr, ctx.Phdr, text, rodata, tdata, data, bss, comment, ctx.Shdr}
	for i := range want {
		if ctx.Chunks[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, ctx.Chunks[i].GetName(), want[i].GetName())
		}
	}
}
