package linker

import (
	"debug/elf"
	"slices"
)

// testObj assembles an ObjectFile in memory, bypassing the ELF parser.
type testObj struct {
	ctx *Context
	obj *ObjectFile
}

func newTestContext() *Context {
	ctx := NewContext()
	ctx.Args.Threads = 4
	CreateSyntheticSections(ctx)
	return ctx
}

func newTestObj(ctx *Context) *testObj {
	obj := &ObjectFile{
		File:       NewMemoryFile("test.o", nil),
		ShStrTab:   []byte{0},
		ElfSecHdrs: []Shdr{{}},
		ElfSyms:    []Sym{{}},
	}
	null := NewSymbol("")
	null.File = obj
	null.SymIdx = 0
	obj.Symbols = []*Symbol{null}
	obj.LocalSymbols = []*Symbol{null}
	obj.InputSections = []*InputSection{nil}
	obj.MergeableSections = []*MergeableSection{nil}
	ctx.ObjFiles = append(ctx.ObjFiles, obj)
	return &testObj{ctx: ctx, obj: obj}
}

// section adds an input section placed at addr. Its output section is
// private to the section.
func (t *testObj) section(name string, typ elf.SectionType, flags elf.SectionFlag,
	addr uint64, content []byte, rels ...Rel) *InputSection {
	obj := t.obj
	nameOff := uint32(len(obj.ShStrTab))
	obj.ShStrTab = append(obj.ShStrTab, name...)
	obj.ShStrTab = append(obj.ShStrTab, 0)

	obj.ElfSecHdrs = append(obj.ElfSecHdrs, Shdr{
		Name:      nameOff,
		Type:      uint32(typ),
		Flags:     uint32(flags),
		Size:      uint32(len(content)),
		AddrAlign: 1,
	})

	osec := NewOutputSection(name, uint32(typ), uint32(flags), 0)
	osec.Shdr.Addr = uint32(addr)

	isec := &InputSection{
		ObjFile:       obj,
		Content:       content,
		Shndx:         uint32(len(obj.ElfSecHdrs) - 1),
		ShSize:        uint32(len(content)),
		IsAlive:       true,
		OutputSection: osec,
		Rels:          rels,
	}
	osec.InputSections = append(osec.InputSections, isec)
	obj.InputSections = append(obj.InputSections, isec)
	obj.MergeableSections = append(obj.MergeableSections, nil)
	return isec
}

func (t *testObj) text(addr uint64, content []byte, rels ...Rel) *InputSection {
	return t.section(".text", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_EXECINSTR, addr, content, rels...)
}

func (t *testObj) data(addr uint64, content []byte, rels ...Rel) *InputSection {
	return t.section(".data", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_WRITE, addr, content, rels...)
}

func (t *testObj) addSym(sym *Symbol, esym Sym) uint32 {
	obj := t.obj
	obj.ElfSyms = append(obj.ElfSyms, esym)
	obj.Symbols = append(obj.Symbols, sym)
	idx := uint32(len(obj.Symbols) - 1)
	if sym.File == obj {
		sym.SymIdx = int32(idx)
	}
	return idx
}

func symInfo(typ elf.SymType) uint8 {
	return uint8(elf.STB_GLOBAL)<<4 | uint8(typ)
}

// sym defines a symbol that lives at addr in the output image.
func (t *testObj) sym(name string, typ elf.SymType, addr uint64) (*Symbol, uint32) {
	sym := t.ctx.GetSymbol(name)
	sym.File = t.obj
	sym.SetOutputChunk(&OutputWriter{Name: name, Shdr: Shdr{Addr: uint32(addr)}})
	idx := t.addSym(sym, Sym{Info: symInfo(typ), Shndx: 1, Size: 8})
	return sym, idx
}

func (t *testObj) absSym(name string, val uint64) (*Symbol, uint32) {
	sym := t.ctx.GetSymbol(name)
	sym.File = t.obj
	sym.SetInputSection(nil)
	sym.Value = val
	idx := t.addSym(sym, Sym{Info: symInfo(elf.STT_NOTYPE), Shndx: uint16(elf.SHN_ABS)})
	return sym, idx
}

// imported defines a symbol that a shared library provides at runtime.
func (t *testObj) imported(name string, typ elf.SymType) (*Symbol, uint32) {
	sym := t.ctx.GetSymbol(name)
	sym.File = t.obj
	sym.IsImported = true
	sym.DynsymIdx = 7
	idx := t.addSym(sym, Sym{Info: symInfo(typ), Size: 16})
	return sym, idx
}

func (t *testObj) undef(name string) (*Symbol, uint32) {
	sym := t.ctx.GetSymbol(name)
	idx := t.addSym(sym, Sym{Info: symInfo(elf.STT_NOTYPE)})
	return sym, idx
}

func rel(offset uint32, typ elf.R_386, sym uint32) Rel {
	return Rel{Offset: offset, Type: typ, Sym: sym}
}

// applyAlloc runs the allocated-section applier over a fresh copy of the
// section contents and returns it.
func applyAlloc(ctx *Context, isec *InputSection) []byte {
	buf := slices.Clone(isec.Content)
	isec.ApplyRelocAlloc(ctx, buf)
	return buf
}

func applyNonalloc(ctx *Context, isec *InputSection) []byte {
	buf := slices.Clone(isec.Content)
	isec.ApplyRelocNonalloc(ctx, buf)
	return buf
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func concat(parts ...[]byte) []byte {
	var ret []byte
	for _, p := range parts {
		ret = append(ret, p...)
	}
	return ret
}
