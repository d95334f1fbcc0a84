package linker

import (
	"bytes"
	"debug/elf"
	"fmt"

	"github.com/chenyang8094/mold/pkg/utils"
)

// SHF_EXCLUDE marks sections only the static linker reads, such as
// .llvm_addrsig. debug/elf does not name it.
const shfExclude uint32 = 0x80000000

type ObjectFile struct {
	File           *File
	ElfEhdr        Ehdr
	ElfSecHdrs     []Shdr
	ElfSyms        []Sym
	FirstGlobal    uint32
	ShStrTab       []byte
	SymStrTab      []byte
	SymtabShndxSec []uint32

	InputSections     []*InputSection
	MergeableSections []*MergeableSection
	Symbols           []*Symbol
	LocalSymbols      []*Symbol
}

// NewObjectFile parses an ELF32 relocatable object. Global symbols are
// interned in ctx but not resolved yet.
func NewObjectFile(ctx *Context, file *File) *ObjectFile {
	o := &ObjectFile{File: file}

	if len(file.Content) < EhdrSize {
		utils.Fatal(fmt.Sprintf("%s: file too small", file.Name))
	}
	MustHaveMagic(file.Content)

	o.ElfEhdr = utils.Read[Ehdr](file.Content)
	o.parseSectionHeaders()

	shstrndx := uint32(o.ElfEhdr.ShStrndx)
	if shstrndx == uint32(elf.SHN_XINDEX) {
		shstrndx = o.ElfSecHdrs[0].Link
	}
	o.ShStrTab = o.GetBytesFromIdx(shstrndx)

	o.parseSymtab()
	o.initializeSections(ctx)
	o.initializeSymbols(ctx)
	o.initializeMergeableSections(ctx)
	return o
}

func (o *ObjectFile) parseSectionHeaders() {
	content := o.File.Content[o.ElfEhdr.ShOff:]
	first := utils.Read[Shdr](content)

	numSecs := uint32(o.ElfEhdr.ShNum)
	if numSecs == 0 {
		numSecs = first.Size
	}
	if uint64(len(content)) < uint64(numSecs)*uint64(ShdrSize) {
		utils.Fatal(fmt.Sprintf("%s: section header table is truncated", o.File.Name))
	}

	o.ElfSecHdrs = utils.ReadSlice[Shdr](content[:numSecs*uint32(ShdrSize)], ShdrSize)
}

func (o *ObjectFile) GetBytesFromShdr(s *Shdr) []byte {
	end := uint64(s.Offset) + uint64(s.Size)
	if end > uint64(len(o.File.Content)) {
		utils.Fatal(fmt.Sprintf("%s: section header is out of range: %d", o.File.Name, s.Offset))
	}
	return o.File.Content[s.Offset:end]
}

func (o *ObjectFile) GetBytesFromIdx(idx uint32) []byte {
	if idx >= uint32(len(o.ElfSecHdrs)) {
		utils.Fatal(fmt.Sprintf("%s: section index out of range: %d", o.File.Name, idx))
	}
	return o.GetBytesFromShdr(&o.ElfSecHdrs[idx])
}

func (o *ObjectFile) FindSectionHdr(typ elf.SectionType) *Shdr {
	for i := range o.ElfSecHdrs {
		if o.ElfSecHdrs[i].Type == uint32(typ) {
			return &o.ElfSecHdrs[i]
		}
	}
	return nil
}

func (o *ObjectFile) parseSymtab() {
	symtab := o.FindSectionHdr(elf.SHT_SYMTAB)
	if symtab != nil {
		o.FirstGlobal = symtab.Info
		o.ElfSyms = utils.ReadSlice[Sym](o.GetBytesFromShdr(symtab), SymSize)
		o.SymStrTab = o.GetBytesFromIdx(symtab.Link)
	}

	if shdr := o.FindSectionHdr(elf.SHT_SYMTAB_SHNDX); shdr != nil {
		o.SymtabShndxSec = utils.ReadSlice[uint32](o.GetBytesFromShdr(shdr), 4)
	}
}

func (o *ObjectFile) GetShndx(esym *Sym, idx uint32) uint32 {
	return esym.GetShndx(o.SymtabShndxSec, idx)
}

// GetSection returns the input section esym is defined in, or nil if it is
// absolute or lives in a section that is not linked.
func (o *ObjectFile) GetSection(esym *Sym, idx uint32) *InputSection {
	if esym.IsAbs() || esym.IsUndef() || esym.IsCommon() {
		return nil
	}
	shndx := o.GetShndx(esym, idx)
	if shndx >= uint32(len(o.InputSections)) {
		return nil
	}
	return o.InputSections[shndx]
}

func (o *ObjectFile) initializeSections(ctx *Context) {
	o.InputSections = make([]*InputSection, len(o.ElfSecHdrs))

	for i := range o.ElfSecHdrs {
		shdr := &o.ElfSecHdrs[i]
		switch elf.SectionType(shdr.Type) {
		case elf.SHT_GROUP, elf.SHT_SYMTAB, elf.SHT_STRTAB, elf.SHT_REL,
			elf.SHT_RELA, elf.SHT_NULL, elf.SHT_SYMTAB_SHNDX:
			continue
		}

		name := ElfGetName(o.ShStrTab, shdr.Name)
		if name == ".note.GNU-stack" || shdr.Flags&shfExclude != 0 {
			continue
		}
		o.InputSections[i] = NewInputSection(ctx, name, o, uint32(i))
	}

	for i := range o.ElfSecHdrs {
		shdr := &o.ElfSecHdrs[i]
		switch elf.SectionType(shdr.Type) {
		case elf.SHT_RELA:
			utils.Fatal(fmt.Sprintf("%s: SHT_RELA section is not valid for i386", o.File.Name))
		case elf.SHT_REL:
			if shdr.Info >= uint32(len(o.InputSections)) {
				utils.Fatal(fmt.Sprintf("%s: invalid relocated section index: %d", o.File.Name, shdr.Info))
			}
			if target := o.InputSections[shdr.Info]; target != nil {
				target.Rels = o.readRels(shdr)
			}
		}
	}
}

func (o *ObjectFile) readRels(shdr *Shdr) []Rel {
	erels := utils.ReadSlice[ElfRel](o.GetBytesFromShdr(shdr), RelSize)
	rels := make([]Rel, 0, len(erels))
	for _, erel := range erels {
		rel := NewRel(erel)
		if rel.Sym >= uint32(len(o.ElfSyms)) {
			utils.Fatal(fmt.Sprintf("%s: invalid symbol index in %s: %d",
				o.File.Name, rel, rel.Sym))
		}
		rels = append(rels, rel)
	}
	return rels
}

func (o *ObjectFile) initializeSymbols(ctx *Context) {
	if len(o.ElfSyms) == 0 {
		return
	}

	o.LocalSymbols = make([]*Symbol, o.FirstGlobal)
	o.Symbols = make([]*Symbol, len(o.ElfSyms))

	for i := uint32(0); i < o.FirstGlobal; i++ {
		esym := &o.ElfSyms[i]
		sym := NewSymbol(ElfGetName(o.SymStrTab, esym.Name))
		sym.File = o
		sym.Value = uint64(esym.Val)
		sym.SymIdx = int32(i)
		sym.SetInputSection(o.GetSection(esym, i))

		o.LocalSymbols[i] = sym
		o.Symbols[i] = sym
	}

	for i := o.FirstGlobal; i < uint32(len(o.ElfSyms)); i++ {
		esym := &o.ElfSyms[i]
		o.Symbols[i] = ctx.GetSymbol(ElfGetName(o.SymStrTab, esym.Name))
	}
}

// ResolveSymbols claims the global symbols this file defines. A strong
// definition replaces a weak one; otherwise the first definition wins.
func (o *ObjectFile) ResolveSymbols() {
	for i := o.FirstGlobal; i < uint32(len(o.ElfSyms)); i++ {
		esym := &o.ElfSyms[i]
		sym := o.Symbols[i]

		if esym.IsUndef() {
			continue
		}
		if esym.IsCommon() {
			utils.Fatal(fmt.Sprintf("%s: common symbol is not supported: %s; recompile with -fno-common",
				o.File.Name, sym.Name))
		}

		if sym.File != nil &&
			!(sym.ElfSym().Bind() == elf.STB_WEAK && esym.Bind() != elf.STB_WEAK) {
			continue
		}

		isec := o.GetSection(esym, i)
		if isec == nil && !esym.IsAbs() {
			continue
		}

		sym.File = o
		sym.SetInputSection(isec)
		sym.Value = uint64(esym.Val)
		sym.SymIdx = int32(i)
	}
}

// ClaimUnresolvedSymbols turns unresolved weak references into absolute
// zero, which is what a missing weak definition evaluates to.
func (o *ObjectFile) ClaimUnresolvedSymbols() {
	for i := o.FirstGlobal; i < uint32(len(o.ElfSyms)); i++ {
		esym := &o.ElfSyms[i]
		sym := o.Symbols[i]
		if !esym.IsUndef() || esym.Bind() != elf.STB_WEAK || sym.File != nil {
			continue
		}

		sym.File = o
		sym.SetInputSection(nil)
		sym.Value = 0
		sym.SymIdx = int32(i)
	}
}

func (o *ObjectFile) initializeMergeableSections(ctx *Context) {
	o.MergeableSections = make([]*MergeableSection, len(o.InputSections))
	for i, isec := range o.InputSections {
		if isec != nil && isec.IsAlive &&
			isec.Shdr().Flags&uint32(elf.SHF_MERGE) != 0 {
			o.MergeableSections[i] = splitSection(ctx, isec)
			isec.IsAlive = false
		}
	}
}

func findNull(data []byte, entSize int) int {
	if entSize == 1 {
		return bytes.IndexByte(data, 0)
	}

	for i := 0; i <= len(data)-entSize; i += entSize {
		if utils.AllZeros(data[i : i+entSize]) {
			return i
		}
	}
	return -1
}

func splitSection(ctx *Context, isec *InputSection) *MergeableSection {
	shdr := isec.Shdr()
	m := &MergeableSection{
		Parent:  GetMergedSectionInstance(ctx, isec.Name(), shdr.Type, shdr.Flags),
		P2Align: isec.P2Align,
	}

	entSize := shdr.EntSize
	if entSize == 0 {
		entSize = 1
	}

	data := isec.Content
	offset := uint32(0)
	if shdr.Flags&uint32(elf.SHF_STRINGS) != 0 {
		for len(data) > 0 {
			end := findNull(data, int(entSize))
			if end == -1 {
				utils.Fatal(fmt.Sprintf("%s: string is not null terminated", isec))
			}

			sz := uint32(end) + entSize
			m.Strs = append(m.Strs, string(data[:sz]))
			m.FragOffsets = append(m.FragOffsets, offset)
			data = data[sz:]
			offset += sz
		}
	} else {
		if uint32(len(data))%entSize != 0 {
			utils.Fatal(fmt.Sprintf("%s: section size is not multiple of sh_entsize", isec))
		}

		for len(data) > 0 {
			m.Strs = append(m.Strs, string(data[:entSize]))
			m.FragOffsets = append(m.FragOffsets, offset)
			data = data[entSize:]
			offset += entSize
		}
	}

	return m
}

// RegisterSectionPieces interns the pieces of every mergeable section and
// redirects symbols defined in them to their fragments.
func (o *ObjectFile) RegisterSectionPieces() {
	for _, m := range o.MergeableSections {
		if m == nil {
			continue
		}

		m.Fragments = make([]*SectionFragment, 0, len(m.Strs))
		for _, s := range m.Strs {
			m.Fragments = append(m.Fragments, m.Parent.Insert(s, m.P2Align))
		}
	}

	for i := 1; i < len(o.ElfSyms); i++ {
		esym := &o.ElfSyms[i]
		sym := o.Symbols[i]
		if sym.File != o || esym.IsAbs() || esym.IsUndef() || esym.IsCommon() {
			continue
		}

		shndx := o.GetShndx(esym, uint32(i))
		if shndx >= uint32(len(o.MergeableSections)) {
			continue
		}
		m := o.MergeableSections[shndx]
		if m == nil {
			continue
		}

		frag, fragOffset := m.GetFragment(uint64(esym.Val))
		if frag == nil {
			utils.Fatal(fmt.Sprintf("%s: bad symbol value: %d", o.File.Name, esym.Val))
		}
		sym.SetSectionFragment(frag)
		sym.Value = fragOffset
	}
}
