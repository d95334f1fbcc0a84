package linker

import (
	"debug/elf"
	"fmt"
	"math"
	"math/bits"

	"github.com/chenyang8094/mold/pkg/utils"
)

type InputSection struct {
	ObjFile       *ObjectFile
	Content       []byte
	Shndx         uint32
	ShSize        uint32
	IsAlive       bool
	P2Align       uint8
	Offset        uint32
	OutputSection *OutputSection

	Rels []Rel
	// Relax[i] is the scanner's decision for Rels[i]; the appliers follow
	// it instead of deciding again.
	Relax []RelaxKind

	// Dynamic relocations this section emits, counted by the scanner, and
	// the index of the first one in .rel.dyn.
	NumDynrel    int
	ReldynOffset int
}

func NewInputSection(ctx *Context, name string, obj *ObjectFile, shndx uint32) *InputSection {
	s := &InputSection{
		ObjFile: obj,
		Shndx:   shndx,
		IsAlive: true,
		Offset:  math.MaxUint32,
	}

	shdr := s.Shdr()
	if shdr.Flags&uint32(elf.SHF_COMPRESSED) != 0 {
		utils.Fatal(fmt.Sprintf("%s: compressed sections are not supported", s))
	}
	if shdr.Type != uint32(elf.SHT_NOBITS) {
		s.Content = obj.GetBytesFromShdr(shdr)
	}
	s.ShSize = shdr.Size

	if shdr.AddrAlign > 0 {
		s.P2Align = uint8(bits.TrailingZeros32(shdr.AddrAlign))
	}

	if name == ".eh_frame" {
		if ctx.EhFrame == nil {
			ctx.EhFrame = NewEhFrameSection()
		}
		s.OutputSection = &ctx.EhFrame.OutputSection
	} else {
		s.OutputSection = GetOutputSection(ctx, name, shdr.Type, shdr.Flags)
	}
	return s
}

func (i *InputSection) Shdr() *Shdr {
	utils.Assert(i.Shndx < uint32(len(i.ObjFile.ElfSecHdrs)))
	return &i.ObjFile.ElfSecHdrs[i.Shndx]
}

func (i *InputSection) Name() string {
	return ElfGetName(i.ObjFile.ShStrTab, i.Shdr().Name)
}

func (i *InputSection) String() string {
	return i.ObjFile.File.Name + ":(" + i.Name() + ")"
}

func (i *InputSection) IsAlloc() bool {
	return i.Shdr().Flags&uint32(elf.SHF_ALLOC) != 0
}

func (i *InputSection) IsWritable() bool {
	return i.Shdr().Flags&uint32(elf.SHF_WRITE) != 0
}

func (i *InputSection) GetAddr() uint64 {
	return uint64(i.OutputSection.Shdr.Addr) + uint64(i.Offset)
}

// GetAddend reads the implicit addend of rel from the input bytes.
func (i *InputSection) GetAddend(rel *Rel) int64 {
	return ReadAddend(i.Content[rel.Offset:], rel.Type)
}

// GetFragment resolves a section-symbol reference into a mergeable
// section to the fragment it lands in and the offset inside it.
func (i *InputSection) GetFragment(rel *Rel) (*SectionFragment, int64) {
	o := i.ObjFile
	esym := &o.ElfSyms[rel.Sym]
	if esym.Type() != elf.STT_SECTION || esym.IsAbs() || esym.IsCommon() ||
		esym.IsUndef() {
		return nil, 0
	}

	shndx := o.GetShndx(esym, rel.Sym)
	if shndx >= uint32(len(o.MergeableSections)) {
		return nil, 0
	}
	m := o.MergeableSections[shndx]
	if m == nil {
		return nil, 0
	}

	offset := int64(esym.Val) + i.GetAddend(rel)
	if offset < 0 {
		return nil, 0
	}

	frag, fragOffset := m.GetFragment(uint64(offset))
	if frag == nil {
		return nil, 0
	}
	return frag, int64(fragOffset)
}

func (i *InputSection) WriteTo(ctx *Context, buf []byte) {
	if i.Shdr().Type == uint32(elf.SHT_NOBITS) || i.ShSize == 0 {
		return
	}

	copy(buf, i.Content)

	if i.IsAlloc() {
		i.ApplyRelocAlloc(ctx, buf)
	} else {
		i.ApplyRelocNonalloc(ctx, buf)
	}
}
