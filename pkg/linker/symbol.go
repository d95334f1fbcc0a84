package linker

import (
	"debug/elf"
	"sync/atomic"
)

// Auxiliary storage a symbol needs. The scanner only ever ORs these in;
// AssignSlots reads them once all sections have been scanned.
const (
	NeedsGot uint32 = 1 << iota
	NeedsPlt
	NeedsGotTp
	NeedsTlsGd
	NeedsTlsDesc
	NeedsCopyrel
)

// STT_GNU_IFUNC shares its value with STT_LOOS.
const sttGnuIfunc = elf.STT_LOOS

type Symbol struct {
	File            *ObjectFile
	InputSection    *InputSection
	SectionFragment *SectionFragment
	OutputChunk     Chunker
	Name            string
	Value           uint64
	SymIdx          int32

	// Filled in by symbol resolution.
	IsImported bool
	IsExported bool
	DynsymIdx  uint32

	// Filled in by AssignSlots; -1 means no slot.
	GotIdx        int32
	GotTpIdx      int32
	TlsGdIdx      int32
	TlsDescIdx    int32
	PltIdx        int32
	PltGotIdx     int32
	CopyrelOffset int64

	Flags atomic.Uint32
}

func NewSymbol(name string) *Symbol {
	return &Symbol{
		Name:          name,
		SymIdx:        -1,
		GotIdx:        -1,
		GotTpIdx:      -1,
		TlsGdIdx:      -1,
		TlsDescIdx:    -1,
		PltIdx:        -1,
		PltGotIdx:     -1,
		CopyrelOffset: -1,
	}
}

// either use fragment or input section
func (s *Symbol) SetInputSection(isec *InputSection) {
	s.InputSection = isec
	s.SectionFragment = nil
	s.OutputChunk = nil
}

// either use fragment or input section
func (s *Symbol) SetSectionFragment(frag *SectionFragment) {
	s.InputSection = nil
	s.SectionFragment = frag
	s.OutputChunk = nil
}

func (s *Symbol) SetOutputChunk(chunk Chunker) {
	s.InputSection = nil
	s.SectionFragment = nil
	s.OutputChunk = chunk
}

func (s *Symbol) ElfSym() *Sym {
	if s.File == nil || s.SymIdx < 0 || int(s.SymIdx) >= len(s.File.ElfSyms) {
		return &Sym{}
	}
	return &s.File.ElfSyms[s.SymIdx]
}

func (s *Symbol) IsIfunc() bool {
	return s.ElfSym().Type() == sttGnuIfunc
}

func (s *Symbol) IsFunc() bool {
	t := s.ElfSym().Type()
	return t == elf.STT_FUNC || t == sttGnuIfunc
}

// IsAbsolute reports whether the address is a fixed value that does not
// move with the load address.
func (s *Symbol) IsAbsolute() bool {
	return !s.IsImported && s.InputSection == nil &&
		s.SectionFragment == nil && s.OutputChunk == nil
}

// IsRelative reports whether the address is a link-time constant plus the
// load base.
func (s *Symbol) IsRelative() bool {
	return !s.IsAbsolute()
}

func (s *Symbol) HasGot() bool     { return s.GotIdx != -1 }
func (s *Symbol) HasGotTp() bool   { return s.GotTpIdx != -1 }
func (s *Symbol) HasTlsGd() bool   { return s.TlsGdIdx != -1 }
func (s *Symbol) HasTlsDesc() bool { return s.TlsDescIdx != -1 }
func (s *Symbol) HasPlt() bool     { return s.PltIdx != -1 || s.PltGotIdx != -1 }
func (s *Symbol) HasCopyrel() bool { return s.CopyrelOffset != -1 }

func (s *Symbol) GetAddr(ctx *Context) uint64 {
	if s.SectionFragment != nil {
		return s.SectionFragment.GetAddr() + s.Value
	}

	if s.HasCopyrel() {
		return uint64(ctx.Dynbss.Shdr.Addr) + uint64(s.CopyrelOffset)
	}

	// An ifunc's address is the address of its PLT entry so that function
	// pointers compare equal everywhere.
	if s.HasPlt() && s.IsIfunc() {
		return s.GetPltAddr(ctx)
	}

	if s.InputSection != nil {
		if !s.InputSection.IsAlive {
			return 0
		}
		return s.InputSection.GetAddr() + s.Value
	}

	if s.OutputChunk != nil {
		return uint64(s.OutputChunk.GetShdr().Addr) + s.Value
	}

	if s.HasPlt() {
		return s.GetPltAddr(ctx)
	}

	return s.Value
}

func (s *Symbol) GetGotAddr(ctx *Context) uint64 {
	return ctx.GotAddr() + uint64(s.GotIdx)*WordSize
}

func (s *Symbol) GetGotTpAddr(ctx *Context) uint64 {
	return ctx.GotAddr() + uint64(s.GotTpIdx)*WordSize
}

func (s *Symbol) GetTlsGdAddr(ctx *Context) uint64 {
	return ctx.GotAddr() + uint64(s.TlsGdIdx)*WordSize
}

func (s *Symbol) GetTlsDescAddr(ctx *Context) uint64 {
	return ctx.GotAddr() + uint64(s.TlsDescIdx)*WordSize
}

func (s *Symbol) GetGotPltAddr(ctx *Context) uint64 {
	return ctx.GotPltAddr() + uint64(GotPltReserved+s.PltIdx)*WordSize
}

func (s *Symbol) GetPltAddr(ctx *Context) uint64 {
	if s.PltIdx != -1 {
		return uint64(ctx.Plt.Shdr.Addr) + PltHeaderSize +
			uint64(s.PltIdx)*PltEntrySize
	}
	return uint64(ctx.PltGot.Shdr.Addr) + uint64(s.PltGotIdx)*PltGotEntrySize
}

func (s *Symbol) GetSize() uint64 {
	return uint64(s.ElfSym().Size)
}

func (s *Symbol) String() string {
	if s.Name == "" {
		return "<local>"
	}
	return s.Name
}
