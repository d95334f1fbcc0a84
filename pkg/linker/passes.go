package linker

import (
	"debug/elf"
	"fmt"
	"math"
	"sort"

	"github.com/chenyang8094/mold/pkg/utils"
	"golang.org/x/sync/errgroup"
)

// ReadInputFiles loads every object named on the command line. The
// emulation is taken from the first object if -m was not given.
func ReadInputFiles(ctx *Context, remaining []string) {
	for _, arg := range remaining {
		file := NewFile(arg)
		ReadFile(ctx, file)
	}
}

func ReadFile(ctx *Context, file *File) {
	switch GetFileTypeFromContent(file.Content) {
	case FileTypeObject:
		if ctx.Args.Emulation == MachineTypeNone {
			ctx.Args.Emulation = GetMachineTypeFromContent(file.Content)
		}
		CheckFileCompatibility(ctx, file)
		ctx.ObjFiles = append(ctx.ObjFiles, NewObjectFile(ctx, file))
	case FileTypeArchive:
		utils.Fatal(fmt.Sprintf("%s: archives are not supported", file.Name))
	case FileTypeEmpty:
	default:
		utils.Fatal(fmt.Sprintf("%s: unknown file type", file.Name))
	}
}

func CreateSyntheticSections(ctx *Context) {
	push := func(chunk Chunker) {
		ctx.Chunks = append(ctx.Chunks, chunk)
	}

	ctx.Ehdr = NewOutputEhdrWriter()
	push(ctx.Ehdr)
	ctx.Phdr = NewOutputPhdrsWriter()
	push(ctx.Phdr)
	ctx.Shdr = NewOutputShdrsWriter()
	push(ctx.Shdr)

	ctx.Got = NewGotSection()
	push(ctx.Got)
	ctx.GotPlt = NewGotPltSection()
	push(ctx.GotPlt)
	ctx.Plt = NewPltSection()
	push(ctx.Plt)
	ctx.PltGot = NewPltGotSection()
	push(ctx.PltGot)
	ctx.RelDyn = NewRelDynSection()
	push(ctx.RelDyn)
	ctx.RelPlt = NewRelPltSection()
	push(ctx.RelPlt)
	ctx.Dynbss = NewDynbssSection()
	push(ctx.Dynbss)
	ctx.Shstrtab = NewShstrtabSection()
	push(ctx.Shstrtab)

	if ctx.EhFrame == nil {
		ctx.EhFrame = NewEhFrameSection()
	}
	push(ctx.EhFrame)
}

func ResolveSymbols(ctx *Context) {
	for _, file := range ctx.ObjFiles {
		file.ResolveSymbols()
	}
	for _, file := range ctx.ObjFiles {
		file.ClaimUnresolvedSymbols()
	}
}

// CreateInternalFile defines the symbols the linker itself provides,
// unless an input already does.
func CreateInternalFile(ctx *Context) {
	obj := &ObjectFile{
		File:        NewMemoryFile("<internal>", nil),
		ElfSyms:     []Sym{{}},
		FirstGlobal: 1,
	}
	obj.Symbols = []*Symbol{NewSymbol("")}
	obj.LocalSymbols = obj.Symbols[:1]

	define := func(name string, chunk Chunker) *Symbol {
		sym := ctx.GetSymbol(name)
		if sym.File != nil {
			return nil
		}

		obj.ElfSyms = append(obj.ElfSyms, Sym{
			Info:  uint8(elf.STB_GLOBAL)<<4 | uint8(elf.STT_NOTYPE),
			Other: uint8(elf.STV_HIDDEN),
			Shndx: uint16(elf.SHN_ABS),
		})
		obj.Symbols = append(obj.Symbols, sym)

		sym.File = obj
		sym.SymIdx = int32(len(obj.ElfSyms) - 1)
		sym.Value = 0
		sym.SetOutputChunk(chunk)
		return sym
	}

	define("_GLOBAL_OFFSET_TABLE_", ctx.Got)
	define("__rel_iplt_start", ctx.RelPlt)
	ctx.relIpltEnd = define("__rel_iplt_end", ctx.RelPlt)

	ctx.ObjFiles = append(ctx.ObjFiles, obj)
}

func RegisterSectionPieces(ctx *Context) {
	for _, file := range ctx.ObjFiles {
		file.RegisterSectionPieces()
	}
}

func ComputeMergedSectionSizes(ctx *Context) {
	for _, osec := range ctx.MergedSections {
		osec.AssignOffsets()
	}
}

// BinSections distributes the live input sections over their output
// sections, keeping command-line order.
func BinSections(ctx *Context) {
	for _, file := range ctx.ObjFiles {
		for _, isec := range file.InputSections {
			if isec == nil || !isec.IsAlive {
				continue
			}
			osec := isec.OutputSection
			osec.InputSections = append(osec.InputSections, isec)
		}
	}
}

func CollectOutputSections(ctx *Context) []Chunker {
	osecs := make([]Chunker, 0)
	for _, osec := range ctx.OutputSections {
		if len(osec.InputSections) > 0 {
			osecs = append(osecs, osec)
		}
	}
	for _, osec := range ctx.MergedSections {
		if osec.Shdr.Size > 0 {
			osecs = append(osecs, osec)
		}
	}
	return osecs
}

func allocSections(ctx *Context) []*InputSection {
	var isecs []*InputSection
	for _, file := range ctx.ObjFiles {
		for _, isec := range file.InputSections {
			if isec != nil && isec.IsAlive && isec.IsAlloc() {
				isecs = append(isecs, isec)
			}
		}
	}
	return isecs
}

// ScanRelocations runs the scanner over all allocated sections in
// parallel, then assigns the slots the scan asked for.
func ScanRelocations(ctx *Context) error {
	g := new(errgroup.Group)
	g.SetLimit(max(ctx.Args.Threads, 1))

	for _, isec := range allocSections(ctx) {
		if isec.OutputSection == &ctx.EhFrame.OutputSection {
			continue
		}
		g.Go(func() error {
			return isec.ScanRelocations(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("scanning relocations: %w", err)
	}

	AssignSlots(ctx)
	return nil
}

// AssignSlots turns the flags set by the scanner into slot indices. It
// runs alone after every scan has finished, so the flags are final.
func AssignSlots(ctx *Context) {
	var syms []*Symbol
	seen := make(map[*Symbol]bool)
	for _, file := range ctx.ObjFiles {
		for _, sym := range file.Symbols {
			if sym == nil || sym.File != file || seen[sym] || sym.Flags.Load() == 0 {
				continue
			}
			seen[sym] = true
			syms = append(syms, sym)
		}
	}

	for _, sym := range syms {
		flags := sym.Flags.Load()

		if flags&NeedsGot != 0 {
			ctx.Got.AddGotSymbol(sym)
		}

		if flags&NeedsPlt != 0 {
			if flags&NeedsGot != 0 && !sym.IsIfunc() {
				ctx.PltGot.AddSymbol(sym)
			} else {
				ctx.Plt.AddSymbol(sym)
			}
		}

		if flags&NeedsGotTp != 0 {
			ctx.Got.AddGotTpSymbol(sym)
		}

		if flags&NeedsTlsGd != 0 {
			ctx.Got.AddTlsGdSymbol(sym)
		}

		if flags&NeedsTlsDesc != 0 {
			ctx.Got.AddTlsDescSymbol(sym)
		}

		if flags&NeedsCopyrel != 0 {
			ctx.Dynbss.AddSymbol(sym)
		}
	}

	if ctx.NeedsTlsLd.Load() {
		ctx.Got.AddTlsLd()
	}

	ctx.RelDyn.GotDynrels = ctx.Got.NumDynrels(ctx)
	ctx.RelDyn.CopyrelOffset = ctx.RelDyn.GotDynrels
	offset := ctx.RelDyn.CopyrelOffset + len(ctx.Dynbss.Syms)
	for _, isec := range allocSections(ctx) {
		isec.ReldynOffset = offset
		offset += isec.NumDynrel
	}
	ctx.RelDyn.NumEntries = offset

	if ctx.relIpltEnd != nil {
		ctx.relIpltEnd.Value = uint64(len(ctx.Plt.Syms) * RelSize)
	}

	ctx.Logf("got: %d words, plt: %d, plt.got: %d, rel.dyn: %d",
		ctx.Got.numWords(), len(ctx.Plt.Syms), len(ctx.PltGot.Syms), offset)
}

// ComputeSectionSizes places input sections within their output sections.
func ComputeSectionSizes(ctx *Context) {
	osecs := make([]*OutputSection, 0, len(ctx.OutputSections)+1)
	osecs = append(osecs, ctx.OutputSections...)
	osecs = append(osecs, &ctx.EhFrame.OutputSection)

	for _, osec := range osecs {
		offset := uint64(0)
		p2align := int64(0)

		for _, isec := range osec.InputSections {
			offset = utils.AlignTo(offset, 1<<isec.P2Align)
			isec.Offset = uint32(offset)
			offset += uint64(isec.ShSize)
			p2align = max(p2align, int64(isec.P2Align))
		}

		osec.Shdr.Size = uint32(offset)
		osec.Shdr.AddrAlign = 1 << p2align
	}
}

// RemoveEmptyChunks drops sections with nothing in them. .got stays since
// GOT-relative relocations are computed against its address.
func RemoveEmptyChunks(ctx *Context) {
	ctx.Chunks = utils.RemoveIf(ctx.Chunks, func(chunk Chunker) bool {
		switch chunk.(type) {
		case *OutputEhdrWriter, *OutputPhdrsWriter, *OutputShdrsWriter,
			*ShstrtabSection, *GotSection:
			return false
		}
		return chunk.GetShdr().Size == 0
	})
}

// SortOutputSections orders chunks into segments: headers, read-only
// data, code, TLS, writable data, bss, then non-allocated sections. The
// section header table goes last.
func SortOutputSections(ctx *Context) {
	rank := func(chunk Chunker) int32 {
		typ := chunk.GetShdr().Type
		flags := chunk.GetShdr().Flags

		if chunk == Chunker(ctx.Shdr) {
			return math.MaxInt32
		}
		if flags&uint32(elf.SHF_ALLOC) == 0 {
			return math.MaxInt32 - 1
		}
		if chunk == Chunker(ctx.Ehdr) {
			return 0
		}
		if chunk == Chunker(ctx.Phdr) {
			return 1
		}
		if typ == uint32(elf.SHT_NOTE) {
			return 2
		}

		b2i := func(b bool) int {
			if b {
				return 1
			}
			return 0
		}

		writeable := b2i(flags&uint32(elf.SHF_WRITE) != 0)
		notExec := b2i(flags&uint32(elf.SHF_EXECINSTR) == 0)
		notTls := b2i(flags&uint32(elf.SHF_TLS) == 0)
		isBss := b2i(typ == uint32(elf.SHT_NOBITS))

		return int32(writeable<<7 | notExec<<6 | notTls<<5 | isBss<<4)
	}

	sort.SliceStable(ctx.Chunks, func(i, j int) bool {
		return rank(ctx.Chunks[i]) < rank(ctx.Chunks[j])
	})
}

func AssignSectionIndices(ctx *Context) {
	shndx := int64(1)
	for _, chunk := range ctx.Chunks {
		switch chunk.(type) {
		case *OutputEhdrWriter, *OutputPhdrsWriter, *OutputShdrsWriter:
			chunk.SetShndx(0)
			continue
		}
		chunk.SetShndx(shndx)
		shndx++
	}
}

func UpdateShdrs(ctx *Context) {
	for _, chunk := range ctx.Chunks {
		chunk.UpdateShdr(ctx)
	}
}

// SetOutputSectionOffsets assigns addresses and file offsets and returns
// the file size. A segment boundary starts on a new page.
func SetOutputSectionOffsets(ctx *Context) uint64 {
	base := ImageBase
	if ctx.Args.Pic {
		base = 0
	}

	addr := base
	var prev Chunker
	for _, chunk := range ctx.Chunks {
		shdr := chunk.GetShdr()
		if shdr.Flags&uint32(elf.SHF_ALLOC) == 0 {
			continue
		}

		if prev != nil && (toPhdrFlags(prev) != toPhdrFlags(chunk) ||
			(isBss(prev) && !isBss(chunk))) {
			addr = utils.AlignTo(addr, PageSize)
		}

		addr = utils.AlignTo(addr, uint64(shdr.AddrAlign))
		shdr.Addr = uint32(addr)

		if !isTbss(chunk) {
			addr += uint64(shdr.Size)
		}
		prev = chunk
	}

	i := 0
	first := ctx.Chunks[0]
	for ; i < len(ctx.Chunks) && isAlloc(ctx.Chunks[i]); i++ {
		chunk := ctx.Chunks[i]
		chunk.GetShdr().Offset = chunk.GetShdr().Addr - first.GetShdr().Addr
	}

	lastShdr := ctx.Chunks[i-1].GetShdr()
	fileoff := uint64(lastShdr.Offset)
	if lastShdr.Type != uint32(elf.SHT_NOBITS) {
		fileoff += uint64(lastShdr.Size)
	}

	for ; i < len(ctx.Chunks); i++ {
		shdr := ctx.Chunks[i].GetShdr()
		fileoff = utils.AlignTo(fileoff, uint64(shdr.AddrAlign))
		shdr.Offset = uint32(fileoff)
		fileoff += uint64(shdr.Size)
	}

	ctx.Phdr.UpdateShdr(ctx)
	return fileoff
}

// CopyChunks writes every chunk into ctx.Buf, applying relocations on the
// way. Chunks write disjoint ranges and run in parallel.
func CopyChunks(ctx *Context) error {
	g := new(errgroup.Group)
	g.SetLimit(max(ctx.Args.Threads, 1))

	for _, chunk := range ctx.Chunks {
		g.Go(func() error {
			if err := chunk.CopyBuf(ctx); err != nil {
				return fmt.Errorf("writing %s: %w", chunk.GetName(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
