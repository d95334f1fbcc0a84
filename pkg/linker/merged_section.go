package linker

import (
	"debug/elf"
	"sort"

	"github.com/chenyang8094/mold/pkg/utils"
)

// MergedSection holds the unique pieces of all mergeable input sections
// that share an output name, type and flags.
type MergedSection struct {
	OutputWriter
	Map map[string]*SectionFragment
}

func NewMergedSection(name string, flags uint32, typ uint32) *MergedSection {
	m := &MergedSection{
		OutputWriter: *NewOutputWriter(),
		Map:          make(map[string]*SectionFragment),
	}
	m.Name = name
	m.Shdr.Flags = flags
	m.Shdr.Type = typ
	return m
}

func GetMergedSectionInstance(ctx *Context, name string, typ uint32, flags uint32) *MergedSection {
	name = GetOutputName(name, flags)
	flags = flags &^ uint32(elf.SHF_GROUP) &^ uint32(elf.SHF_MERGE) &^
		uint32(elf.SHF_STRINGS) &^ uint32(elf.SHF_COMPRESSED)

	for _, osec := range ctx.MergedSections {
		if name == osec.Name && flags == osec.Shdr.Flags && typ == osec.Shdr.Type {
			return osec
		}
	}

	osec := NewMergedSection(name, flags, typ)
	ctx.MergedSections = append(ctx.MergedSections, osec)
	return osec
}

func (m *MergedSection) Insert(key string, p2align uint8) *SectionFragment {
	if frag, ok := m.Map[key]; ok {
		if frag.P2Align < p2align {
			frag.P2Align = p2align
		}
		return frag
	}

	frag := NewSectionFragment(m)
	frag.P2Align = p2align
	m.Map[key] = frag
	return frag
}

// AssignOffsets lays the fragments out in a deterministic order: by
// alignment, then length, then contents.
func (m *MergedSection) AssignOffsets() {
	type entry struct {
		Key string
		Val *SectionFragment
	}

	fragments := make([]entry, 0, len(m.Map))
	for key, val := range m.Map {
		fragments = append(fragments, entry{Key: key, Val: val})
	}

	sort.SliceStable(fragments, func(i, j int) bool {
		x := fragments[i]
		y := fragments[j]
		if x.Val.P2Align != y.Val.P2Align {
			return x.Val.P2Align < y.Val.P2Align
		}
		if len(x.Key) != len(y.Key) {
			return len(x.Key) < len(y.Key)
		}
		return x.Key < y.Key
	})

	offset := uint64(0)
	p2align := uint64(0)
	for _, frag := range fragments {
		offset = utils.AlignTo(offset, 1<<frag.Val.P2Align)
		frag.Val.Offset = uint32(offset)
		offset += uint64(len(frag.Key))
		if p2align < uint64(frag.Val.P2Align) {
			p2align = uint64(frag.Val.P2Align)
		}
	}

	m.Shdr.Size = uint32(utils.AlignTo(offset, 1<<p2align))
	m.Shdr.AddrAlign = 1 << p2align
}

func (m *MergedSection) CopyBuf(ctx *Context) error {
	buf := ctx.Buf[m.Shdr.Offset:]
	for key, frag := range m.Map {
		copy(buf[frag.Offset:], key)
	}
	return nil
}
