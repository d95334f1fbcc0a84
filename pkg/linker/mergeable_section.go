package linker

import "sort"

// MergeableSection is an SHF_MERGE input section split into pieces, each
// of which maps to a fragment of the output MergedSection.
type MergeableSection struct {
	Parent      *MergedSection
	P2Align     uint8
	Strs        []string
	FragOffsets []uint32
	Fragments   []*SectionFragment
}

// GetFragment returns the fragment containing offset and the offset into
// that fragment.
func (m *MergeableSection) GetFragment(offset uint64) (*SectionFragment, uint64) {
	pos := sort.Search(len(m.FragOffsets), func(i int) bool {
		return offset < uint64(m.FragOffsets[i])
	})
	if pos == 0 {
		return nil, 0
	}

	idx := pos - 1
	return m.Fragments[idx], offset - uint64(m.FragOffsets[idx])
}
