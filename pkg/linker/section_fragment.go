package linker

import "math"

// SectionFragment is one deduplicated piece of a merged section, such as a
// string literal shared by several object files.
type SectionFragment struct {
	OutputSection *MergedSection
	Offset        uint32
	P2Align       uint8
	IsAlive       bool
}

func NewSectionFragment(m *MergedSection) *SectionFragment {
	return &SectionFragment{
		OutputSection: m,
		Offset:        math.MaxUint32,
		IsAlive:       true,
	}
}

func (s *SectionFragment) GetAddr() uint64 {
	return uint64(s.OutputSection.Shdr.Addr) + uint64(s.Offset)
}
