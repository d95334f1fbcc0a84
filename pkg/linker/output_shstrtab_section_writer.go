package linker

import "debug/elf"

type ShstrtabSection struct {
	OutputWriter
	content []byte
}

func NewShstrtabSection() *ShstrtabSection {
	s := &ShstrtabSection{OutputWriter: *NewOutputWriter()}
	s.Name = ".shstrtab"
	s.Shdr.Type = uint32(elf.SHT_STRTAB)
	return s
}

// UpdateShdr must run after section indices are assigned; it also sets the
// sh_name of every section.
func (s *ShstrtabSection) UpdateShdr(ctx *Context) {
	s.content = []byte{0}
	for _, chunk := range ctx.Chunks {
		if chunk.GetShndx() <= 0 {
			continue
		}
		chunk.GetShdr().Name = uint32(len(s.content))
		s.content = append(s.content, chunk.GetName()...)
		s.content = append(s.content, 0)
	}
	s.Shdr.Size = uint32(len(s.content))
}

func (s *ShstrtabSection) CopyBuf(ctx *Context) error {
	copy(ctx.Buf[s.Shdr.Offset:], s.content)
	return nil
}
