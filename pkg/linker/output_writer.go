package linker

// Chunker is a contiguous piece of the output file: a header table, a
// section built from input sections, or a linker-synthesized section.
type Chunker interface {
	GetName() string
	GetShdr() *Shdr
	GetShndx() int64
	SetShndx(shndx int64)
	UpdateShdr(ctx *Context)
	CopyBuf(ctx *Context) error
}

type OutputWriter struct {
	Name  string
	Shdr  Shdr
	Shndx int64
}

func NewOutputWriter() *OutputWriter {
	return &OutputWriter{
		Shdr: Shdr{
			AddrAlign: 1,
		},
	}
}

func (o *OutputWriter) GetName() string {
	return o.Name
}

func (o *OutputWriter) GetShdr() *Shdr {
	return &o.Shdr
}

func (o *OutputWriter) GetShndx() int64 {
	return o.Shndx
}

func (o *OutputWriter) SetShndx(shndx int64) {
	o.Shndx = shndx
}

// UpdateShdr recomputes the size; most chunks know it up front.
func (o *OutputWriter) UpdateShdr(ctx *Context) {}

func (o *OutputWriter) CopyBuf(ctx *Context) error {
	return nil
}
