package linker

import (
	"github.com/chenyang8094/mold/pkg/utils"
)

type OutputShdrsWriter struct {
	OutputWriter
}

func NewOutputShdrsWriter() *OutputShdrsWriter {
	return &OutputShdrsWriter{
		OutputWriter{
			Name: "shdr",
			Shdr: Shdr{
				AddrAlign: WordSize,
			},
		},
	}
}

// UpdateShdr must run after section indices are assigned.
func (o *OutputShdrsWriter) UpdateShdr(ctx *Context) {
	n := int64(0)
	for _, chunk := range ctx.Chunks {
		if chunk.GetShndx() > n {
			n = chunk.GetShndx()
		}
	}
	o.Shdr.Size = uint32(n+1) * uint32(ShdrSize)
}

func (o *OutputShdrsWriter) CopyBuf(ctx *Context) error {
	base := ctx.Buf[o.Shdr.Offset:]
	utils.Write[Shdr](base, Shdr{})

	for _, chunk := range ctx.Chunks {
		if chunk.GetShndx() > 0 {
			utils.Write[Shdr](base[chunk.GetShndx()*int64(ShdrSize):], *chunk.GetShdr())
		}
	}
	return nil
}
