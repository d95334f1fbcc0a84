package linker

import (
	"os"

	"github.com/chenyang8094/mold/pkg/utils"
)

type File struct {
	Name    string
	Content []byte
	Parent  *File
}

func NewFile(filename string) *File {
	content, err := os.ReadFile(filename)
	utils.MustNo(err)
	return &File{
		Name:    filename,
		Content: content,
	}
}

// NewMemoryFile wraps bytes that did not come from disk, e.g. an object
// assembled by a test.
func NewMemoryFile(name string, content []byte) *File {
	return &File{
		Name:    name,
		Content: content,
	}
}
