package linker

import (
	"bytes"
	"debug/elf"
	"fmt"

	"github.com/chenyang8094/mold/pkg/utils"
)

type FileType uint8

const (
	FileTypeUnknown FileType = iota
	FileTypeEmpty
	FileTypeObject
	FileTypeArchive
)

func GetFileTypeFromContent(content []byte) FileType {
	if len(content) == 0 {
		return FileTypeEmpty
	}

	if CheckMagic(content) && len(content) >= 18 {
		elfType := utils.Read[uint16](content[16:])
		switch elf.Type(elfType) {
		case elf.ET_REL:
			return FileTypeObject
		}
	}

	if bytes.HasPrefix(content, []byte("!<arch>\n")) {
		return FileTypeArchive
	}

	return FileTypeUnknown
}

func CheckFileCompatibility(ctx *Context, file *File) {
	t := GetMachineTypeFromContent(file.Content)
	if ctx.Args.Emulation != t {
		utils.Fatal(fmt.Sprintf("%s: incompatible file type: %s is expected but got %s",
			file.Name, ctx.Args.Emulation, t))
	}
}
