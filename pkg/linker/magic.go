package linker

import (
	"bytes"

	"github.com/chenyang8094/mold/pkg/utils"
)

func MustHaveMagic(content []byte) {
	if !CheckMagic(content) {
		utils.Fatal("invalid magic number")
	}
}

func CheckMagic(content []byte) bool {
	return bytes.HasPrefix(content, []byte("\177ELF"))
}

func WriteMagic(dst []byte) {
	copy(dst, "\177ELF")
}
