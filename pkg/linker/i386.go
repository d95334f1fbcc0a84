package linker

// Position-independent i386 code finds itself through
// __x86.get_pc_thunk.bx and keeps the address of .got in %ebx; there is no
// PC-relative load. PIC PLT entries index off %ebx, while PLT entries of a
// position-dependent executable use absolute addresses since %ebx is not
// guaranteed there.

import (
	"debug/elf"

	"github.com/chenyang8094/mold/pkg/utils"
)

const (
	PltHeaderSize   = 16
	PltEntrySize    = 16
	PltGotEntrySize = 16
)

var pltHeaderPic = [PltHeaderSize]byte{
	0xf3, 0x0f, 0x1e, 0xfb, // endbr32
	0x51,                   // push   %ecx
	0x8d, 0x8b, 0, 0, 0, 0, // lea    GOTPLT+4(%ebx), %ecx
	0xff, 0x31,             // push   (%ecx)
	0xff, 0x61, 0x04,       // jmp    *0x4(%ecx)
}

var pltHeaderNoPic = [PltHeaderSize]byte{
	0xf3, 0x0f, 0x1e, 0xfb, // endbr32
	0x51,                   // push   %ecx
	0xb9, 0, 0, 0, 0,       // mov    GOTPLT+4, %ecx
	0xff, 0x31,             // push   (%ecx)
	0xff, 0x61, 0x04,       // jmp    *0x4(%ecx)
	0xcc,                   // (padding)
}

var pltEntryPic = [PltEntrySize]byte{
	0xf3, 0x0f, 0x1e, 0xfb, // endbr32
	0xb9, 0, 0, 0, 0,       // mov $reloc_offset, %ecx
	0xff, 0xa3, 0, 0, 0, 0, // jmp *foo@GOT(%ebx)
	0xcc,                   // (padding)
}

var pltEntryNoPic = [PltEntrySize]byte{
	0xf3, 0x0f, 0x1e, 0xfb, // endbr32
	0xb9, 0, 0, 0, 0,       // mov $reloc_offset, %ecx
	0xff, 0x25, 0, 0, 0, 0, // jmp *foo@GOT
	0xcc,                   // (padding)
}

var pltgotEntryPic = [PltGotEntrySize]byte{
	0xf3, 0x0f, 0x1e, 0xfb,             // endbr32
	0xff, 0xa3, 0, 0, 0, 0,             // jmp *foo@GOT(%ebx)
	0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc, // (padding)
}

var pltgotEntryNoPic = [PltGotEntrySize]byte{
	0xf3, 0x0f, 0x1e, 0xfb,             // endbr32
	0xff, 0x25, 0, 0, 0, 0,             // jmp *foo@GOT
	0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc, // (padding)
}

// WritePltHeader writes PLT[0], which pushes GOTPLT[1] and jumps through
// GOTPLT[2] into the dynamic loader.
func WritePltHeader(ctx *Context, buf []byte) {
	if ctx.Args.Pic {
		copy(buf, pltHeaderPic[:])
		utils.Write[uint32](buf[7:], uint32(ctx.GotPltAddr()-ctx.GotAddr()+4))
	} else {
		copy(buf, pltHeaderNoPic[:])
		utils.Write[uint32](buf[6:], uint32(ctx.GotPltAddr()+4))
	}
}

func WritePltEntry(ctx *Context, buf []byte, sym *Symbol) {
	if ctx.Args.Pic {
		copy(buf, pltEntryPic[:])
		utils.Write[uint32](buf[11:], uint32(sym.GetGotPltAddr(ctx)-ctx.GotAddr()))
	} else {
		copy(buf, pltEntryNoPic[:])
		utils.Write[uint32](buf[11:], uint32(sym.GetGotPltAddr(ctx)))
	}

	utils.Write[uint32](buf[5:], uint32(sym.PltIdx)*uint32(RelSize))
}

// WritePltgotEntry writes a non-lazy entry that jumps through the
// symbol's ordinary GOT slot.
func WritePltgotEntry(ctx *Context, buf []byte, sym *Symbol) {
	if ctx.Args.Pic {
		copy(buf, pltgotEntryPic[:])
		utils.Write[uint32](buf[6:], uint32(sym.GetGotAddr(ctx)-ctx.GotAddr()))
	} else {
		copy(buf, pltgotEntryNoPic[:])
		utils.Write[uint32](buf[6:], uint32(sym.GetGotAddr(ctx)))
	}
}

// relaxGot32x returns the two opcode bytes replacing the instruction at
// loc, or 0 if it cannot be relaxed.
func relaxGot32x(loc []byte) uint32 {
	// mov imm(%reg1), %reg2 -> lea imm(%reg1), %reg2
	if loc[0] == 0x8b {
		return 0x8d00 | uint32(loc[1])
	}
	return 0
}

// GD can become LE when the variable is defined in the executable itself.
func relaxTlsGd(ctx *Context, sym *Symbol) bool {
	return ctx.Args.Relax && !ctx.Args.Shared && !sym.IsImported
}

func relaxTlsLd(ctx *Context) bool {
	return ctx.Args.Relax && !ctx.Args.Shared
}

func relaxTlsDesc(ctx *Context, sym *Symbol) bool {
	return ctx.Args.Relax && !ctx.Args.Shared && !sym.IsImported
}

// isTlsPairSecond reports whether typ may follow TLS_GD or TLS_LDM, i.e.
// the call to ___tls_get_addr.
func isTlsPairSecond(typ elf.R_386) bool {
	switch typ {
	case elf.R_386_PLT32, elf.R_386_PC32, elf.R_386_GOT32, elf.R_386_GOT32X:
		return true
	}
	return false
}

var tlsGdToLe = []byte{
	0x65, 0xa1, 0, 0, 0, 0, // mov %gs:0, %eax
	0x81, 0xe8, 0, 0, 0, 0, // sub $val, %eax
}

var tlsLdToLe = []byte{
	0x31, 0xc0,             // xor %eax, %eax
	0x65, 0x8b, 0x00,       // mov %gs:(%eax), %eax
	0x81, 0xe8, 0, 0, 0, 0, // sub $tls_size, %eax
}

var tlsLdToLeNop = []byte{
	0x31, 0xc0,             // xor %eax, %eax
	0x65, 0x8b, 0x00,       // mov %gs:(%eax), %eax
	0x81, 0xe8, 0, 0, 0, 0, // sub $tls_size, %eax
	0x90,                   // nop
}

// rewriteTlsGd replaces "lea x@tlsgd(,%ebx,1), %eax; call ___tls_get_addr"
// with a thread-pointer relative load. base is the section buffer, off the
// TLS_GD location and next the type of the call's relocation.
func rewriteTlsGd(base []byte, off uint32, next elf.R_386, val uint32) {
	switch next {
	case elf.R_386_PLT32, elf.R_386_PC32:
		copy(base[off-3:], tlsGdToLe)
		utils.Write[uint32](base[off+5:], val)
	case elf.R_386_GOT32, elf.R_386_GOT32X:
		copy(base[off-2:], tlsGdToLe)
		utils.Write[uint32](base[off+6:], val)
	default:
		utils.Unreachable()
	}
}

func rewriteTlsLd(base []byte, off uint32, next elf.R_386, val uint32) {
	switch next {
	case elf.R_386_PLT32, elf.R_386_PC32:
		copy(base[off-2:], tlsLdToLe)
	case elf.R_386_GOT32, elf.R_386_GOT32X:
		copy(base[off-2:], tlsLdToLeNop)
	default:
		utils.Unreachable()
	}
	utils.Write[uint32](base[off+5:], val)
}

// ReadAddend decodes the implicit addend stored at loc for a relocation of
// type typ. PC-relative narrow forms are signed.
func ReadAddend(loc []byte, typ elf.R_386) int64 {
	switch typ {
	case elf.R_386_8:
		return int64(loc[0])
	case elf.R_386_PC8:
		return int64(int8(loc[0]))
	case elf.R_386_16:
		return int64(utils.Read[uint16](loc))
	case elf.R_386_PC16:
		return int64(utils.Read[int16](loc))
	case elf.R_386_32, elf.R_386_PC32, elf.R_386_GOT32, elf.R_386_GOT32X,
		elf.R_386_PLT32, elf.R_386_GOTOFF, elf.R_386_GOTPC,
		elf.R_386_TLS_LDM, elf.R_386_TLS_GOTIE, elf.R_386_TLS_LE,
		elf.R_386_TLS_IE, elf.R_386_TLS_GD, elf.R_386_TLS_LDO_32,
		elf.R_386_SIZE32, elf.R_386_TLS_GOTDESC:
		return int64(utils.Read[int32](loc))
	}
	return 0
}

// WriteAddend stores val as the implicit addend of a relocation of type
// typ, for relocations that are left for the dynamic loader.
func WriteAddend(loc []byte, val int64, typ elf.R_386) {
	switch typ {
	case elf.R_386_NONE:
	case elf.R_386_8, elf.R_386_PC8:
		loc[0] = uint8(val)
	case elf.R_386_16, elf.R_386_PC16:
		utils.Write[uint16](loc, uint16(val))
	case elf.R_386_32, elf.R_386_PC32, elf.R_386_GOT32, elf.R_386_GOT32X,
		elf.R_386_PLT32, elf.R_386_GOTOFF, elf.R_386_GOTPC,
		elf.R_386_TLS_LDM, elf.R_386_TLS_GOTIE, elf.R_386_TLS_LE,
		elf.R_386_TLS_IE, elf.R_386_TLS_GD, elf.R_386_TLS_LDO_32,
		elf.R_386_SIZE32, elf.R_386_TLS_GOTDESC:
		utils.Write[uint32](loc, uint32(val))
	default:
		utils.Unreachable()
	}
}
