package linker

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"slices"
	"strings"
	"testing"

	"github.com/chenyang8094/mold/pkg/utils"
)

func TestApplyByteRange(t *testing.T) {
	tests := []struct {
		val     uint64
		want    byte
		wantErr bool
	}{
		{0, 0, false},
		{255, 0xff, false},
		{256, 0, true},
	}

	for _, tt := range tests {
		ctx := newTestContext()
		obj := newTestObj(ctx)
		_, idx := obj.absSym("x", tt.val)
		isec := obj.data(0x2000, []byte{0}, rel(0, elf.R_386_8, idx))

		buf := applyAlloc(ctx, isec)
		if buf[0] != tt.want {
			t.Errorf("%d: wrote 0x%x, want 0x%x", tt.val, buf[0], tt.want)
		}

		errs := ctx.Diag.Errors()
		if tt.wantErr {
			if len(errs) != 1 || !strings.Contains(errs[0], "out of range: 256 is not in [0, 256)") {
				t.Errorf("%d: errors = %q", tt.val, errs)
			}
		} else if len(errs) != 0 {
			t.Errorf("%d: unexpected errors %q", tt.val, errs)
		}
	}
}

func TestApplyPCRelativeRanges(t *testing.T) {
	tests := []struct {
		typ     elf.R_386
		delta   int64
		wantErr bool
	}{
		{elf.R_386_PC8, 127, false},
		{elf.R_386_PC8, -128, false},
		{elf.R_386_PC8, 128, true},
		{elf.R_386_PC8, -129, true},
		{elf.R_386_PC16, 32767, false},
		{elf.R_386_PC16, -32768, false},
		{elf.R_386_PC16, 32768, true},
		{elf.R_386_16, 0xffff - 0x10000, false},
	}

	for _, tt := range tests {
		ctx := newTestContext()
		obj := newTestObj(ctx)
		_, idx := obj.sym("x", elf.STT_FUNC, uint64(0x10000+tt.delta))
		isec := obj.text(0x10000, []byte{0, 0}, rel(0, tt.typ, idx))

		buf := applyAlloc(ctx, isec)
		gotErr := len(ctx.Diag.Errors()) > 0
		if gotErr != tt.wantErr {
			t.Errorf("%v %d: error = %v, want %v", tt.typ, tt.delta, ctx.Diag.Errors(), tt.wantErr)
		}

		switch tt.typ {
		case elf.R_386_PC8:
			if int8(buf[0]) != int8(tt.delta) {
				t.Errorf("%v %d: wrote %d", tt.typ, tt.delta, int8(buf[0]))
			}
		case elf.R_386_PC16:
			if got := int16(binary.LittleEndian.Uint16(buf)); got != int16(tt.delta) {
				t.Errorf("%v %d: wrote %d", tt.typ, tt.delta, got)
			}
		}
	}
}

// GD to LE with the thread pointer at 0x1000 and the variable at 0x1010
// embeds -16.
func TestApplyTlsGdToLe(t *testing.T) {
	tests := []struct {
		name    string
		insns   []byte
		gdOff   uint32
		nextOff uint32
		next    elf.R_386
	}{
		{
			name:    "call plt",
			insns:   tlsGdSequence,
			gdOff:   3,
			nextOff: 8,
			next:    elf.R_386_PLT32,
		},
		{
			// lea x@tlsgd(%ebx), %eax; call *___tls_get_addr@GOT(%ebx)
			name:    "call got",
			insns:   []byte{0x8d, 0x83, 0, 0, 0, 0, 0xff, 0x93, 0, 0, 0, 0},
			gdOff:   2,
			nextOff: 8,
			next:    elf.R_386_GOT32X,
		},
	}

	want := []byte{
		0x65, 0xa1, 0, 0, 0, 0,             // mov %gs:0, %eax
		0x81, 0xe8, 0xf0, 0xff, 0xff, 0xff, // sub $-16, %eax
	}

	for _, tt := range tests {
		ctx := newTestContext()
		ctx.TpAddr = 0x1000
		ctx.TlsBegin = 0xf00

		obj := newTestObj(ctx)
		_, xi := obj.sym("x", elf.STT_TLS, 0x1010)
		_, gi := obj.imported("___tls_get_addr", elf.STT_FUNC)
		isec := obj.text(0x400, tt.insns,
			rel(tt.gdOff, elf.R_386_TLS_GD, xi),
			rel(tt.nextOff, tt.next, gi))

		if err := isec.ScanRelocations(ctx); err != nil {
			t.Fatal(err)
		}
		if got := applyAlloc(ctx, isec); !bytes.Equal(got, want) {
			t.Errorf("%s:\n got %x\nwant %x", tt.name, got, want)
		}
	}
}

func TestApplyTlsLdToLe(t *testing.T) {
	tests := []struct {
		name    string
		insns   []byte
		nextOff uint32
		next    elf.R_386
		want    []byte
	}{
		{
			name:    "call plt",
			insns:   []byte{0x8d, 0x83, 0, 0, 0, 0, 0xe8, 0, 0, 0, 0},
			nextOff: 7,
			next:    elf.R_386_PLT32,
			want:    []byte{0x31, 0xc0, 0x65, 0x8b, 0x00, 0x81, 0xe8, 0x10, 0, 0, 0},
		},
		{
			name:    "call got",
			insns:   []byte{0x8d, 0x83, 0, 0, 0, 0, 0xff, 0x93, 0, 0, 0, 0},
			nextOff: 8,
			next:    elf.R_386_GOT32X,
			want:    []byte{0x31, 0xc0, 0x65, 0x8b, 0x00, 0x81, 0xe8, 0x10, 0, 0, 0, 0x90},
		},
	}

	for _, tt := range tests {
		ctx := newTestContext()
		ctx.TlsBegin = 0xff0
		ctx.TpAddr = 0x1000

		obj := newTestObj(ctx)
		_, xi := obj.sym("x", elf.STT_TLS, 0xff0)
		_, gi := obj.imported("___tls_get_addr", elf.STT_FUNC)
		isec := obj.text(0x400, tt.insns,
			rel(2, elf.R_386_TLS_LDM, xi),
			rel(tt.nextOff, tt.next, gi))

		if err := isec.ScanRelocations(ctx); err != nil {
			t.Fatal(err)
		}
		if got := applyAlloc(ctx, isec); !bytes.Equal(got, tt.want) {
			t.Errorf("%s:\n got %x\nwant %x", tt.name, got, tt.want)
		}
	}
}

func TestApplyTlsDesc(t *testing.T) {
	// lea x@tlsdesc(%ebx), %eax; call *x@tlscall(%eax)
	insns := []byte{0x8d, 0x83, 0, 0, 0, 0, 0xff, 0x10}

	setup := func(shared bool) (*Context, *InputSection, *Symbol) {
		ctx := newTestContext()
		ctx.Args.Shared = shared
		ctx.Args.Pic = shared
		ctx.TpAddr = 0x1000
		ctx.Got.Shdr.Addr = 0x3000

		obj := newTestObj(ctx)
		x, xi := obj.sym("x", elf.STT_TLS, 0xff8)
		isec := obj.text(0x400, insns,
			rel(2, elf.R_386_TLS_GOTDESC, xi),
			rel(6, elf.R_386_TLS_DESC_CALL, xi))
		if err := isec.ScanRelocations(ctx); err != nil {
			t.Fatal(err)
		}
		return ctx, isec, x
	}

	ctx, isec, _ := setup(false)
	want := []byte{0x8d, 0x05, 0xf8, 0xff, 0xff, 0xff, 0x66, 0x90}
	if got := applyAlloc(ctx, isec); !bytes.Equal(got, want) {
		t.Errorf("relaxed:\n got %x\nwant %x", got, want)
	}

	ctx, isec, x := setup(true)
	x.TlsDescIdx = 2
	want = []byte{0x8d, 0x83, 0x08, 0, 0, 0, 0xff, 0x10}
	if got := applyAlloc(ctx, isec); !bytes.Equal(got, want) {
		t.Errorf("shared:\n got %x\nwant %x", got, want)
	}
}

func TestApplyGot32x(t *testing.T) {
	// mov foo@GOT(%ebx), %eax
	insn := []byte{0x8b, 0x83, 0, 0, 0, 0}

	for _, relax := range []bool{true, false} {
		ctx := newTestContext()
		ctx.Args.Relax = relax
		ctx.Got.Shdr.Addr = 0x3000

		obj := newTestObj(ctx)
		foo, idx := obj.sym("foo", elf.STT_OBJECT, 0x3010)
		isec := obj.text(0x1000, insn, rel(2, elf.R_386_GOT32X, idx))
		if err := isec.ScanRelocations(ctx); err != nil {
			t.Fatal(err)
		}
		foo.GotIdx = 5

		want := []byte{0x8d, 0x83, 0x10, 0, 0, 0} // lea foo@GOTOFF(%ebx), %eax
		if !relax {
			want = []byte{0x8b, 0x83, 0x14, 0, 0, 0}
		}
		if got := applyAlloc(ctx, isec); !bytes.Equal(got, want) {
			t.Errorf("relax=%v:\n got %x\nwant %x", relax, got, want)
		}
	}
}

func TestApplyRelocAlloc(t *testing.T) {
	tests := []struct {
		typ    elf.R_386
		addr   uint64
		addend int32
		want   uint32
	}{
		{elf.R_386_32, 0x5000, 4, 0x5004},
		{elf.R_386_PC32, 0x1100, -4, 0xfc},
		{elf.R_386_PLT32, 0x1100, -4, 0xfc},
		{elf.R_386_GOTOFF, 0x3010, 4, 0x14},
		{elf.R_386_GOTPC, 0, 2, 0x2002},
		{elf.R_386_GOT32, 0, 0, 12},
		{elf.R_386_TLS_LE, 0xff0, 0, 0xfffffff0},
		{elf.R_386_TLS_IE, 0xff0, 0, 0x3004},
		{elf.R_386_TLS_GOTIE, 0xff0, 0, 4},
		{elf.R_386_TLS_LDO_32, 0xff8, 0, 8},
		{elf.R_386_SIZE32, 0x5000, 2, 10},
		{elf.R_386_TLS_LDM, 0, 0, 0x18},
	}

	for _, tt := range tests {
		ctx := newTestContext()
		ctx.Args.Relax = false
		ctx.Got.Shdr.Addr = 0x3000
		ctx.TlsBegin = 0xff0
		ctx.TpAddr = 0x1000
		ctx.Got.TlsLdIdx = 6

		obj := newTestObj(ctx)
		sym, idx := obj.sym("x", elf.STT_OBJECT, tt.addr)
		sym.GotIdx = 3
		sym.GotTpIdx = 1

		rels := []Rel{rel(0, tt.typ, idx)}
		if tt.typ == elf.R_386_TLS_LDM {
			rels = append(rels, rel(4, elf.R_386_PLT32, idx))
		}
		isec := obj.text(0x1000, concat(le32(uint32(tt.addend)), make([]byte, 4)), rels...)

		buf := applyAlloc(ctx, isec)
		if got := binary.LittleEndian.Uint32(buf); got != tt.want {
			t.Errorf("%v: got 0x%x, want 0x%x", tt.typ, got, tt.want)
		}
		if errs := ctx.Diag.Errors(); len(errs) > 0 {
			t.Errorf("%v: unexpected errors %q", tt.typ, errs)
		}
	}
}

func TestApplyDynamicRelocations(t *testing.T) {
	ctx := newTestContext()
	ctx.Args.Pic = true

	obj := newTestObj(ctx)
	_, xi := obj.sym("x", elf.STT_OBJECT, 0x3000)
	_, yi := obj.imported("y", elf.STT_OBJECT)
	_, zi := obj.absSym("z", 0x10)
	isec := obj.data(0x2000, concat(le32(4), le32(8), le32(0)),
		rel(0, elf.R_386_32, xi),
		rel(4, elf.R_386_32, yi),
		rel(8, elf.R_386_32, zi))

	if err := isec.ScanRelocations(ctx); err != nil {
		t.Fatal(err)
	}
	if isec.NumDynrel != 2 {
		t.Fatalf("NumDynrel = %d, want 2", isec.NumDynrel)
	}

	// One slot before this section's window belongs to someone else.
	isec.ReldynOffset = 1
	ctx.RelDyn.Shdr.Offset = 0x40
	ctx.Buf = make([]byte, 0x80)

	buf := applyAlloc(ctx, isec)
	want := concat(le32(0x3004), le32(8), le32(0x10))
	if !bytes.Equal(buf, want) {
		t.Errorf("contents:\n got %x\nwant %x", buf, want)
	}

	relative := NewRel(utils.Read[ElfRel](ctx.Buf[0x48:]))
	if relative != (Rel{Offset: 0x2000, Type: elf.R_386_RELATIVE}) {
		t.Errorf("first dynamic relocation = %v", relative)
	}
	abs := NewRel(utils.Read[ElfRel](ctx.Buf[0x50:]))
	if abs != (Rel{Offset: 0x2004, Type: elf.R_386_32, Sym: 7}) {
		t.Errorf("second dynamic relocation = %+v", abs)
	}
	if !utils.AllZeros(ctx.Buf[0x40:0x48]) || !utils.AllZeros(ctx.Buf[0x58:]) {
		t.Errorf("wrote outside the section's window")
	}
}

// The applier follows the scanner's decisions even if the options
// changed in between.
func TestApplyReplaysScanDecision(t *testing.T) {
	ctx := newTestContext()
	ctx.TpAddr = 0x1000

	obj := newTestObj(ctx)
	_, xi := obj.sym("x", elf.STT_TLS, 0x1010)
	_, gi := obj.imported("___tls_get_addr", elf.STT_FUNC)
	isec := obj.text(0x400, tlsGdSequence,
		rel(3, elf.R_386_TLS_GD, xi),
		rel(8, elf.R_386_PLT32, gi))
	if err := isec.ScanRelocations(ctx); err != nil {
		t.Fatal(err)
	}

	ctx.Args.Relax = false
	got := applyAlloc(ctx, isec)
	if !bytes.Equal(got[:2], []byte{0x65, 0xa1}) {
		t.Errorf("relaxation recorded by the scanner was not applied: %x", got)
	}
}

func TestApplyNonallocTombstone(t *testing.T) {
	tests := []struct {
		section string
		typ     elf.R_386
		want    uint32
	}{
		{".debug_info", elf.R_386_32, 0xffffffff},
		{".debug_line", elf.R_386_32, 0xffffffff},
		{".debug_info", elf.R_386_TLS_LDO_32, 0xffffffff},
		{".debug_loc", elf.R_386_32, 0xfffffffe},
		{".debug_ranges", elf.R_386_32, 0xfffffffe},
		{".stab", elf.R_386_32, 0},
	}

	for _, tt := range tests {
		ctx := newTestContext()
		obj := newTestObj(ctx)

		dead := obj.text(0x1000, make([]byte, 16))
		dead.IsAlive = false
		live := obj.text(0x2000, make([]byte, 16))

		f := ctx.GetSymbol("f")
		f.File = obj.obj
		f.SetInputSection(dead)
		f.Value = 4
		fi := obj.addSym(f, Sym{Info: symInfo(elf.STT_FUNC), Shndx: uint16(dead.Shndx), Val: 4})

		g := ctx.GetSymbol("g")
		g.File = obj.obj
		g.SetInputSection(live)
		g.Value = 8
		gi := obj.addSym(g, Sym{Info: symInfo(elf.STT_FUNC), Shndx: uint16(live.Shndx), Val: 8})

		isec := obj.section(tt.section, elf.SHT_PROGBITS, 0, 0, make([]byte, 8),
			rel(0, tt.typ, fi), rel(4, elf.R_386_32, gi))

		buf := applyNonalloc(ctx, isec)
		if got := binary.LittleEndian.Uint32(buf); got != tt.want {
			t.Errorf("%s %v: got 0x%x, want 0x%x", tt.section, tt.typ, got, tt.want)
		}
		if got := binary.LittleEndian.Uint32(buf[4:]); got != 0x2008 {
			t.Errorf("%s: live symbol resolved to 0x%x", tt.section, got)
		}
	}
}

func TestApplyNonallocCustomTombstone(t *testing.T) {
	ctx := newTestContext()
	ctx.Tombstone = func(*InputSection) (uint64, bool) { return 0, true }
	obj := newTestObj(ctx)

	dead := obj.text(0x1000, make([]byte, 4))
	dead.IsAlive = false
	f := ctx.GetSymbol("f")
	f.File = obj.obj
	f.SetInputSection(dead)
	fi := obj.addSym(f, Sym{Info: symInfo(elf.STT_FUNC), Shndx: uint16(dead.Shndx)})

	isec := obj.section(".debug_info", elf.SHT_PROGBITS, 0, 0, le32(0x55), rel(0, elf.R_386_32, fi))
	if got := applyNonalloc(ctx, isec); !bytes.Equal(got, le32(0)) {
		t.Errorf("got %x", got)
	}
}

// Debug info refers to strings through the section symbol of a mergeable
// section plus an offset; the reference must follow the string to wherever
// the merged section put it.
func TestApplyNonallocFragment(t *testing.T) {
	ctx := newTestContext()
	obj := newTestObj(ctx)

	strs := obj.section(".debug_str", elf.SHT_PROGBITS, elf.SHF_MERGE|elf.SHF_STRINGS, 0,
		[]byte("foo\x00bar\x00"))
	m := splitSection(ctx, strs)
	obj.obj.MergeableSections[strs.Shndx] = m
	strs.IsAlive = false

	secsym := NewSymbol("")
	secsym.File = obj.obj
	secsym.SetInputSection(strs)
	idx := obj.addSym(secsym, Sym{Info: uint8(elf.STT_SECTION), Shndx: uint16(strs.Shndx)})

	obj.obj.RegisterSectionPieces()
	m.Parent.AssignOffsets()
	m.Parent.Shdr.Addr = 0x5000

	tests := []struct {
		addend uint32
		want   uint32
	}{
		{0, 0x5004}, // "foo"
		{1, 0x5005},
		{4, 0x5000}, // "bar"
		{5, 0x5001},
	}

	for _, tt := range tests {
		isec := obj.section(".debug_info", elf.SHT_PROGBITS, 0, 0, le32(tt.addend),
			rel(0, elf.R_386_32, idx))
		buf := applyNonalloc(ctx, isec)
		if got := binary.LittleEndian.Uint32(buf); got != tt.want {
			t.Errorf("addend %d: got 0x%x, want 0x%x", tt.addend, got, tt.want)
		}
	}
	if errs := ctx.Diag.Errors(); len(errs) > 0 {
		t.Errorf("unexpected errors %q", errs)
	}
}

func TestApplyNonallocValues(t *testing.T) {
	ctx := newTestContext()
	ctx.Got.Shdr.Addr = 0x3000
	ctx.TlsBegin = 0xff0
	obj := newTestObj(ctx)

	_, xi := obj.sym("x", elf.STT_OBJECT, 0x3010)
	_, ti := obj.sym("t", elf.STT_TLS, 0xff8)
	isec := obj.section(".debug_info", elf.SHT_PROGBITS, 0, 0,
		concat(le32(4), le32(0), le32(0), le32(0), le32(2), le32(0xfffffffc)),
		rel(0, elf.R_386_32, xi),
		rel(4, elf.R_386_GOTOFF, xi),
		rel(8, elf.R_386_GOTPC, xi),
		rel(12, elf.R_386_TLS_LDO_32, ti),
		rel(16, elf.R_386_SIZE32, xi),
		rel(20, elf.R_386_PC32, xi))

	buf := applyNonalloc(ctx, isec)
	want := concat(le32(0x3014), le32(0x10), le32(0x3000), le32(8), le32(10), le32(0x300c))
	if !bytes.Equal(buf, want) {
		t.Errorf("\n got %x\nwant %x", buf, want)
	}
}

func TestApplyNonallocErrors(t *testing.T) {
	ctx := newTestContext()
	obj := newTestObj(ctx)

	_, xi := obj.sym("x", elf.STT_OBJECT, 0x3010)
	_, ui := obj.undef("missing")
	_, bi := obj.absSym("big", 0x100)
	isec := obj.section(".debug_info", elf.SHT_PROGBITS, 0, 0, make([]byte, 12),
		rel(0, elf.R_386_GOT32, xi),
		rel(4, elf.R_386_32, ui),
		rel(8, elf.R_386_8, bi))

	applyNonalloc(ctx, isec)

	errs := ctx.Diag.Errors()
	if len(errs) != 3 {
		t.Fatalf("errors = %q", errs)
	}
	wants := []string{
		"invalid relocation for non-allocated sections: R_386_GOT32 at 0x0",
		"out of range: 256 is not in [0, 256)",
		"undefined symbol: missing",
	}
	for _, want := range wants {
		if !slices.ContainsFunc(errs, func(s string) bool { return strings.Contains(s, want) }) {
			t.Errorf("missing %q in %q", want, errs)
		}
	}
}
