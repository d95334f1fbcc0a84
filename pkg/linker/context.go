package linker

import (
	"fmt"
	"os"
	"runtime"
	"sync/atomic"
)

type Args struct {
	Output    string
	Emulation MachineType
	Pic       bool
	Shared    bool
	Static    bool
	Relax     bool
	Threads   int
	Verbose   bool

	PrintHelp    bool
	PrintVersion bool
}

// Context holds the state shared by every pass. Fields below the Chunks
// line are produced by layout and slot assignment; the relocation scanner
// and appliers only read them.
type Context struct {
	Args Args
	Buf  []byte

	ObjFiles       []*ObjectFile
	SymbolMap      map[string]*Symbol
	OutputSections []*OutputSection
	MergedSections []*MergedSection
	Chunks         []Chunker

	Ehdr     *OutputEhdrWriter
	Phdr     *OutputPhdrsWriter
	Shdr     *OutputShdrsWriter
	Shstrtab *ShstrtabSection
	Got      *GotSection
	GotPlt   *GotPltSection
	Plt      *PltSection
	PltGot   *PltGotSection
	RelDyn   *RelDynSection
	RelPlt   *RelPltSection
	Dynbss   *DynbssSection
	EhFrame  *EhFrameSection

	relIpltEnd *Symbol

	TpAddr   uint64
	TlsBegin uint64

	// Set by any TLS_LDM that was not relaxed; the GOT then reserves one
	// module-wide TLSLD pair.
	NeedsTlsLd atomic.Bool

	Tombstone TombstonePolicy

	Diag Diagnostics
}

func NewContext() *Context {
	return &Context{
		Args: Args{
			Output:    "a.out",
			Emulation: MachineTypeNone,
			Relax:     true,
			Static:    true,
			Threads:   runtime.NumCPU(),
		},
		SymbolMap: make(map[string]*Symbol),
		Tombstone: DefaultTombstone,
	}
}

func (c *Context) GetSymbol(name string) *Symbol {
	if sym, ok := c.SymbolMap[name]; ok {
		return sym
	}
	sym := NewSymbol(name)
	c.SymbolMap[name] = sym
	return sym
}

func (c *Context) Errorf(format string, args ...any) {
	c.Diag.Errorf(format, args...)
}

func (c *Context) Logf(format string, args ...any) {
	if c.Args.Verbose {
		fmt.Fprintf(os.Stderr, "mold: "+format+"\n", args...)
	}
}

// GotAddr is the value of GOT in relocation formulas: the start of .got,
// which is also what PIC code keeps in %ebx.
func (c *Context) GotAddr() uint64 {
	if c.Got == nil {
		return 0
	}
	return uint64(c.Got.Shdr.Addr)
}

func (c *Context) GotPltAddr() uint64 {
	if c.GotPlt == nil {
		return 0
	}
	return uint64(c.GotPlt.Shdr.Addr)
}
