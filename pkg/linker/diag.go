package linker

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

var ErrLinkFailed = errors.New("link failed")

// maxUndefRefs bounds how many referencing sections are listed per
// undefined symbol.
const maxUndefRefs = 3

// LinkError is a fatal problem with the input that stops the link at once.
type LinkError struct {
	Section *InputSection
	Rel     *Rel
	Sym     *Symbol
	Msg     string
}

func (e *LinkError) Error() string {
	msg := e.Msg
	if e.Rel != nil {
		msg += ": " + e.Rel.String()
	}
	if e.Sym != nil {
		msg += " against " + e.Sym.String()
	}
	if e.Section != nil {
		return e.Section.String() + ": " + msg
	}
	return msg
}

func newFatal(isec *InputSection, rel *Rel, sym *Symbol, format string, args ...any) *LinkError {
	return &LinkError{
		Section: isec,
		Rel:     rel,
		Sym:     sym,
		Msg:     fmt.Sprintf(format, args...),
	}
}

// Diagnostics accumulates recoverable errors from concurrent passes. They
// are reported together once the parallel work is done.
type Diagnostics struct {
	mu         sync.Mutex
	errors     []string
	undefs     map[string][]string
	undefOrder []string
}

func (d *Diagnostics) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	d.mu.Lock()
	d.errors = append(d.errors, msg)
	d.mu.Unlock()
}

func (d *Diagnostics) ReportUndef(sym *Symbol, isec *InputSection) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.undefs == nil {
		d.undefs = make(map[string][]string)
	}
	refs, ok := d.undefs[sym.Name]
	if !ok {
		d.undefOrder = append(d.undefOrder, sym.Name)
	}
	d.undefs[sym.Name] = append(refs, isec.String())
}

func (d *Diagnostics) Errors() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	ret := make([]string, 0, len(d.errors)+len(d.undefOrder))
	ret = append(ret, d.errors...)
	for _, name := range d.undefOrder {
		refs := d.undefs[name]
		msg := "undefined symbol: " + name
		for i, ref := range refs {
			if i == maxUndefRefs {
				msg += fmt.Sprintf("\n>>> referenced %d more times", len(refs)-i)
				break
			}
			msg += "\n>>> referenced by " + ref
		}
		ret = append(ret, msg)
	}
	return ret
}

func (d *Diagnostics) HasErrors() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.errors) > 0 || len(d.undefOrder) > 0
}

func (d *Diagnostics) Report(w io.Writer) {
	for _, msg := range d.Errors() {
		fmt.Fprintf(w, "mold: error: %s\n", msg)
	}
}

// Checkpoint fails if any recoverable error has been recorded so far.
func (c *Context) Checkpoint() error {
	if n := len(c.Diag.Errors()); n > 0 {
		return fmt.Errorf("%w: %d error(s)", ErrLinkFailed, n)
	}
	return nil
}
