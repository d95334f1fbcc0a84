package linker

import "strings"

// TombstonePolicy returns the value written in place of the address of a
// discarded section when it is referenced from isec, and whether isec
// takes a tombstone at all.
type TombstonePolicy func(isec *InputSection) (uint64, bool)

const (
	TombstoneDebug uint64 = 0xffffffff
	// In .debug_loc and .debug_ranges all-ones starts a base address
	// selection entry and 0 ends the list.
	TombstoneDebugList uint64 = 0xfffffffe
)

func DefaultTombstone(isec *InputSection) (uint64, bool) {
	name := isec.Name()
	if !strings.HasPrefix(name, ".debug") {
		return 0, false
	}
	if name == ".debug_loc" || name == ".debug_ranges" {
		return TombstoneDebugList, true
	}
	return TombstoneDebug, true
}
