package linker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chenyang8094/mold/pkg/utils"
	"github.com/xyproto/env/v2"
)

// ApplyEnvDefaults lets the environment override the built-in defaults.
// Command-line options still take precedence.
func (c *Context) ApplyEnvDefaults() {
	c.Args.Threads = env.Int("MOLD_THREADS", c.Args.Threads)
	if env.Bool("MOLD_NO_RELAX") {
		c.Args.Relax = false
	}
	if env.Bool("MOLD_VERBOSE") {
		c.Args.Verbose = true
	}
	c.Args.Output = env.Str("MOLD_OUTPUT", c.Args.Output)
}

// ParseArgs fills c.Args and returns the input files.
func (c *Context) ParseArgs(args []string) ([]string, error) {
	arg := ""
	var err error

	readArg := func(name string) bool {
		for _, opt := range utils.AddDashes(name) {
			if args[0] == opt {
				if len(args) == 1 {
					err = fmt.Errorf("option -%s: argument missing", name)
					args = args[1:]
					return true
				}
				arg = args[1]
				args = args[2:]
				return true
			}

			prefix := opt
			if len(name) > 1 {
				prefix += "="
			}
			if rest, ok := utils.RemovePrefix(args[0], prefix); ok {
				arg = rest
				args = args[1:]
				return true
			}
		}
		return false
	}

	readFlag := func(name string) bool {
		for _, opt := range utils.AddDashes(name) {
			if args[0] == opt {
				args = args[1:]
				return true
			}
		}
		return false
	}

	remaining := make([]string, 0)
	for len(args) > 0 && err == nil {
		if readFlag("help") {
			c.Args.PrintHelp = true
		} else if readFlag("v") || readFlag("version") {
			c.Args.PrintVersion = true
		} else if readArg("output") || readArg("o") {
			c.Args.Output = arg
		} else if readArg("m") {
			if arg != "elf_i386" {
				err = fmt.Errorf("unknown -m argument: %s", arg)
			}
			c.Args.Emulation = MachineTypeI386
		} else if readFlag("pie") || readFlag("pic-executable") {
			c.Args.Pic = true
		} else if readFlag("no-pie") || readFlag("no-pic-executable") {
			c.Args.Pic = false
		} else if readFlag("shared") || readFlag("Bshareable") {
			c.Args.Shared = true
			c.Args.Pic = true
			c.Args.Static = false
		} else if readFlag("static") || readFlag("Bstatic") {
			c.Args.Static = true
		} else if readFlag("relax") {
			c.Args.Relax = true
		} else if readFlag("no-relax") {
			c.Args.Relax = false
		} else if readArg("threads") {
			n, perr := strconv.Atoi(arg)
			if perr != nil || n <= 0 {
				err = fmt.Errorf("--threads: expected a positive number, but got %s", arg)
			}
			c.Args.Threads = n
		} else if readFlag("no-threads") {
			c.Args.Threads = 1
		} else if readFlag("verbose") {
			c.Args.Verbose = true
		} else if readArg("l") {
			err = fmt.Errorf("-l%s: library search is not supported", arg)
		} else if readArg("L") ||
			readArg("sysroot") ||
			readArg("plugin") ||
			readArg("plugin-opt") ||
			readFlag("as-needed") ||
			readFlag("start-group") ||
			readFlag("end-group") ||
			readArg("hash-style") ||
			readArg("build-id") ||
			readFlag("s") ||
			readFlag("nostdlib") ||
			readArg("z") {
			// Ignored
		} else {
			if strings.HasPrefix(args[0], "-") && args[0] != "-" {
				err = fmt.Errorf("unknown command line option: %s", args[0])
				break
			}
			remaining = append(remaining, args[0])
			args = args[1:]
		}
	}

	if err != nil {
		return nil, err
	}
	return remaining, nil
}
