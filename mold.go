package main

import (
	"fmt"
	"os"
	"time"

	"github.com/chenyang8094/mold/pkg/linker"
	"github.com/chenyang8094/mold/pkg/utils"
)

var version string

func main() {
	ctx := linker.NewContext()
	ctx.ApplyEnvDefaults()

	remaining, err := ctx.ParseArgs(os.Args[1:])
	utils.MustNo(err)

	if ctx.Args.PrintHelp {
		fmt.Printf("usage: %s [options] file...\n", os.Args[0])
		os.Exit(0)
	}
	if ctx.Args.PrintVersion {
		fmt.Printf("mold %s (i386)\n", version)
		os.Exit(0)
	}
	if len(remaining) == 0 {
		utils.Fatal("no input files")
	}

	if err := link(ctx, remaining); err != nil {
		ctx.Diag.Report(os.Stderr)
		utils.Fatal(err)
	}
}

func link(ctx *linker.Context, remaining []string) error {
	start := time.Now()
	timer := func(name string) {
		ctx.Logf("%-24s %v", name, time.Since(start))
		start = time.Now()
	}

	linker.ReadInputFiles(ctx, remaining)
	if ctx.Args.Emulation != linker.MachineTypeI386 {
		return fmt.Errorf("unknown emulation type: %s", ctx.Args.Emulation)
	}
	timer("read input files")

	linker.CreateSyntheticSections(ctx)
	linker.ResolveSymbols(ctx)
	linker.CreateInternalFile(ctx)
	linker.RegisterSectionPieces(ctx)
	linker.ComputeMergedSectionSizes(ctx)
	linker.BinSections(ctx)
	ctx.Chunks = append(ctx.Chunks, linker.CollectOutputSections(ctx)...)
	timer("resolve symbols")

	if err := linker.ScanRelocations(ctx); err != nil {
		return err
	}
	if err := ctx.Checkpoint(); err != nil {
		return err
	}
	timer("scan relocations")

	linker.ComputeSectionSizes(ctx)
	linker.UpdateShdrs(ctx)
	linker.RemoveEmptyChunks(ctx)
	linker.SortOutputSections(ctx)
	linker.AssignSectionIndices(ctx)
	linker.UpdateShdrs(ctx)
	fileSize := linker.SetOutputSectionOffsets(ctx)
	timer("layout")

	out, err := linker.OpenOutputFile(ctx.Args.Output, fileSize)
	if err != nil {
		return err
	}
	ctx.Buf = out.Buf

	if err := linker.CopyChunks(ctx); err != nil {
		out.Discard()
		return err
	}
	if err := ctx.Checkpoint(); err != nil {
		out.Discard()
		return err
	}
	timer("copy chunks")

	return out.Close()
}
