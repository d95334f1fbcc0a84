package linker

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// OutputFile is the output mapped into memory; chunks write straight into
// Buf.
type OutputFile struct {
	Path string
	Buf  []byte
	file *os.File
}

func OpenOutputFile(path string, size uint64) (*OutputFile, error) {
	// Unlink first so that a running copy of the old executable keeps its
	// pages.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0777)
	if err != nil {
		return nil, err
	}

	fd := int(f.Fd())
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: ftruncate: %w", path, err)
	}

	buf, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: mmap: %w", path, err)
	}

	return &OutputFile{Path: path, Buf: buf, file: f}, nil
}

func (o *OutputFile) Close() error {
	if err := unix.Msync(o.Buf, unix.MS_SYNC); err != nil {
		return fmt.Errorf("%s: msync: %w", o.Path, err)
	}
	if err := unix.Munmap(o.Buf); err != nil {
		return fmt.Errorf("%s: munmap: %w", o.Path, err)
	}
	o.Buf = nil
	return o.file.Close()
}

// Discard unmaps and removes a partially written output.
func (o *OutputFile) Discard() {
	unix.Munmap(o.Buf)
	o.Buf = nil
	o.file.Close()
	os.Remove(o.Path)
}
