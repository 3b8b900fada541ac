package inflight

import (
	"os"
	"syscall"
)

// MappedFile is a read-only, memory-mapped view of a file on disk. The
// core parser and everything it produces (strings, field-value byte
// slices, reassembled query payloads) borrows directly from Bytes for as
// long as the MappedFile is open — see spec.md §5's borrowing model.
type MappedFile struct {
	f     *os.File
	Bytes []byte
}

// OpenMappedFile opens path and maps its full contents read-only.
func OpenMappedFile(path string) (*MappedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errMap("failed to open hprof file", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errMap("failed to stat hprof file", err)
	}
	size := info.Size()
	if size == 0 {
		f.Close()
		return nil, errFormatf("hprof file %q is empty", path)
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errMap("failed to mmap hprof file", err)
	}

	return &MappedFile{f: f, Bytes: data}, nil
}

// Close unmaps the file and releases the underlying file descriptor.
// The Bytes slice (and anything derived from it, such as a Profile) must
// not be used after Close returns.
func (m *MappedFile) Close() error {
	var firstErr error
	if m.Bytes != nil {
		if err := syscall.Munmap(m.Bytes); err != nil {
			firstErr = err
		}
		m.Bytes = nil
	}
	if err := m.f.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
