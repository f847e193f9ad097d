//go:build unix

package linkmap

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"golang.org/x/sys/unix"
)

// Load maps the file read-only and returns a private copy of it. The mapping
// is gone by the time Load returns, so a writer truncating the file later
// cannot touch the returned bytes.
func (l *FileLoader) Load() ([]byte, error) {
	slog.Debug("Mapping link map file", "path", l.Path)
	f, err := os.Open(l.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() == 0 {
		return nil, nil
	}
	mapped, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", l.Path, err)
	}
	defer func() {
		if err := unix.Munmap(mapped); err != nil {
			slog.Warn("Failed to unmap link map file", "path", l.Path, "error", err)
		}
	}()

	data, err := copyMapped(mapped)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", l.Path, err)
	}
	return data, nil
}

// copyMapped copies a mapped file into the heap. Pages cut off by a
// concurrent truncate fault with SIGBUS; that fault is turned into an error.
func copyMapped(mapped []byte) (data []byte, err error) {
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("file changed while it was being read: %v", r)
		}
	}()
	data = make([]byte, len(mapped))
	copy(data, mapped)
	return data, nil
}
