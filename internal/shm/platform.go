// Package shm contains the platform helpers behind the mailbox: named shared regions,
// word-sized atomics inside a mapping and futex wait/wake.
package shm

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
)

// DefaultDir is where named regions live on Linux.
const DefaultDir = "/dev/shm"

// ErrUnsupported is returned on platforms without shared futexes.
var ErrUnsupported = errors.New("shm: unsupported platform")

// ErrNoSpace is returned when the backing filesystem cannot hold the region.
var ErrNoSpace = errors.New("shm: not enough space left for the region")

// ErrTooSmall is returned when attaching to a region smaller than requested, which
// includes a region whose creator has not sized it yet.
var ErrTooSmall = errors.New("shm: region too small")

// MappedRegion represents a memory-mapped shared region.
type MappedRegion struct {
	Addr []byte
	Fd   int
	Path string
	Size int
}

// MapOptions defines options for mapping shared memory.
type MapOptions struct {
	Name string
	// Dir defaults to DefaultDir.
	Dir string
	// Size is required with Create; when attaching it is the minimum accepted size.
	Size   int
	Create bool
}

// RegionPath resolves the file backing a named region. A leading slash, as in POSIX
// shm names, is accepted and dropped.
func RegionPath(dir, name string) (string, error) {
	name = strings.TrimPrefix(name, "/")
	if name == "" || strings.ContainsRune(name, '/') || name == "." || name == ".." {
		return "", fmt.Errorf("shm: invalid region name %q", name)
	}
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, name), nil
}

// UnlinkRegion removes the region's name. A missing name is not an error.
func UnlinkRegion(dir, name string) error {
	path, err := RegionPath(dir, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("unlink: %w", err)
	}
	return nil
}

// RegionExists reports whether the region's name is present.
func RegionExists(dir, name string) bool {
	path, err := RegionPath(dir, name)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// CanCreate reports whether size bytes fit in dir. Only /dev/shm is checked, any
// other directory always reports true.
func CanCreate(size uint64, dir string) bool {
	if dir == "" {
		dir = DefaultDir
	}
	dir = filepath.Clean(dir)
	if dir != DefaultDir && !strings.HasPrefix(dir, DefaultDir+"/") {
		return true
	}
	stat, err := disk.Usage(dir)
	if err != nil {
		// let the open report the real failure
		return true
	}
	return stat.Free >= size
}
