//go:build linux

package shm

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"
)

// MapRegion maps or creates a shared memory region (Linux implementation).
//
// With Create any stale region of the same name is unlinked first, so a crashed
// previous run cannot make creation fail.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	shmPath, err := RegionPath(opts.Dir, opts.Name)
	if err != nil {
		return nil, err
	}

	var fd, size int
	if opts.Create {
		if opts.Size <= 0 {
			return nil, fmt.Errorf("shm: invalid region size %d", opts.Size)
		}
		if !CanCreate(uint64(opts.Size), opts.Dir) {
			return nil, fmt.Errorf("%w: path:%s size:%d", ErrNoSpace, shmPath, opts.Size)
		}
		if err := unix.Unlink(shmPath); err != nil && err != unix.ENOENT {
			return nil, fmt.Errorf("unlink stale: %w", err)
		}
		fd, err = unix.Open(shmPath, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, 0600)
		if err != nil {
			return nil, fmt.Errorf("open: %w", err)
		}
		if err := unix.Ftruncate(fd, int64(opts.Size)); err != nil {
			_ = unix.Close(fd)
			_ = unix.Unlink(shmPath)
			return nil, fmt.Errorf("ftruncate: %w", err)
		}
		size = opts.Size
	} else {
		fd, err = unix.Open(shmPath, unix.O_RDWR|unix.O_CLOEXEC, 0)
		if err != nil {
			return nil, fmt.Errorf("open: %w", err)
		}
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("fstat: %w", err)
		}
		size = int(st.Size)
		if size <= 0 || size < opts.Size {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("%w: %s has size %d, want at least %d", ErrTooSmall, shmPath, size, opts.Size)
		}
	}

	addr, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		if opts.Create {
			_ = unix.Unlink(shmPath)
		}
		return nil, fmt.Errorf("mmap: %w", err)
	}
	if opts.Create {
		clear(addr)
	}
	return &MappedRegion{
		Addr: addr,
		Fd:   fd,
		Path: shmPath,
		Size: size,
	}, nil
}

// UnmapRegion unmaps and closes the shared memory region (Linux implementation).
// The name is left in place; see UnlinkRegion.
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	if err := unix.Munmap(region.Addr); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	region.Addr = nil
	if err := unix.Close(region.Fd); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	region.Fd = -1
	return nil
}
