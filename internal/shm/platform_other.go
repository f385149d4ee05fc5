//go:build !linux

package shm

import (
	"context"
)

// MapRegion is not available without shared futexes.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	return nil, ErrUnsupported
}

// UnmapRegion is a no-op where MapRegion cannot succeed.
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	return nil
}
