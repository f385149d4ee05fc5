//go:build !linux

package shm

import "time"

func FutexWait(addr *uint32, val uint32, timeout time.Duration) error {
	return ErrUnsupported
}

func FutexWake(addr *uint32, n int) (int, error) {
	return 0, ErrUnsupported
}
