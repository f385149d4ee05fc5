package shm

import (
	"fmt"
	"unsafe"
)

// Uint32At returns a pointer to the 32-bit word at off inside mem, for use with
// sync/atomic. mem must come from a mapping, so its base is page aligned.
func Uint32At(mem []byte, off int) *uint32 {
	if off < 0 || off%4 != 0 || off+4 > len(mem) {
		panic(fmt.Sprintf("shm: bad uint32 offset %d in region of %d bytes", off, len(mem)))
	}
	return (*uint32)(unsafe.Pointer(&mem[off]))
}

// Uint64At returns a pointer to the 64-bit word at off inside mem.
func Uint64At(mem []byte, off int) *uint64 {
	if off < 0 || off%8 != 0 || off+8 > len(mem) {
		panic(fmt.Sprintf("shm: bad uint64 offset %d in region of %d bytes", off, len(mem)))
	}
	return (*uint64)(unsafe.Pointer(&mem[off]))
}
