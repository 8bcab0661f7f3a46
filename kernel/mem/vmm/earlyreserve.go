package vmm

import (
	"github.com/sdemos/vmkernel/kernel"
	"github.com/sdemos/vmkernel/kernel/mem"
)

var (
	// earlyReserveNext tracks the lowest address EarlyReserveRegion has
	// handed out so far (the top of the still-free part of the window)
	// and is decreased by each reservation's size. It starts at the
	// end of the kernel heap window, the region RemapKernel sets aside
	// for a bump allocator.
	earlyReserveNext = kernelHeapBase + kernelHeapSize

	errEarlyReserveNoSpace = &kernel.Error{Module: "vmm", Message: "kernel heap window exhausted"}
)

// EarlyReserveRegion reserves a page-aligned contiguous range of virtual
// addresses inside the kernel heap window and returns its start address. If
// size is not a multiple of mem.PageSize it is rounded up. Reservations are
// handed out from the top of the window down; the caller is responsible for
// mapping physical frames to back the returned range.
func EarlyReserveRegion(size uintptr) (uintptr, *kernel.Error) {
	size = (size + uintptr(mem.PageSize-1)) &^ uintptr(mem.PageSize-1)

	if size > earlyReserveNext-kernelHeapBase {
		return 0, errEarlyReserveNoSpace
	}

	earlyReserveNext -= size
	return earlyReserveNext, nil
}
