package allocator

import (
	"github.com/sdemos/vmkernel/kernel"
	"github.com/sdemos/vmkernel/kernel/hal/multiboot"
	"github.com/sdemos/vmkernel/kernel/kfmt/early"
	"github.com/sdemos/vmkernel/kernel/mem"
	"github.com/sdemos/vmkernel/kernel/mem/pmm"
)

var (
	// EarlyAllocator points to a static instance of the boot memory allocator
	// which is used to bootstrap the kernel before initializing a more
	// advanced memory allocator.
	EarlyAllocator AreaFrameAllocator

	errBootAllocUnsupportedPageSize = &kernel.Error{Module: "boot_mem_alloc", Message: "allocator only support allocation requests of order(0)"}
	errBootAllocOutOfMemory         = &kernel.Error{Module: "boot_mem_alloc", Message: "out of memory"}
)

// AreaFrameAllocator implements a rudimentary physical memory allocator which
// is used to bootstrap the kernel.
//
// The allocator implementation uses the memory region information provided
// by the bootloader to detect free memory blocks and return the next
// available free frame. Frames that fall inside the loaded kernel image or
// inside the multiboot info blob itself are never handed out even though the
// bootloader reports the regions they live in as available, since both are
// already in use the moment this allocator starts running.
//
// Allocations are tracked via an internal counter that contains the last
// allocated frame index. The system memory regions are mapped into a linear
// page index by aligning the region start address to the system's page size
// and then dividing by the page size.
//
// Due to the way that the allocator works, it is not possible to free
// allocated pages. Once the kernel is properly initialized, the allocated
// blocks will be handed over to a more advanced memory allocator that does
// support freeing.
type AreaFrameAllocator struct {
	// allocCount tracks the total number of allocated frames.
	allocCount uint64

	// lastAllocIndex tracks the last allocated frame index.
	lastAllocIndex int64

	// kernelStartIndex and kernelEndIndex hold the (inclusive) frame index
	// range occupied by the loaded kernel image.
	kernelStartIndex, kernelEndIndex int64

	// infoStartIndex and infoEndIndex hold the (inclusive) frame index
	// range occupied by the multiboot info blob passed in by the
	// bootloader.
	infoStartIndex, infoEndIndex int64
}

// Init sets up the boot memory allocator internal state using the physical
// extents of the loaded kernel image and the multiboot info blob, and prints
// out the system memory map.
func (alloc *AreaFrameAllocator) Init(kernelStart, kernelEnd, infoStart, infoEnd uintptr) {
	alloc.lastAllocIndex = -1
	alloc.kernelStartIndex = int64(kernelStart >> mem.PageShift)
	alloc.kernelEndIndex = (int64(kernelEnd) - 1) >> mem.PageShift
	alloc.infoStartIndex = int64(infoStart >> mem.PageShift)
	alloc.infoEndIndex = (int64(infoEnd) - 1) >> mem.PageShift

	early.Printf("[boot_mem_alloc] system memory map:\n")
	var totalFree mem.Size
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		early.Printf("\t[0x%10x - 0x%10x], size: %10d, type: %s\n", region.PhysAddress, region.PhysAddress+region.Length, region.Length, region.Type.String())

		if region.Type == multiboot.MemAvailable {
			totalFree += mem.Size(region.Length)
		}
		return true
	})
	early.Printf("[boot_mem_alloc] free memory: %dKb\n", uint64(totalFree/mem.Kb))
	early.Printf("[boot_mem_alloc] kernel occupies frames [%d - %d]\n", alloc.kernelStartIndex, alloc.kernelEndIndex)
	early.Printf("[boot_mem_alloc] boot info occupies frames [%d - %d]\n", alloc.infoStartIndex, alloc.infoEndIndex)
}

// AllocFrame scans the system memory regions reported by the bootloader and
// reserves the next available free frame, skipping over any frame that
// belongs to the loaded kernel image or the multiboot info blob.
//
// AllocFrame returns an error if no more memory can be allocated or when the
// requested page order is > 0.
func (alloc *AreaFrameAllocator) AllocFrame(order mem.PageOrder) (pmm.Frame, *kernel.Error) {
	if order > 0 {
		return pmm.InvalidFrame, errBootAllocUnsupportedPageSize
	}

	var (
		foundPageIndex                           int64 = -1
		regionStartPageIndex, regionEndPageIndex int64
	)
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		if region.Type != multiboot.MemAvailable {
			return true
		}

		// Align region start address to a page boundary and find the start
		// and end page indices for the region
		regionStartPageIndex = int64(((mem.Size(region.PhysAddress) + (mem.PageSize - 1)) & ^(mem.PageSize - 1)) >> mem.PageShift)
		regionEndPageIndex = int64(((mem.Size(region.PhysAddress+region.Length) - (mem.PageSize - 1)) & ^(mem.PageSize - 1)) >> mem.PageShift)

		// Ignore already allocated regions
		if alloc.lastAllocIndex >= regionEndPageIndex {
			return true
		}

		// Walk forward from the first unallocated candidate in this
		// region, skipping past the kernel image and boot info ranges
		// whenever the candidate lands inside either of them.
		candidate := regionStartPageIndex
		if alloc.lastAllocIndex >= regionStartPageIndex {
			candidate = alloc.lastAllocIndex + 1
		}

		for candidate <= regionEndPageIndex {
			if candidate >= alloc.kernelStartIndex && candidate <= alloc.kernelEndIndex {
				candidate = alloc.kernelEndIndex + 1
				continue
			}
			if candidate >= alloc.infoStartIndex && candidate <= alloc.infoEndIndex {
				candidate = alloc.infoEndIndex + 1
				continue
			}
			break
		}

		if candidate > regionEndPageIndex {
			return true
		}

		foundPageIndex = candidate
		return false
	})

	if foundPageIndex == -1 {
		return pmm.InvalidFrame, errBootAllocOutOfMemory
	}

	alloc.allocCount++
	alloc.lastAllocIndex = foundPageIndex

	return pmm.Frame(foundPageIndex), nil
}
