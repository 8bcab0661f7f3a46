package vmm

import (
	"unsafe"

	"github.com/sdemos/vmkernel/kernel/mem"
)

var (
	// ptePtrFn returns a pointer to the supplied entry address. It is
	// overridden by tests so that walk() can be exercised without
	// dereferencing real page table memory. When compiling the kernel
	// this function is automatically inlined away.
	ptePtrFn = func(entryAddr uintptr) unsafe.Pointer {
		return unsafe.Pointer(entryAddr)
	}
)

// pageTableWalker is a function that can be passed to walk. It receives the
// current page level and page table entry as its arguments. If it returns
// false, the walk is aborted.
type pageTableWalker func(pteLevel uint8, pte *pageTableEntry) bool

// walk performs a page table walk for the given virtual address, relying on
// the recursive PML4 mapping installed at recursiveEntry to reach every
// level using plain loads. It invokes walkFn with the page table entry at
// each level, starting from the PML4 down to the final page table.
func walk(virtAddr uintptr, walkFn pageTableWalker) {
	var (
		level                            uint8
		tableAddr, entryAddr, entryIndex uintptr
	)

	for level, tableAddr = uint8(0), pdtVirtualAddr; level < pageLevels; level, tableAddr = level+1, entryAddr {
		// Extract the bits of virtAddr that index this level's table.
		entryIndex = (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)

		// Adding entryIndex scaled by the entry size to the current
		// table's virtual address gives us the address of the entry
		// itself, thanks to the recursive mapping.
		entryAddr = tableAddr + (entryIndex << mem.PointerShift)

		if !walkFn(level, (*pageTableEntry)(ptePtrFn(entryAddr))) {
			return
		}

		// Shifting left by this level's bit count adds one more
		// level of recursive indirection, landing on the table that
		// entryAddr's entry points to.
		entryAddr <<= pageLevelBits[level]
	}
}
