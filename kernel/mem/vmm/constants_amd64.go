// +build amd64

package vmm

import "math"

const (
	// pageLevels indicates the number of page table levels supported by
	// the amd64 architecture (PML4, PDPT, PD and PT).
	pageLevels = 4

	// ptePhysPageMask is a mask that allows us to extract the physical memory
	// address pointed to by a page table entry. For this particular
	// architecture, bits 12-51 contain the physical memory address.
	ptePhysPageMask = uintptr(0x000ffffffffff000)

	// recursiveEntry is the PML4 slot that is set up to point back to the
	// PML4 table itself. Dereferencing a virtual address that walks
	// through this slot at every level lands back on the PML4, which is
	// what lets us edit page tables using regular loads and stores.
	recursiveEntry = 511

	// pml4Size is the number of bytes spanned by a single PML4 entry.
	pml4Size = uintptr(0x0000008000000000)

	// kernelImageBase is the PML4-index-510 base address under which the
	// higher-half kernel image is mapped by RemapKernel.
	kernelImageBase = uintptr(0xffffff0000000000)

	// kernelHeapBase is the PML4-index-509 base address of the kernel
	// heap window.
	kernelHeapBase = uintptr(0xfffffe8000000000)

	// kernelHeapSize is the size, in bytes, of the kernel heap window.
	kernelHeapSize = uintptr(100 * 1024)

	// kernelTempBase is the PML4-index-508 base address of the one-shot
	// scratch window used by TemporaryPage.
	kernelTempBase = uintptr(0xfffffe0000000000)

	// tempMappingAddr is a reserved virtual page address used for
	// temporary physical page mappings (e.g. when mapping inactive PDT
	// pages while they are being edited). It is the first page of the
	// kernel temp window.
	tempMappingAddr = kernelTempBase
)

var (
	// pdtVirtualAddr is a special virtual address that exploits the
	// recursive mapping installed at recursiveEntry to allow accessing
	// the top-most page table (PML4) using the system's MMU address
	// translation mechanism. Setting every page level index to
	// recursiveEntry forces the MMU to keep following the same entry at
	// every level, eventually landing on the PML4 itself.
	pdtVirtualAddr = uintptr(math.MaxUint64 &^ ((1 << 12) - 1))

	// pageLevelBits defines the number of virtual address bits that
	// correspond to each page level. Each level uses 9 bits which
	// amounts to 512 entries per table.
	pageLevelBits = [pageLevels]uint8{9, 9, 9, 9}

	// pageLevelShifts defines the shift required to extract the page
	// table index for each level out of a virtual address.
	pageLevelShifts = [pageLevels]uint8{39, 30, 21, 12}
)
