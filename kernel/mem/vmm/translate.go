package vmm

import "github.com/sdemos/vmkernel/kernel"

// Translate returns the physical address that corresponds to the supplied
// virtual address or ErrInvalidMapping if the virtual address does not
// correspond to a mapped physical address. Unlike Map and Unmap, Translate
// can resolve addresses that fall inside a huge (2Mb or 1Gb) page mapping.
func Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	pte, lvl, err := pteForAddress(virtAddr)
	if err != nil {
		return 0, err
	}

	// The in-page offset is determined by the level at which the walk
	// terminated: the last level for a regular 4K page, or an earlier
	// level if we landed on a huge page entry.
	offsetMask := uintptr(1)<<pageLevelShifts[lvl] - 1

	return pte.Frame().Address() + (virtAddr & offsetMask), nil
}
