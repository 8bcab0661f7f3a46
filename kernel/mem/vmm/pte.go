package vmm

import (
	"github.com/sdemos/vmkernel/kernel"
	"github.com/sdemos/vmkernel/kernel/mem"
	"github.com/sdemos/vmkernel/kernel/mem/pmm"
)

var (
	// ErrInvalidMapping is returned when trying to look up a virtual
	// memory address that is not currently mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}
)

// PageTableEntryFlag describes a flag that can be applied to a page table entry.
type PageTableEntryFlag uintptr

const (
	// FlagPresent is set when the page is available in memory and not swapped out.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUser is set if user-mode code may access this page. If not set
	// only kernel code can access this page.
	FlagUser

	// FlagWriteThrough selects write-through caching instead of write-back.
	FlagWriteThrough

	// FlagNoCache prevents this page from being cached.
	FlagNoCache

	// FlagAccessed is set by the CPU the first time the page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when the page is written to.
	FlagDirty

	// FlagHugePage indicates that this entry maps a 2Mb (PD level) or
	// 1Gb (PDPT level) page instead of pointing to the next table level.
	FlagHugePage

	// FlagGlobal prevents the TLB from flushing the cached mapping for
	// this page when CR3 is reloaded.
	FlagGlobal

	// FlagNoExecute marks the mapped page as non-executable. It occupies
	// bit 63 of the entry.
	FlagNoExecute PageTableEntryFlag = 1 << 63
)

// pageTableEntry describes a single page table entry. It encodes a physical
// frame address together with a set of flags; the exact bit layout is
// architecture-specific.
type pageTableEntry uintptr

// IsUnused returns true if this entry is entirely zero, i.e. it neither
// points at a frame nor has any flag set.
func (pte pageTableEntry) IsUnused() bool {
	return pte == 0
}

// SetUnused clears the entire entry, including its frame pointer, so it no
// longer points anywhere and carries no flags.
func (pte *pageTableEntry) SetUnused() {
	*pte = 0
}

// HasFlags returns true if this entry has all of the input flags set.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uintptr(pte) & uintptr(flags)) == uintptr(flags)
}

// HasAnyFlag returns true if this entry has at least one of the input flags set.
func (pte pageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return (uintptr(pte) & uintptr(flags)) != 0
}

// SetFlags sets the input flags on the page table entry.
func (pte *pageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = (pageTableEntry)(uintptr(*pte) | uintptr(flags))
}

// ClearFlags clears the input flags from the page table entry.
func (pte *pageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = (pageTableEntry)(uintptr(*pte) &^ uintptr(flags))
}

// Frame returns the physical page frame that this page table entry points to.
func (pte pageTableEntry) Frame() pmm.Frame {
	return pmm.Frame((uintptr(pte) & ptePhysPageMask) >> mem.PageShift)
}

// SetFrame updates the page table entry to point to the given physical frame.
func (pte *pageTableEntry) SetFrame(frame pmm.Frame) {
	*pte = (pageTableEntry)((uintptr(*pte) &^ ptePhysPageMask) | frame.Address())
}

// pteForAddress performs a page table walk for virtAddr and returns the
// final-level page table entry. Unlike a plain walk, it stops early and
// succeeds if it lands on a huge page entry before reaching the last level.
// It returns ErrInvalidMapping if any intermediate table is not present.
func pteForAddress(virtAddr uintptr) (*pageTableEntry, uint8, *kernel.Error) {
	var (
		err      *kernel.Error
		entry    *pageTableEntry
		foundLvl uint8
	)

	walk(virtAddr, func(pteLevel uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			entry = nil
			err = ErrInvalidMapping
			return false
		}

		entry = pte
		foundLvl = pteLevel

		// A huge page entry terminates the walk early; it never
		// points to a further page table.
		if pteLevel < pageLevels-1 && pte.HasFlags(FlagHugePage) {
			return false
		}

		return true
	})

	return entry, foundLvl, err
}
