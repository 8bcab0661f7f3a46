package vmm

import (
	"unsafe"

	"github.com/sdemos/vmkernel/kernel"
	"github.com/sdemos/vmkernel/kernel/mem"
	"github.com/sdemos/vmkernel/kernel/mem/pmm"
)

var (
	// activePDTFn is used by tests to override calls to activePDT which
	// will cause a fault if called in user-mode.
	activePDTFn = activePDT

	// switchPDTFn is used by tests to override calls to switchPDT which
	// will cause a fault if called in user-mode.
	switchPDTFn = switchPDT

	// mapFn is used by tests and is automatically inlined by the compiler.
	mapFn = Map

	// mapTemporaryFn is used by tests and is automatically inlined by the compiler.
	mapTemporaryFn = MapTemporary

	// unmapFn is used by tests and is automatically inlined by the compiler.
	unmapFn = Unmap

	// flushTLBAllFn is used by tests to override calls to flushTLBAll
	// which will cause a fault if called in user-mode.
	flushTLBAllFn = flushTLBAll
)

// PageDirectoryTable describes the top-most table in a multi-level paging scheme.
type PageDirectoryTable struct {
	pdtFrame pmm.Frame
}

// Init sets up the page table directory starting at the supplied physical
// address. If the supplied frame does not match the currently active PDT, then
// Init assumes that this is a new page table directory that needs
// bootstapping. In such a case, a temporary mapping is established so that
// Init can:
//  - call mem.Memset to clear the frame contents
//  - setup a recursive mapping for the last table entry to the page itself.
func (pdt *PageDirectoryTable) Init(pdtFrame pmm.Frame, allocFn FrameAllocatorFn) *kernel.Error {
	pdt.pdtFrame = pdtFrame

	// Check active PDT physical address. If it matches the input pdt then
	// nothing more needs to be done
	activePdtAddr := activePDTFn()
	if pdtFrame.Address() == activePdtAddr {
		return nil
	}

	// Create a temporary mapping for the pdt frame so we can work on it
	pdtPage, err := mapTemporaryFn(pdtFrame, allocFn)
	if err != nil {
		return err
	}

	// Clear the page contents and setup recursive mapping for the last PDT entry
	mem.Memset(pdtPage.Address(), 0, mem.PageSize)
	lastPdtEntry := (*pageTableEntry)(unsafe.Pointer(pdtPage.Address() + (((1 << pageLevelBits[0]) - 1) << mem.PointerShift)))
	*lastPdtEntry = 0
	lastPdtEntry.SetFlags(FlagPresent | FlagRW)
	lastPdtEntry.SetFrame(pdtFrame)

	// Remove temporary mapping
	unmapFn(pdtPage)

	return nil
}

// Map establishes a mapping between a virtual page and a physical memory frame
// using this PDT. This method behaves in a similar fashion to the global Map()
// function with the difference that it also supports inactive page PDTs by
// establishing a temporary mapping so that Map() can access the inactive PDT
// entries.
func (pdt PageDirectoryTable) Map(page Page, frame pmm.Frame, flags PageTableEntryFlag, allocFn FrameAllocatorFn) *kernel.Error {
	var (
		activePdtFrame   = pmm.Frame(activePDTFn() >> mem.PageShift)
		lastPdtEntryAddr uintptr
		lastPdtEntry     *pageTableEntry
	)
	// If this table is not active we need to temporarily map it to the
	// last entry in the active PDT so we can access it using the recursive
	// virtual address scheme.
	if activePdtFrame != pdt.pdtFrame {
		lastPdtEntryAddr = pdtVirtualAddr + (((1 << pageLevelBits[0]) - 1) << mem.PointerShift)
		lastPdtEntry = (*pageTableEntry)(ptePtrFn(lastPdtEntryAddr))
		lastPdtEntry.SetFrame(pdt.pdtFrame)
		flushTLBEntryFn(lastPdtEntryAddr)
	}

	err := mapFn(page, frame, flags, allocFn)

	if activePdtFrame != pdt.pdtFrame {
		lastPdtEntry.SetFrame(activePdtFrame)
		flushTLBEntryFn(lastPdtEntryAddr)
	}

	return err
}

// Unmap removes a mapping previousle installed by a call to Map() on this PDT.
// This method behaves in a similar fashion to the global Unmap() function with
// the difference that it also supports inactive page PDTs by establishing a
// temporary mapping so that Unmap() can access the inactive PDT entries.
func (pdt PageDirectoryTable) Unmap(page Page) *kernel.Error {
	var (
		activePdtFrame   = pmm.Frame(activePDTFn() >> mem.PageShift)
		lastPdtEntryAddr uintptr
		lastPdtEntry     *pageTableEntry
	)
	// If this table is not active we need to temporarily map it to the
	// last entry in the active PDT so we can access it using the recursive
	// virtual address scheme.
	if activePdtFrame != pdt.pdtFrame {
		lastPdtEntryAddr = pdtVirtualAddr + (((1 << pageLevelBits[0]) - 1) << mem.PointerShift)
		lastPdtEntry = (*pageTableEntry)(ptePtrFn(lastPdtEntryAddr))
		lastPdtEntry.SetFrame(pdt.pdtFrame)
		flushTLBEntryFn(lastPdtEntryAddr)
	}

	err := unmapFn(page)

	if activePdtFrame != pdt.pdtFrame {
		lastPdtEntry.SetFrame(activePdtFrame)
		flushTLBEntryFn(lastPdtEntryAddr)
	}

	return err
}

// Frame returns the physical frame backing this page directory table.
func (pdt PageDirectoryTable) Frame() pmm.Frame {
	return pdt.pdtFrame
}

// Switch installs pdt as the active page directory table, flushing every
// non-global TLB entry in the process. It returns a PageDirectoryTable
// wrapping whatever table was active just before the switch so that the
// caller can keep operating on it, e.g. to punch a guard page into the
// frame the kernel just stopped using as its root table.
func (pdt PageDirectoryTable) Switch() PageDirectoryTable {
	prevFrame := pmm.Frame(activePDTFn() >> mem.PageShift)
	switchPDTFn(pdt.pdtFrame.Address())
	return PageDirectoryTable{pdtFrame: prevFrame}
}

// With executes fn with the recursive PDT entry of the currently active page
// table temporarily pointed at pdt, so that Map, Unmap, MapTemporary and
// Translate all operate on pdt's entries instead of the active table's. This
// lets the kernel build up an inactive table (the one it will soon switch
// to) using the exact same code paths used for editing the live table.
//
// Once the recursive slot is repointed at pdt, the active table's own P4
// frame is no longer reachable through the recursive address: every level
// of that walk now bottoms out on pdt instead. backupPage is used to keep a
// second, non-recursive mapping of the active P4 frame alive for the
// duration of the edit purely so With can find its way back to restore the
// original mapping afterwards. The previous mapping is restored, and the
// TLB flushed, before With returns, regardless of whether fn succeeded.
func (pdt PageDirectoryTable) With(backupPage *TemporaryPage, fn func() *kernel.Error) *kernel.Error {
	activePdtFrame := pmm.Frame(activePDTFn() >> mem.PageShift)

	if activePdtFrame == pdt.pdtFrame {
		return fn()
	}

	backupAddr, err := backupPage.MapTableFrame(activePdtFrame)
	if err != nil {
		return err
	}
	backupLastEntry := (*pageTableEntry)(ptePtrFn(backupAddr + (((1 << pageLevelBits[0]) - 1) << mem.PointerShift)))

	lastPdtEntryAddr := pdtVirtualAddr + (((1 << pageLevelBits[0]) - 1) << mem.PointerShift)
	lastPdtEntry := (*pageTableEntry)(ptePtrFn(lastPdtEntryAddr))
	lastPdtEntry.SetFrame(pdt.pdtFrame)
	lastPdtEntry.SetFlags(FlagPresent | FlagRW)
	flushTLBAllFn()

	err = fn()

	backupLastEntry.SetFrame(activePdtFrame)
	backupLastEntry.SetFlags(FlagPresent | FlagRW)
	flushTLBAllFn()

	if unmapErr := backupPage.Unmap(); err == nil {
		err = unmapErr
	}

	return err
}
