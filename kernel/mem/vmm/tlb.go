package vmm

// flushTLBEntry flushes a TLB entry for a particular virtual address.
func flushTLBEntry(virtAddr uintptr)

// flushTLBAll flushes every non-global TLB entry by reloading CR3 with its
// current value. It is used whenever the recursive slot of the active L4
// is repointed, since that invalidates the cached translations reachable
// through every table in the hierarchy, not just a single page.
func flushTLBAll()

// switchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func switchPDT(pdtPhysAddr uintptr)

// activePDT returns the physical address of the currently active page table.
func activePDT() uintptr
