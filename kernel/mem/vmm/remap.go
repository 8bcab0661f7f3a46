package vmm

import (
	"github.com/sdemos/vmkernel/kernel"
	"github.com/sdemos/vmkernel/kernel/cpu"
	"github.com/sdemos/vmkernel/kernel/hal/multiboot"
	"github.com/sdemos/vmkernel/kernel/mem"
	"github.com/sdemos/vmkernel/kernel/mem/pmm"
)

// vgaBufferPhysAddr is the physical address of the VGA text-mode
// framebuffer. It is identity-mapped by RemapKernel so the console driver
// keeps working once the kernel switches off the bootloader's page tables.
const vgaBufferPhysAddr = uintptr(0xb8000)

var (
	remapped bool

	errAlreadyRemapped = &kernel.Error{Module: "vmm", Message: "RemapKernel called more than once"}

	// errUnalignedElfSection guards the assertion in §4.6 step 6: every
	// allocated ELF section the bootloader reports must already be
	// page-aligned.
	errUnalignedElfSection = &kernel.Error{Module: "vmm", Message: "allocated ELF section is not page-aligned"}

	// readEFERFn, writeEFERFn, readCR0Fn and writeCR0Fn are used by tests
	// to override calls to the real control-register accessors, which
	// will fault if executed outside ring 0.
	readEFERFn  = cpu.ReadEFER
	writeEFERFn = cpu.WriteEFER
	readCR0Fn   = cpu.ReadCR0
	writeCR0Fn  = cpu.WriteCR0
)

// MemoryController is the single handle the rest of the kernel uses to
// reach virtual memory services once RemapKernel has installed the
// kernel-controlled page tables. It holds the active table and the stack
// allocator. It does not hold a frame allocator: AllocStack draws frames
// from the package-level allocator registered with SetFrameAllocator.
type MemoryController struct {
	activeTable    PageDirectoryTable
	stackAllocator StackAllocator
}

// AllocStack reserves sizeInPages pages for a new kernel stack, preceded by
// an unmapped guard page. It returns false if the stack allocator's range
// cannot satisfy the request.
func (mc *MemoryController) AllocStack(sizeInPages uint) (Stack, bool) {
	return mc.stackAllocator.AllocStack(sizeInPages, allocFrame)
}

// RemapKernel transitions the CPU from the bootloader-provided identity map
// to a kernel-controlled address space. It must be called exactly once,
// after Init has registered a frame allocator via SetFrameAllocator. It
// enables NX and supervisor write-protection, identity-maps the kernel ELF
// image, the VGA text buffer and the multiboot info blob into a freshly
// built page table, switches to it, converts the table the kernel is
// leaving behind into a stack guard page, maps the kernel heap window and
// reserves the stack allocator's page range.
func RemapKernel() (*MemoryController, *kernel.Error) {
	if remapped {
		return nil, errAlreadyRemapped
	}
	remapped = true

	writeEFERFn(readEFERFn() | (1 << 11))
	writeCR0Fn(readCR0Fn() | (1 << 16))

	tempPage, err := NewTemporaryPage(allocFrame)
	if err != nil {
		return nil, err
	}

	newPdtFrame, err := allocFrame()
	if err != nil {
		return nil, err
	}

	var newPdt PageDirectoryTable
	if err := newPdt.Init(newPdtFrame, allocFrame); err != nil {
		return nil, err
	}

	if err := newPdt.With(tempPage, func() *kernel.Error {
		return identityMapKernelImage()
	}); err != nil {
		return nil, err
	}

	oldPdt := newPdt.Switch()

	if err := unmapFn(PageFromAddress(oldPdt.Frame().Address())); err != nil {
		return nil, err
	}

	if err := mapHeapWindow(); err != nil {
		return nil, err
	}

	heapEndPage := PageFromAddress(kernelHeapBase + kernelHeapSize - 1)
	stackAllocStart := heapEndPage + 1
	stackAllocEnd := stackAllocStart + 101

	return &MemoryController{
		activeTable:    newPdt,
		stackAllocator: NewStackAllocator(stackAllocStart, stackAllocEnd),
	}, nil
}

// identityMapKernelImage runs inside the inactive-table With scope set up
// by RemapKernel. It identity-maps every allocated ELF section with
// permissions derived from the section's own flags, plus the VGA buffer
// and the multiboot info blob.
func identityMapKernelImage() *kernel.Error {
	var sectionErr *kernel.Error

	multiboot.VisitElfSections(func(_ string, flags multiboot.ElfSectionFlag, address uintptr, size uint64) {
		if sectionErr != nil || flags&multiboot.ElfSectionAllocated == 0 {
			return
		}

		if address&uintptr(mem.PageSize-1) != 0 {
			sectionErr = errUnalignedElfSection
			return
		}

		pteFlags := pteFlagsFromElfSection(flags)
		for frameAddr := address; frameAddr < address+uintptr(size); frameAddr += uintptr(mem.PageSize) {
			frame := pmm.Frame(frameAddr >> mem.PageShift)
			if err := mapFn(PageFromAddress(frameAddr), frame, pteFlags, allocFrame); err != nil {
				sectionErr = err
				return
			}
		}
	})
	if sectionErr != nil {
		return sectionErr
	}

	vgaFrame := pmm.Frame(vgaBufferPhysAddr >> mem.PageShift)
	if err := mapFn(PageFromAddress(vgaBufferPhysAddr), vgaFrame, FlagRW, allocFrame); err != nil {
		return err
	}

	infoStart, infoEnd := multiboot.InfoRange()
	for frameAddr := infoStart &^ uintptr(mem.PageSize-1); frameAddr < infoEnd; frameAddr += uintptr(mem.PageSize) {
		frame := pmm.Frame(frameAddr >> mem.PageShift)
		if err := mapFn(PageFromAddress(frameAddr), frame, 0, allocFrame); err != nil {
			return err
		}
	}

	return nil
}

// mapHeapWindow maps every page of the kernel heap window via the
// now-active table, allocating a backing frame for each one on demand.
func mapHeapWindow() *kernel.Error {
	startPage := PageFromAddress(kernelHeapBase)
	endPage := PageFromAddress(kernelHeapBase + kernelHeapSize - 1)

	for page := startPage; page <= endPage; page++ {
		frame, err := allocFrame()
		if err != nil {
			return err
		}
		if err := mapFn(page, frame, FlagRW, allocFrame); err != nil {
			return err
		}
	}

	return nil
}
