// Package vmm implements the kernel's virtual memory manager: a recursively
// mapped amd64 page table walker, an inactive-page-table editing protocol
// and the kernel remap bootstrap that switches the CPU away from the
// bootloader-provided page tables onto ones the kernel fully controls.
package vmm

import (
	"github.com/sdemos/vmkernel/kernel"
	"github.com/sdemos/vmkernel/kernel/mem/pmm"
)

var (
	// frameAllocator points to a frame allocator function registered
	// using SetFrameAllocator. It is used whenever the vmm package needs
	// to back a new page table level with a physical frame.
	frameAllocator FrameAllocatorFn
)

// SetFrameAllocator registers a frame allocator function that will be used by
// the vmm code when new physical frames need to be allocated.
func SetFrameAllocator(allocFn FrameAllocatorFn) {
	frameAllocator = allocFn
}

// Init prepares the vmm package for use. It must be called exactly once,
// after a frame allocator has been registered via SetFrameAllocator and
// before any call to RemapKernel.
func Init() *kernel.Error {
	if vmmInitialized {
		return errAlreadyInited
	}
	if frameAllocator == nil {
		return errNoFrameAllocator
	}
	vmmInitialized = true
	return nil
}

var (
	vmmInitialized bool

	errNoFrameAllocator = &kernel.Error{Module: "vmm", Message: "no frame allocator registered"}
	errAlreadyInited    = &kernel.Error{Module: "vmm", Message: "Init called more than once"}
)

// allocFrame is a convenience wrapper that satisfies FrameAllocatorFn by
// delegating to the package-level allocator registered via
// SetFrameAllocator. It lets internal callers that don't receive an
// allocator argument (e.g. RemapKernel) still go through the same path.
func allocFrame() (pmm.Frame, *kernel.Error) {
	return frameAllocator()
}
