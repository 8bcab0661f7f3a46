// Package allocator contains the early, bump-pointer physical frame
// allocator that bootstraps the kernel before a more capable allocator can
// take over.
package allocator

import (
	"github.com/sdemos/vmkernel/kernel"
	"github.com/sdemos/vmkernel/kernel/hal/multiboot"
	"github.com/sdemos/vmkernel/kernel/mem/pmm"
	"github.com/sdemos/vmkernel/kernel/mem/vmm"
)

var (
	initialized      bool
	errAlreadyInited = &kernel.Error{Module: "allocator", Message: "Init called more than once"}
)

// Init sets up EarlyAllocator using the physical extents of the loaded
// kernel image and registers AllocFrame as the vmm package's frame
// allocator. It must be called exactly once.
func Init(kernelStart, kernelEnd uintptr) *kernel.Error {
	if initialized {
		return errAlreadyInited
	}
	initialized = true

	infoStart, infoEnd := multiboot.InfoRange()
	EarlyAllocator.Init(kernelStart, kernelEnd, infoStart, infoEnd)
	vmm.SetFrameAllocator(AllocFrame)
	return nil
}

// AllocFrame reserves and returns the next available physical frame from
// EarlyAllocator. It satisfies vmm.FrameAllocatorFn.
func AllocFrame() (pmm.Frame, *kernel.Error) {
	return EarlyAllocator.AllocFrame(0)
}
