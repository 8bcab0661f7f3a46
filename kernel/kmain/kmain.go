package kmain

import (
	"github.com/sdemos/vmkernel/kernel"
	"github.com/sdemos/vmkernel/kernel/goruntime"
	"github.com/sdemos/vmkernel/kernel/hal"
	"github.com/sdemos/vmkernel/kernel/hal/multiboot"
	"github.com/sdemos/vmkernel/kernel/mem/pmm/allocator"
	"github.com/sdemos/vmkernel/kernel/mem/vmm"
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

	// MemController is the single MemoryController handle returned by
	// vmm.RemapKernel. It is the only way the rest of the kernel may reach
	// the stack allocator once the kernel is running on its own page
	// tables.
	MemController *vmm.MemoryController
)

// Kmain is the kernel entrypoint. It is called by the main trampoline in
// boot.go, which the rt0 assembly code invokes after setting up the GDT and a
// minimal g0 struct that allows Go code using the 4K stack allocated by the
// assembly code.
//
// The rt0 code passes the address of the multiboot info payload provided by the
// bootloader as well as the physical addresses for the kernel start/end.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	hal.InitTerminal()
	hal.ActiveTerminal.Clear()

	var err *kernel.Error
	if err = allocator.Init(kernelStart, kernelEnd); err != nil {
		panic(err)
	} else if err = vmm.Init(); err != nil {
		panic(err)
	}

	if MemController, err = vmm.RemapKernel(); err != nil {
		panic(err)
	}

	if err = goruntime.Init(); err != nil {
		panic(err)
	}

	// Use kernel.Panic instead of panic to prevent the compiler from
	// treating kernel.Panic as dead-code and eliminating it.
	kernel.Panic(errKmainReturned)
}
