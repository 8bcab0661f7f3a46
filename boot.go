package main

import "github.com/sdemos/vmkernel/kernel/kmain"

// multibootInfoPtr, kernelStartAddr and kernelEndAddr are populated by the
// rt0 assembly trampoline before it jumps to main. kernelStartAddr and
// kernelEndAddr bound the physical extent of the loaded kernel ELF image so
// that the early frame allocator never hands out a frame the kernel itself
// occupies.
var (
	multibootInfoPtr uintptr
	kernelStartAddr  uintptr
	kernelEndAddr    uintptr
)

// main is the only Go symbol that is visible (exported) from the rt0 initialization
// code. This function works as a trampoline for calling the actual kernel entrypoint
// (kmain.Kmain) and its intentionally defined to prevent the Go compiler from
// optimizing away the actual kernel code as its not aware of the presence of the
// rt0 code.
//
// The main function is invoked by the rt0 assembly code after setting up the GDT
// and setting up a a minimal g0 struct that allows Go code using the 4K stack
// allocated by the assembly code.
//
// main is not expected to return. If it does, the rt0 code will halt the CPU.
func main() {
	kmain.Kmain(multibootInfoPtr, kernelStartAddr, kernelEndAddr)
}
