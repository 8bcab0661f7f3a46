package vmm

import (
	"github.com/sdemos/vmkernel/kernel"
	"github.com/sdemos/vmkernel/kernel/mem"
)

// Stack describes a kernel stack allocated by StackAllocator. Bottom is the
// lowest mapped address; Top is one past the highest mapped address and is
// the value a caller should load into a stack pointer register.
type Stack struct {
	top    uintptr
	bottom uintptr
}

// Top returns the virtual address a stack pointer register should be
// loaded with.
func (s Stack) Top() uintptr { return s.top }

// Bottom returns the virtual address of the lowest mapped byte of the stack.
func (s Stack) Bottom() uintptr { return s.bottom }

var errStackAllocatorExhausted = &kernel.Error{Module: "vmm", Message: "stack allocator range exhausted"}

// StackAllocator hands out kernel stacks from a contiguous range of pages,
// each preceded by an unmapped guard page so a stack overflow faults
// instead of silently corrupting whatever is mapped below it.
type StackAllocator struct {
	// next is the next page StackAllocator will consider handing out as a
	// guard page.
	next Page

	// end is one past the last page available to this allocator.
	end Page
}

// NewStackAllocator returns a StackAllocator that hands out stacks from the
// half-open page range [start, end).
func NewStackAllocator(start, end Page) StackAllocator {
	return StackAllocator{next: start, end: end}
}

// AllocStack reserves sizeInPages pages for a new stack, preceded by a
// guard page, and maps them writable via the active page table. It returns
// false if the allocator's remaining range cannot satisfy the request,
// leaving the allocator's state unchanged.
func (sa *StackAllocator) AllocStack(sizeInPages uint, allocFn FrameAllocatorFn) (Stack, bool) {
	if sizeInPages == 0 {
		return Stack{}, false
	}

	guardPage := sa.next
	firstPage := guardPage + 1
	lastPage := firstPage
	if sizeInPages > 1 {
		lastPage = firstPage + Page(sizeInPages-2) + 1
	}

	if lastPage >= sa.end {
		return Stack{}, false
	}

	sa.next = lastPage + 1

	for page := firstPage; page <= lastPage; page++ {
		frame, err := allocFn()
		if err != nil {
			panic(err)
		}
		if err := mapFn(page, frame, FlagPresent|FlagRW, allocFn); err != nil {
			panic(err)
		}
	}

	return Stack{
		top:    lastPage.Address() + uintptr(mem.PageSize),
		bottom: firstPage.Address(),
	}, true
}
