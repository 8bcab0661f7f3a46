package vmm

import (
	"github.com/sdemos/vmkernel/kernel"
	"github.com/sdemos/vmkernel/kernel/mem/pmm"
)

// tinyAllocatorSlots is the worst-case number of frames a single map_to
// call can consume while an inactive table is being edited under With: one
// frame each for a freshly created L3, L2 and L1 table.
const tinyAllocatorSlots = 3

var errTinyAllocatorEmpty = &kernel.Error{Module: "vmm", Message: "tiny allocator exhausted"}

// TinyAllocator is a fixed-capacity frame cache. It is seeded once, from a
// real frame allocator, with exactly tinyAllocatorSlots frames, and then
// used in place of that allocator for the duration of a single table edit
// so the edit never needs to call back out to it.
type TinyAllocator struct {
	frames [tinyAllocatorSlots]pmm.Frame
	n      int
}

// NewTinyAllocator drains tinyAllocatorSlots frames from source to seed a
// new TinyAllocator.
func NewTinyAllocator(source FrameAllocatorFn) (*TinyAllocator, *kernel.Error) {
	var ta TinyAllocator
	for i := 0; i < tinyAllocatorSlots; i++ {
		frame, err := source()
		if err != nil {
			return nil, err
		}
		ta.frames[i] = frame
		ta.n++
	}
	return &ta, nil
}

// AllocFrame satisfies FrameAllocatorFn by popping the most recently
// deallocated (or seeded) frame from the cache.
func (ta *TinyAllocator) AllocFrame() (pmm.Frame, *kernel.Error) {
	if ta.n == 0 {
		return pmm.InvalidFrame, errTinyAllocatorEmpty
	}
	ta.n--
	return ta.frames[ta.n], nil
}

// DeallocateFrame returns frame to the cache. It panics if the cache is
// already holding tinyAllocatorSlots frames, since the cache is sized to
// exactly the worst case a single map_to call can produce.
func (ta *TinyAllocator) DeallocateFrame(frame pmm.Frame) {
	if ta.n == tinyAllocatorSlots {
		panic("vmm: tiny allocator overflow")
	}
	ta.frames[ta.n] = frame
	ta.n++
}

// TemporaryPage owns a fixed virtual page in the kernel temp window plus a
// TinyAllocator sized to cover the table-creation cost of a single map_to.
// It is the vehicle PageDirectoryTable.With (and so RemapKernel) uses to
// reach a frame that isn't mapped anywhere yet.
type TemporaryPage struct {
	page  Page
	alloc *TinyAllocator
}

// NewTemporaryPage seeds a TemporaryPage's TinyAllocator from source and
// anchors it at the kernel temp window.
func NewTemporaryPage(source FrameAllocatorFn) (*TemporaryPage, *kernel.Error) {
	alloc, err := NewTinyAllocator(source)
	if err != nil {
		return nil, err
	}
	return &TemporaryPage{page: PageFromAddress(tempMappingAddr), alloc: alloc}, nil
}

// Map establishes a writable mapping of frame at this TemporaryPage's
// virtual address and returns that address.
func (tp *TemporaryPage) Map(frame pmm.Frame) (uintptr, *kernel.Error) {
	if err := mapFn(tp.page, frame, FlagRW, tp.alloc.AllocFrame); err != nil {
		return 0, err
	}
	return tp.page.Address(), nil
}

// Unmap removes the mapping installed by Map.
func (tp *TemporaryPage) Unmap() *kernel.Error {
	return unmapFn(tp.page)
}

// MapTableFrame maps frame exactly like Map and returns the same fixed
// virtual address, reinterpreted by the caller as the base of a level-1
// page table rather than as arbitrary data. Go has no use for the
// distinction Rust draws between the two views of the page, but the
// separate name documents which of With's two purposes a given call
// serves.
func (tp *TemporaryPage) MapTableFrame(frame pmm.Frame) (uintptr, *kernel.Error) {
	return tp.Map(frame)
}
