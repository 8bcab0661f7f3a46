package vmm

import "github.com/sdemos/vmkernel/kernel/mem"

// Page describes a virtual memory page index.
type Page uintptr

// Address returns a pointer to the virtual memory address pointed to by this Page.
func (f Page) Address() uintptr {
	return uintptr(f << mem.PageShift)
}

// canonicalLow is the first non-canonical virtual address: bit 47 set
// without bits 48-63 sign-extended to match it.
const canonicalLow = uintptr(1) << 47

// canonicalHigh is the first virtual address past the non-canonical hole,
// where bits 48-63 once again match bit 47.
const canonicalHigh = uintptr(0xffff800000000000)

// PageFromAddress returns a Page that corresponds to the given virtual
// address. This function can handle both page-aligned and not aligned virtual
// addresses. in the latter case, the input address will be rounded down to the
// page that contains it. It panics if the address is not canonical, i.e. bits
// 48-63 do not match bit 47.
func PageFromAddress(virtAddr uintptr) Page {
	if virtAddr >= canonicalLow && virtAddr < canonicalHigh {
		panic("vmm: non-canonical virtual address")
	}

	return Page((virtAddr & ^(uintptr(mem.PageSize - 1))) >> mem.PageShift)
}
