package vmm

import "github.com/sdemos/vmkernel/kernel/hal/multiboot"

// pteFlagsFromElfSection translates the flags reported for a kernel ELF
// section by the boot loader into the equivalent set of page table entry
// flags. A section is only ever identity-mapped when it carries the
// allocated bit; callers are expected to skip sections that don't.
func pteFlagsFromElfSection(flags multiboot.ElfSectionFlag) PageTableEntryFlag {
	var pteFlags PageTableEntryFlag

	if flags&multiboot.ElfSectionAllocated != 0 {
		pteFlags |= FlagPresent
	}

	if flags&multiboot.ElfSectionWritable != 0 {
		pteFlags |= FlagRW
	}

	if flags&multiboot.ElfSectionExecutable == 0 {
		pteFlags |= FlagNoExecute
	}

	return pteFlags
}
