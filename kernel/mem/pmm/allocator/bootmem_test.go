package allocator

import (
	"bytes"
	"testing"
	"unsafe"

	"github.com/sdemos/vmkernel/kernel/driver/video/console"
	"github.com/sdemos/vmkernel/kernel/hal"
	"github.com/sdemos/vmkernel/kernel/hal/multiboot"
	"github.com/sdemos/vmkernel/kernel/mem/pmm"
)

func TestAreaFrameAllocator(t *testing.T) {
	mockTTY()
	multiboot.SetInfoPtr(uintptr(unsafe.Pointer(&multibootMemoryMap[0])))

	// region 0 extents get rounded to [0, 9f000] and provides 159 frames [0 to 158]
	// region 1 uses the original extents [100000 - 7fe0000] and provides 32480 frames [256-32735]
	var totalFreeFrames uint64 = 159 + 32480

	var alloc AreaFrameAllocator
	alloc.Init(0, 0, 0, 0)

	var allocFrameCount uint64
	for {
		frame, err := alloc.AllocFrame(0)
		if err != nil {
			if err == errBootAllocOutOfMemory {
				break
			}
			t.Fatalf("[frame %d] unexpected allocator error: %v", allocFrameCount, err)
		}
		allocFrameCount++
		if frame != pmm.Frame(alloc.lastAllocIndex) {
			t.Errorf("[frame %d] expected allocated frame to be %d; got %d", allocFrameCount, alloc.lastAllocIndex, frame)
		}

		if !frame.IsValid() {
			t.Errorf("[frame %d] expected IsValid() to return true", allocFrameCount)
		}
	}

	if allocFrameCount != totalFreeFrames {
		t.Fatalf("expected allocator to allocate %d frames; allocated %d", totalFreeFrames, allocFrameCount)
	}
}

func TestAreaFrameAllocatorSkipsKernelAndInfoRanges(t *testing.T) {
	mockTTY()
	multiboot.SetInfoPtr(uintptr(unsafe.Pointer(&multibootMemoryMap[0])))

	var alloc AreaFrameAllocator
	// Reserve frames [0-9] for the kernel image and [10-19] for the boot
	// info blob; both ranges fall inside the first available region.
	alloc.Init(0, 10*4096, 10*4096, 20*4096)

	frame, err := alloc.AllocFrame(0)
	if err != nil {
		t.Fatal(err)
	}

	if frame < 20 {
		t.Fatalf("expected first allocated frame to be >= 20; got %d", frame)
	}
}

func TestAreaFrameAllocatorUnsupportedOrder(t *testing.T) {
	var alloc AreaFrameAllocator
	if _, err := alloc.AllocFrame(1); err != errBootAllocUnsupportedPageSize {
		t.Fatalf("expected errBootAllocUnsupportedPageSize; got %v", err)
	}
}

func TestAllocatorPackageInit(t *testing.T) {
	fb := mockTTY()
	multiboot.SetInfoPtr(uintptr(unsafe.Pointer(&multibootMemoryMap[0])))

	EarlyAllocator.Init(0, 0, 0, 0)

	var buf bytes.Buffer
	for i := 0; i < len(fb); i += 2 {
		if fb[i] == 0x0 {
			continue
		}
		buf.WriteByte(fb[i])
	}

	got := buf.String()
	if want := "[boot_mem_alloc] system memory map:"; !bytes.Contains([]byte(got), []byte(want)) {
		t.Fatalf("expected output to contain %q; got %q", want, got)
	}
	if want := "[boot_mem_alloc] free memory: 130559Kb"; !bytes.Contains([]byte(got), []byte(want)) {
		t.Fatalf("expected output to contain %q; got %q", want, got)
	}
}

var (
	// A dump of multiboot data when running under qemu containing only the
	// memory region tag.  The dump encodes the following available memory
	// regions:
	// [     0 -   9fc00] length:    654336
	// [100000 - 7fe0000] length: 133038080
	multibootMemoryMap = []byte{
		72, 5, 0, 0, 0, 0, 0, 0,
		6, 0, 0, 0, 160, 0, 0, 0, 24, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 252, 9, 0, 0, 0, 0, 0,
		1, 0, 0, 0, 0, 0, 0, 0, 0, 252, 9, 0, 0, 0, 0, 0,
		0, 4, 0, 0, 0, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 15, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0,
		2, 0, 0, 0, 0, 0, 0, 0, 0, 0, 16, 0, 0, 0, 0, 0,
		0, 0, 238, 7, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 254, 7, 0, 0, 0, 0, 0, 0, 2, 0, 0, 0, 0, 0,
		2, 0, 0, 0, 0, 0, 0, 0, 0, 0, 252, 255, 0, 0, 0, 0,
		0, 0, 4, 0, 0, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0,
		9, 0, 0, 0, 212, 3, 0, 0, 24, 0, 0, 0, 40, 0, 0, 0,
		21, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 27, 0, 0, 0,
		1, 0, 0, 0, 2, 0, 0, 0, 0, 0, 16, 0, 0, 16, 0, 0,
		24, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

func mockTTY() []byte {
	// Mock a tty to handle early.Printf output
	mockConsoleFb := make([]byte, 160*25)
	mockConsole := &console.Ega{}
	mockConsole.Init(80, 25, uintptr(unsafe.Pointer(&mockConsoleFb[0])))
	hal.ActiveTerminal.AttachTo(mockConsole)

	return mockConsoleFb
}
