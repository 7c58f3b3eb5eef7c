//go:build linux

package casbench

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// maxCores is the capacity of unix.CPUSet.
const maxCores = int(unsafe.Sizeof(unix.CPUSet{})) * 8

func bindThread(core int) error {
	if core < 0 || core >= maxCores {
		return fmt.Errorf("bind to core %d: %w (max %d)", core, ErrCoreOutOfRange, maxCores-1)
	}

	var set unix.CPUSet
	set.Zero()
	set.Set(core)

	// pid 0 is the calling thread.
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("bind to core %d: %w", core, err)
	}
	return nil
}

func allowedCPUs() int {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return runtime.NumCPU()
	}
	return set.Count()
}
