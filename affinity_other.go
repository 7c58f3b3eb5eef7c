//go:build !linux

package casbench

import (
	"fmt"
	"runtime"
)

func bindThread(core int) error {
	if core < 0 {
		return fmt.Errorf("bind to core %d: %w", core, ErrCoreOutOfRange)
	}
	return fmt.Errorf("bind to core %d: %w", core, ErrAffinityUnsupported)
}

func allowedCPUs() int { return runtime.NumCPU() }
