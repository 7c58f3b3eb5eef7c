package casbench

import "errors"

var (
	// ErrCoreOutOfRange is returned for a core index the affinity mask
	// cannot express.
	ErrCoreOutOfRange = errors.New("core index out of range")

	// ErrAffinityUnsupported is returned on platforms without thread
	// affinity.
	ErrAffinityUnsupported = errors.New("thread affinity not supported on this platform")
)

// Binder restricts the calling OS thread to a single logical core.
//
// Callers must have locked the goroutine to its thread with
// runtime.LockOSThread, otherwise the binding applies to whichever thread the
// goroutine happens to run on.
type Binder interface {
	Bind(core int) error
}

// BinderFunc adapts a function to Binder.
type BinderFunc func(core int) error

// Bind calls f(core).
func (f BinderFunc) Bind(core int) error { return f(core) }

// ThreadBinder binds through the operating system's affinity call.
type ThreadBinder struct{}

// Bind pins the calling OS thread to core.
func (ThreadBinder) Bind(core int) error { return bindThread(core) }

// AllowedCPUs returns how many logical CPUs this process may run on.
func AllowedCPUs() int { return allowedCPUs() }
