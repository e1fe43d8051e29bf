package dispatch

import (
	"sync/atomic"

	"github.com/cuemby/schedcore/pkg/driver"
)

// driverHandle holds the dispatcher's current Driver reference. The
// resource master may reregister with a fresh Driver instance at any time
// (driver.Callbacks.Reregistered); every caller should read through this
// handle rather than caching a Driver value, per spec.md §5.
type driverHandle struct {
	ptr atomic.Pointer[driver.Driver]
}

// Store installs d as the current driver.
func (h *driverHandle) Store(d driver.Driver) {
	h.ptr.Store(&d)
}

// Current returns the current driver, or nil if none is registered yet.
func (h *driverHandle) Current() driver.Driver {
	p := h.ptr.Load()
	if p == nil {
		return nil
	}
	return *p
}
