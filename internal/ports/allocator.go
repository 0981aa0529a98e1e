// Package ports owns the pool of RDP forwarding ports handed to approved
// sessions. The exclusion set lives behind the allocator's lock; callers only
// see Allocate, Release and Reserve.
package ports

import (
	"fmt"
	"math/rand"
	"sync"
)

// Allocator hands out unique ports from a fixed numeric range. Ports stay
// excluded until released when their owning session ends; without the release
// the pool would shrink monotonically and allocation could not terminate.
type Allocator struct {
	mu   sync.Mutex
	min  int
	max  int
	used map[int]struct{}
}

// NewAllocator creates an allocator over the inclusive range [min,max].
func NewAllocator(min, max int) (*Allocator, error) {
	if min < 1 || max > 65535 || min > max {
		return nil, fmt.Errorf("invalid port range [%d,%d]", min, max)
	}
	return &Allocator{
		min:  min,
		max:  max,
		used: make(map[int]struct{}),
	}, nil
}

// Allocate picks a free port at random, marks it used and returns it.
// Fails when every port in the range is in flight.
func (a *Allocator) Allocate() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	size := a.max - a.min + 1
	if len(a.used) >= size {
		return 0, fmt.Errorf("port pool [%d,%d] exhausted", a.min, a.max)
	}

	// Random sampling finds a free port quickly while the pool is sparse;
	// fall back to a linear scan when unlucky.
	for i := 0; i < 3*size; i++ {
		candidate := a.min + rand.Intn(size)
		if _, taken := a.used[candidate]; !taken {
			a.used[candidate] = struct{}{}
			return candidate, nil
		}
	}
	for candidate := a.min; candidate <= a.max; candidate++ {
		if _, taken := a.used[candidate]; !taken {
			a.used[candidate] = struct{}{}
			return candidate, nil
		}
	}

	return 0, fmt.Errorf("port pool [%d,%d] exhausted", a.min, a.max)
}

// Release returns a port to the free set. Releasing an unknown or already
// free port is a no-op.
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.used, port)
}

// Reserve marks a specific port as used, e.g. when rebuilding the exclusion
// set from persisted sessions at startup. Reports whether the port was free.
func (a *Allocator) Reserve(port int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if port < a.min || port > a.max {
		return false
	}
	if _, taken := a.used[port]; taken {
		return false
	}
	a.used[port] = struct{}{}
	return true
}

// InUse reports whether a port is currently allocated.
func (a *Allocator) InUse(port int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, taken := a.used[port]
	return taken
}
