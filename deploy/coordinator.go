package deploy

import (
	"sync"

	"infrakt.dev/common"
)

// Coordinator enforces at most one in-flight deployment per app.
// Concurrent triggers are rejected with a conflict rather than queued;
// the caller retries once the running deployment settles.
type Coordinator struct {
	mu     sync.Mutex
	active map[uint]struct{}
}

// NewCoordinator returns an empty coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{active: map[uint]struct{}{}}
}

// Acquire claims the app for a deployment.
func (c *Coordinator) Acquire(appID uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.active[appID]; busy {
		return common.Conflictf("a deployment is already in progress for this app")
	}
	c.active[appID] = struct{}{}
	return nil
}

// Release frees the app. Releasing an unclaimed app is a no-op.
func (c *Coordinator) Release(appID uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, appID)
}

// Busy reports whether a deployment is in flight for the app.
func (c *Coordinator) Busy(appID uint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, busy := c.active[appID]
	return busy
}
