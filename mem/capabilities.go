package mem

import (
	"context"
	"sync"

	"bsid.es/despertador"
)

// Capabilities is an in-memory CapabilityProvider. Granted capabilities
// stay granted; a Request succeeds only for capabilities listed in
// Grantable, mimicking a user who accepts some prompts and refuses others.
type Capabilities struct {
	mu        sync.Mutex
	granted   map[despertador.Capability]bool
	grantable map[despertador.Capability]bool
	requests  int
}

func NewCapabilities() *Capabilities {
	return &Capabilities{
		granted:   make(map[despertador.Capability]bool),
		grantable: make(map[despertador.Capability]bool),
	}
}

var _ despertador.CapabilityProvider = (*Capabilities)(nil)

// Grant marks capabilities as already granted.
func (c *Capabilities) Grant(caps ...despertador.Capability) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cp := range caps {
		c.granted[cp] = true
	}
}

// Revoke withdraws capabilities, as a user would from system settings.
func (c *Capabilities) Revoke(caps ...despertador.Capability) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cp := range caps {
		delete(c.granted, cp)
	}
}

// Grantable makes future requests for caps succeed.
func (c *Capabilities) Grantable(caps ...despertador.Capability) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cp := range caps {
		c.grantable[cp] = true
	}
}

// Requests returns how many prompts were shown.
func (c *Capabilities) Requests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests
}

func (c *Capabilities) Granted(ctx context.Context, cp despertador.Capability) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.granted[cp], nil
}

func (c *Capabilities) Request(ctx context.Context, cp despertador.Capability) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests++
	if c.grantable[cp] {
		c.granted[cp] = true
	}
	return c.granted[cp], nil
}
