package despertador

import (
	"context"
	"strings"
)

// PermissionGate checks, and where possible requests, everything needed to
// guarantee an alarm will be delivered. EnsureReady returns an
// ErrPermissionDenied error when a capability is still missing.
type PermissionGate interface {
	EnsureReady(ctx context.Context) error
}

// PermissionFunc adapts a function to PermissionGate.
type PermissionFunc func(ctx context.Context) error

func (f PermissionFunc) EnsureReady(ctx context.Context) error { return f(ctx) }

// AlwaysReady is a gate for platforms with nothing to ask for.
var AlwaysReady PermissionGate = PermissionFunc(func(context.Context) error { return nil })

type Capability string

const (
	// CapNotifications is the authorization to post notifications.
	CapNotifications Capability = "notifications"
	// CapExactTiming is the ability to wake at an exact instant, which
	// some platforms grant separately.
	CapExactTiming Capability = "exact-timing"
)

// CapabilityProvider exposes the platform's permission model.
type CapabilityProvider interface {
	Granted(ctx context.Context, c Capability) (bool, error)

	// Request asks the user for c and reports whether it was granted.
	Request(ctx context.Context, c Capability) (bool, error)
}

// CapabilityGate is a PermissionGate requiring a fixed set of capabilities.
type CapabilityGate struct {
	Provider CapabilityProvider
	Required []Capability
}

var _ PermissionGate = (*CapabilityGate)(nil)

func (g *CapabilityGate) EnsureReady(ctx context.Context) error {
	var missing []string
	for _, c := range g.Required {
		ok, err := g.Provider.Granted(ctx, c)
		if err != nil {
			return Errorf(ErrPermissionDenied, "could not check %s permission: %v", c, err)
		}
		if ok {
			continue
		}
		ok, err = g.Provider.Request(ctx, c)
		if err != nil {
			return Errorf(ErrPermissionDenied, "could not request %s permission: %v", c, err)
		}
		if !ok {
			missing = append(missing, string(c))
		}
	}
	if len(missing) > 0 {
		return Errorf(ErrPermissionDenied,
			"could not guarantee this alarm will ring: grant the %s permission", strings.Join(missing, " and "))
	}
	return nil
}
