// Package container provides a lazy, lifetime-aware service registry.
//
// Services register under a well-known name with a factory and a
// lifetime. Resolution is lazy: a singleton factory runs at most once
// and its instance is cached; a transient factory runs on every
// resolve. A factory that reports it cannot create (for example a
// missing API key) yields absence rather than an error, so consumers
// can degrade gracefully.
package container

import (
	"fmt"
	"sync"
)

// Lifetime controls instance caching for a registration.
type Lifetime int

const (
	// Singleton services are created once and cached for the
	// container's lifetime.
	Singleton Lifetime = iota
	// Transient services are created fresh on every resolve.
	Transient
)

// Factory produces service instances. CanCreate must be cheap; it is
// consulted on every resolve until an instance is cached. Create is
// only called after CanCreate has reported true.
type Factory interface {
	CanCreate() bool
	Create() (any, error)
}

// FactoryFunc adapts plain functions into an always-available Factory.
type FactoryFunc func() (any, error)

func (f FactoryFunc) CanCreate() bool      { return true }
func (f FactoryFunc) Create() (any, error) { return f() }

type registration struct {
	factory  Factory
	lifetime Lifetime
	cached   bool
	instance any
}

// Container holds service registrations. The zero value is not usable;
// construct with New. Safe for concurrent use.
type Container struct {
	mu       sync.Mutex
	services map[string]*registration
}

// New returns an empty container.
func New() *Container {
	return &Container{services: make(map[string]*registration)}
}

// Register records a factory under name. Registering the same name again
// replaces the prior registration and drops any cached instance.
func (c *Container) Register(name string, factory Factory, lifetime Lifetime) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[name] = &registration{factory: factory, lifetime: lifetime}
}

// Resolve returns the service registered under name.
//
// The second return reports availability: false when nothing is
// registered under name or the factory cannot currently create. A
// creation failure returns an error; failed singleton creations are
// not cached, so a later resolve retries the factory.
func (c *Container) Resolve(name string) (any, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reg, ok := c.services[name]
	if !ok {
		return nil, false, nil
	}
	if reg.lifetime == Singleton && reg.cached {
		return reg.instance, true, nil
	}
	if !reg.factory.CanCreate() {
		return nil, false, nil
	}

	instance, err := reg.factory.Create()
	if err != nil {
		return nil, false, fmt.Errorf("create service %q: %w", name, err)
	}
	if reg.lifetime == Singleton {
		reg.instance = instance
		reg.cached = true
	}
	return instance, true, nil
}

// Get resolves name and asserts the instance to T. Absence passes
// through; a type mismatch is an error naming both types.
func Get[T any](c *Container, name string) (T, bool, error) {
	var zero T

	instance, ok, err := c.Resolve(name)
	if err != nil || !ok {
		return zero, ok, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, false, fmt.Errorf("service %q is %T, not %T", name, instance, zero)
	}
	return typed, true, nil
}
