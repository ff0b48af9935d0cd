// Package container is a small lazy dependency injection container. Services
// are registered as named providers, built on first use, cached, and torn
// down in reverse order of construction by Close.
//
//	c := container.New()
//	c.Provide("db", func(c *container.Container) (any, error) { return database.Open(...) })
//	db, err := container.Make[*gorm.DB](c, "db")
//	defer c.Close()
package container

import (
	"errors"
	"fmt"
	"sync"
)

// Provider builds one service. It may resolve other services from c.
type Provider func(c *Container) (any, error)

// Container holds providers and the instances they built.
type Container struct {
	mu        sync.Mutex
	providers map[string]Provider
	instances map[string]any
	building  map[string]bool
	closers   []closer
}

type closer struct {
	key string
	fn  func() error
}

func New() *Container {
	return &Container{
		providers: map[string]Provider{},
		instances: map[string]any{},
		building:  map[string]bool{},
	}
}

// Provide registers p under key, replacing any earlier provider. A cached
// instance for key is dropped.
func (c *Container) Provide(key string, p Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[key] = p
	delete(c.instances, key)
}

// Instance registers an already built service.
func (c *Container) Instance(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instances[key] = v
}

func (c *Container) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.providers[key]
	if !ok {
		_, ok = c.instances[key]
	}
	return ok
}

// Resolve returns the service under key, building it on first use.
func (c *Container) Resolve(key string) (any, error) {
	c.mu.Lock()
	if v, ok := c.instances[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	p, ok := c.providers[key]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("container: unknown binding %q", key)
	}
	if c.building[key] {
		c.mu.Unlock()
		return nil, fmt.Errorf("container: dependency cycle through %q", key)
	}
	c.building[key] = true
	c.mu.Unlock()

	v, err := p(c)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.building, key)
	if err != nil {
		return nil, fmt.Errorf("container: build %q: %w", key, err)
	}
	c.instances[key] = v
	return v, nil
}

// OnClose registers fn to run when the container closes.
func (c *Container) OnClose(key string, fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closers = append(c.closers, closer{key: key, fn: fn})
}

// Close runs the close hooks, last registered first, and joins their errors.
func (c *Container) Close() error {
	c.mu.Lock()
	closers := c.closers
	c.closers = nil
	c.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].fn(); err != nil {
			errs = append(errs, fmt.Errorf("container: close %q: %w", closers[i].key, err))
		}
	}
	return errors.Join(errs...)
}

// Make resolves key and asserts its type.
func Make[T any](c *Container, key string) (T, error) {
	var zero T
	v, err := c.Resolve(key)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("container: %q is %T, not %T", key, v, zero)
	}
	return t, nil
}

// MustMake is Make that panics, for wiring code where a missing binding is a
// programming error.
func MustMake[T any](c *Container, key string) T {
	v, err := Make[T](c, key)
	if err != nil {
		panic(err)
	}
	return v
}
