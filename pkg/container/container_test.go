package container

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveBuildsOnceAndCaches(t *testing.T) {
	c := New()
	calls := 0
	c.Provide("n", func(*Container) (any, error) {
		calls++
		return calls, nil
	})

	a, err := Make[int](c, "n")
	require.NoError(t, err)
	b, err := Make[int](c, "n")
	require.NoError(t, err)

	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
	assert.Equal(t, 1, calls)
	assert.True(t, c.Has("n"))
}

func TestResolveDependencies(t *testing.T) {
	c := New()
	c.Instance("base", "resto")
	c.Provide("greeting", func(c *Container) (any, error) {
		base, err := Make[string](c, "base")
		if err != nil {
			return nil, err
		}
		return "bonjour " + base, nil
	})

	assert.Equal(t, "bonjour resto", MustMake[string](c, "greeting"))
}

func TestResolveErrors(t *testing.T) {
	c := New()

	_, err := c.Resolve("missing")
	assert.ErrorContains(t, err, "unknown binding")

	c.Provide("a", func(c *Container) (any, error) { return c.Resolve("b") })
	c.Provide("b", func(c *Container) (any, error) { return c.Resolve("a") })
	_, err = c.Resolve("a")
	assert.ErrorContains(t, err, "dependency cycle")

	c.Instance("s", "text")
	_, err = Make[int](c, "s")
	assert.ErrorContains(t, err, "not int")

	boom := errors.New("boom")
	c.Provide("bad", func(*Container) (any, error) { return nil, boom })
	_, err = c.Resolve("bad")
	assert.ErrorIs(t, err, boom)
	assert.Panics(t, func() { MustMake[int](c, "bad") })
}

func TestCloseRunsInReverse(t *testing.T) {
	c := New()
	var order []string
	c.OnClose("db", func() error { order = append(order, "db"); return nil })
	c.OnClose("redis", func() error { order = append(order, "redis"); return errors.New("gone") })

	err := c.Close()
	assert.ErrorContains(t, err, `close "redis"`)
	assert.Equal(t, []string{"redis", "db"}, order)

	assert.NoError(t, c.Close())
}
