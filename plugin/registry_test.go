package plugin

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/plugcfg/errors"
	"github.com/teranos/plugcfg/shape"
)

// =============================================================================
// Test Descriptors
// =============================================================================

func newDescriptor(id string) *Descriptor {
	return &Descriptor{
		ID:       id,
		Title:    fmt.Sprintf("Test %s plugin", id),
		Version:  "1.0.0",
		Priority: PriorityOptional,
		Options: []OptionSpec{
			{Name: "who", Shape: shape.String(), Default: "world", HasDefault: true},
		},
	}
}

// =============================================================================
// Registry Tests
// =============================================================================

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry()
	assert.NotNil(t, registry)
	assert.Equal(t, 0, registry.Len())
	assert.Empty(t, registry.List())
}

func TestRegistry_Add(t *testing.T) {
	t.Run("successful registration", func(t *testing.T) {
		registry := NewRegistry()
		d := newDescriptor("greeter")

		require.NoError(t, registry.Add(d))

		retrieved, err := registry.Get("greeter")
		require.NoError(t, err)
		assert.Equal(t, d, retrieved)
	})

	t.Run("duplicate id", func(t *testing.T) {
		registry := NewRegistry()
		first := newDescriptor("x")
		second := newDescriptor("x")
		second.Title = "second"

		require.NoError(t, registry.Add(first))

		err := registry.Add(second)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrDuplicateID))

		assert.Equal(t, 1, registry.Len())
		got, err := registry.Get("x")
		require.NoError(t, err)
		assert.Equal(t, first.Title, got.Title, "the first registration survives")
	})

	t.Run("invalid descriptor leaves registry unchanged", func(t *testing.T) {
		registry := NewRegistry()
		d := newDescriptor("bad")
		d.Options = append(d.Options, OptionSpec{Name: "who", Shape: shape.Int()})

		err := registry.Add(d)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrMetadataMalformed))
		assert.Equal(t, 0, registry.Len())
		assert.False(t, registry.Has("bad"))
	})

	t.Run("nil descriptor", func(t *testing.T) {
		assert.Error(t, NewRegistry().Add(nil))
	})

	t.Run("registry owns a copy", func(t *testing.T) {
		registry := NewRegistry()
		d := newDescriptor("greeter")
		require.NoError(t, registry.Add(d))

		d.Options[0].Default = "mutated"
		d.Title = "mutated"

		got, err := registry.Get("greeter")
		require.NoError(t, err)
		assert.Equal(t, "world", got.Options[0].Default)
		assert.NotEqual(t, "mutated", got.Title)

		got.Options[0].Name = "changed"
		again, _ := registry.Get("greeter")
		assert.Equal(t, "who", again.Options[0].Name)
	})
}

func TestRegistry_Get(t *testing.T) {
	t.Run("existing plugin", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Add(newDescriptor("test")))

		retrieved, err := registry.Get("test")
		require.NoError(t, err)
		assert.Equal(t, "test", retrieved.ID)
	})

	t.Run("non-existent plugin", func(t *testing.T) {
		registry := NewRegistry()

		retrieved, err := registry.Get("nonexistent")
		assert.Nil(t, retrieved)
		assert.True(t, errors.Is(err, errors.ErrUnknownID))
		assert.True(t, errors.IsNotFoundError(err))
	})
}

func TestRegistry_ListKeepsInsertionOrder(t *testing.T) {
	registry := NewRegistry()
	ids := []string{"zeta", "alpha", "mid", "beta"}
	for _, id := range ids {
		require.NoError(t, registry.Add(newDescriptor(id)))
	}

	assert.Equal(t, ids, registry.IDs())
	list := registry.List()
	require.Len(t, list, len(ids))
	for i, d := range list {
		assert.Equal(t, ids[i], d.ID)
	}
}

func TestRegistry_Remove(t *testing.T) {
	registry := NewRegistry()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, registry.Add(newDescriptor(id)))
	}

	require.NoError(t, registry.Remove("b"))
	assert.Equal(t, []string{"a", "c"}, registry.IDs())

	err := registry.Remove("b")
	assert.True(t, errors.Is(err, errors.ErrUnknownID))

	require.NoError(t, registry.Add(newDescriptor("b")))
	assert.Equal(t, []string{"a", "c", "b"}, registry.IDs(), "re-adding appends")
}

func TestRegistry_Codec(t *testing.T) {
	t.Run("memoized per id", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Add(newDescriptor("greeter")))

		c1, err := registry.Codec("greeter")
		require.NoError(t, err)
		c2, err := registry.Codec("greeter")
		require.NoError(t, err)
		assert.Same(t, c1, c2)
	})

	t.Run("remove invalidates", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Add(newDescriptor("greeter")))
		c1, err := registry.Codec("greeter")
		require.NoError(t, err)

		require.NoError(t, registry.Remove("greeter"))
		_, err = registry.Codec("greeter")
		assert.True(t, errors.Is(err, errors.ErrUnknownID))

		replacement := newDescriptor("greeter")
		replacement.Options = append(replacement.Options, OptionSpec{Name: "times", Shape: shape.Int()})
		require.NoError(t, registry.Add(replacement))

		c2, err := registry.Codec("greeter")
		require.NoError(t, err)
		assert.NotSame(t, c1, c2)
		_, ok := c2.Field("times")
		assert.True(t, ok)
	})

	t.Run("compile failure is reported", func(t *testing.T) {
		registry := NewRegistry()
		d := newDescriptor("bad")
		d.Options = []OptionSpec{{Name: "mode", Shape: shape.EnumOf("a"), Default: "b", HasDefault: true}}
		require.NoError(t, registry.Add(d))

		_, err := registry.Codec("bad")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidShape))
	})
}

func TestRegistry_ConcurrentReads(t *testing.T) {
	registry := NewRegistry()
	for i := 0; i < 10; i++ {
		require.NoError(t, registry.Add(newDescriptor(fmt.Sprintf("p%d", i))))
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("p%d", i%10)
			_, err := registry.Codec(id)
			assert.NoError(t, err)
			_, err = registry.Get(id)
			assert.NoError(t, err)
			assert.Len(t, registry.List(), 10)
		}(i)
	}
	wg.Wait()
}
