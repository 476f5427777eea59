package cachemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type compiled struct {
	Text  string
	Nodes int
}

func TestMemory_SetGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory[string, compiled]("compiled-filters", time.Minute)
	want := compiled{Text: "(a=b)", Nodes: 1}

	_, ok := m.Get(ctx, "(a=b)")
	require.False(t, ok)

	m.Set(ctx, "(a=b)", want, 0)
	got, ok := m.Get(ctx, "(a=b)")
	require.True(t, ok)
	require.Equal(t, want, got)

	require.Equal(t, Stats{Name: "compiled-filters", Hits: 1, Misses: 1, Items: 1}, m.Stats())
}

func TestMemory_WrongTypeIsAMiss(t *testing.T) {
	m := NewMemory[string, compiled]("compiled-filters", time.Minute)
	m.items.Set("(a=b)", 123, 0)

	got, ok := m.Get(context.Background(), "(a=b)")
	require.False(t, ok)
	require.Zero(t, got)
	require.Equal(t, uint64(1), m.Stats().Misses)
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory[string, int]("resolved-types", 20*time.Millisecond)
	m.Set(ctx, "short", 1, 0)
	m.Set(ctx, "long", 2, time.Minute)

	time.Sleep(40 * time.Millisecond)

	_, ok := m.Get(ctx, "short")
	require.False(t, ok, "default expiry applies")
	_, ok = m.Get(ctx, "long")
	require.True(t, ok, "explicit ttl wins")
}

func TestMemory_TouchExtends(t *testing.T) {
	ctx := context.Background()
	m := NewMemory[string, int]("compiled-filters", time.Minute)
	m.Set(ctx, "k", 7, 30*time.Millisecond)

	v, ok := m.Touch(ctx, "k", time.Minute)
	require.True(t, ok)
	require.Equal(t, 7, v)

	time.Sleep(50 * time.Millisecond)
	_, ok = m.Get(ctx, "k")
	require.True(t, ok)

	_, ok = m.Touch(ctx, "missing", time.Minute)
	require.False(t, ok)
}

func TestMemory_NoExpiry(t *testing.T) {
	m := NewMemory[string, int]("resolved-resources", 0)
	m.Set(context.Background(), "k", 1, 0)
	_, ok := m.Get(context.Background(), "k")
	require.True(t, ok)
}

func TestMemory_DeleteAndFlush(t *testing.T) {
	ctx := context.Background()
	m := NewMemory[string, int]("compiled-filters", time.Minute)
	m.Set(ctx, "a", 1, 0)
	m.Set(ctx, "b", 2, 0)
	m.Set(ctx, "c", 3, 0)

	m.Delete(ctx, "a", "missing")
	_, ok := m.Get(ctx, "a")
	require.False(t, ok)
	require.Equal(t, uint64(1), m.Stats().Evictions)

	m.Flush(ctx)
	require.Zero(t, m.Stats().Items)
	require.Equal(t, uint64(1), m.Stats().Misses, "counters survive a flush")
}
