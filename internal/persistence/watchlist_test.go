package persistence_test

import (
	"LiqWatch/internal/chain"
	"LiqWatch/internal/persistence"
	"LiqWatch/internal/testutil"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	addrA = "0x00000000000000000000000000000000000000AA"
	addrB = "0x00000000000000000000000000000000000000bb"
)

// ============================================================================
// Test: CanonicalAddress
// ============================================================================

func TestCanonicalAddress(t *testing.T) {
	got, err := persistence.CanonicalAddress("  " + addrA + " ")
	require.NoError(t, err)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", got)

	for _, bad := range []string{"", "0x123", "00000000000000000000000000000000000000aa", "0xZZ000000000000000000000000000000000000aa"} {
		_, err := persistence.CanonicalAddress(bad)
		assert.ErrorIs(t, err, chain.ErrInvalidAddress, "input=%q", bad)
	}
}

// ============================================================================
// Test: MemoryWatchList
// ============================================================================

func TestMemoryWatchList_AddListRemove(t *testing.T) {
	ctx := context.Background()
	wl := persistence.NewMemoryWatchList()

	e, err := wl.Add(ctx, addrA, "whale")
	require.NoError(t, err)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", e.Address)
	assert.Equal(t, "whale", e.Label)
	assert.False(t, e.AddedAt.IsZero())

	_, err = wl.Add(ctx, addrB, "")
	require.NoError(t, err)

	addrs, err := wl.Addresses(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"0x00000000000000000000000000000000000000aa",
		"0x00000000000000000000000000000000000000bb",
	}, addrs)

	require.NoError(t, wl.Remove(ctx, "0x00000000000000000000000000000000000000AA"))
	addrs, err = wl.Addresses(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0x00000000000000000000000000000000000000bb"}, addrs)
}

func TestMemoryWatchList_AddExistingUpdatesLabel(t *testing.T) {
	ctx := context.Background()
	wl := persistence.NewMemoryWatchList()

	first, err := wl.Add(ctx, addrA, "old")
	require.NoError(t, err)
	second, err := wl.Add(ctx, addrA, "new")
	require.NoError(t, err)

	assert.Equal(t, "new", second.Label)
	assert.Equal(t, first.AddedAt, second.AddedAt)

	entries, err := wl.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMemoryWatchList_Errors(t *testing.T) {
	ctx := context.Background()
	wl := persistence.NewMemoryWatchList()

	_, err := wl.Add(ctx, "nope", "")
	assert.ErrorIs(t, err, chain.ErrInvalidAddress)

	err = wl.Remove(ctx, addrA)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	wl := persistence.NewMemoryWatchList()
	_, err := wl.Add(ctx, addrA, "keep")
	require.NoError(t, err)

	n, err := persistence.Seed(ctx, wl, []persistence.WatchEntry{
		{Address: addrA, Label: "overwrite?"},
		{Address: addrB, Label: "new"},
		{Address: addrB, Label: "dup"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entries, err := wl.List(ctx)
	require.NoError(t, err)
	labels := map[string]string{}
	for _, e := range entries {
		labels[e.Address] = e.Label
	}
	assert.Equal(t, "keep", labels["0x00000000000000000000000000000000000000aa"])
	assert.Equal(t, "new", labels["0x00000000000000000000000000000000000000bb"])

	_, err = persistence.Seed(ctx, wl, []persistence.WatchEntry{{Address: "bad"}})
	assert.ErrorIs(t, err, chain.ErrInvalidAddress)
}

// ============================================================================
// Test: PostgresWatchList (integration)
// ============================================================================

func TestPostgresWatchList(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	wl := persistence.NewPostgresWatchList(db)

	e, err := wl.Add(ctx, addrA, "whale")
	require.NoError(t, err)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", e.Address)

	again, err := wl.Add(ctx, addrA, "renamed")
	require.NoError(t, err)
	assert.Equal(t, "renamed", again.Label)
	assert.True(t, e.AddedAt.Equal(again.AddedAt))

	_, err = wl.Add(ctx, addrB, "")
	require.NoError(t, err)

	addrs, err := wl.Addresses(ctx)
	require.NoError(t, err)
	assert.Len(t, addrs, 2)

	require.NoError(t, wl.Remove(ctx, addrB))
	assert.ErrorIs(t, wl.Remove(ctx, addrB), persistence.ErrNotFound)
}
