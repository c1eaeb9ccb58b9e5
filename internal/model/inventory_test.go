package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func item(quantity, reserved int) *InventoryItem {
	return &InventoryItem{Quantity: quantity, ReservedQuantity: reserved, IsActive: true}
}

func TestReserve(t *testing.T) {
	t.Parallel()

	t.Run("holds available stock", func(t *testing.T) {
		i := item(10, 3)
		require.True(t, i.Reserve(7))
		require.Equal(t, 10, i.Quantity)
		require.Equal(t, 10, i.ReservedQuantity)
		require.Equal(t, 0, i.AvailableQuantity())
	})

	t.Run("fully reserved item rejects any further hold", func(t *testing.T) {
		i := item(5, 5)
		require.False(t, i.Reserve(1))
		require.Equal(t, 5, i.Quantity)
		require.Equal(t, 5, i.ReservedQuantity)
	})

	t.Run("inactive item rejects holds", func(t *testing.T) {
		i := item(10, 0)
		i.IsActive = false
		require.False(t, i.Reserve(1))
		require.Equal(t, 0, i.ReservedQuantity)
	})

	t.Run("insufficiency mutates nothing", func(t *testing.T) {
		i := item(4, 2)
		require.False(t, i.Reserve(3))
		require.Equal(t, 2, i.ReservedQuantity)
	})
}

func TestRelease(t *testing.T) {
	t.Parallel()

	i := item(10, 4)
	require.True(t, i.Release(4))
	require.Equal(t, 0, i.ReservedQuantity)
	require.Equal(t, 10, i.Quantity)

	require.False(t, i.Release(1))
	require.Equal(t, 0, i.ReservedQuantity)
}

func TestAllocate(t *testing.T) {
	t.Parallel()

	t.Run("consumes reservation and stock together", func(t *testing.T) {
		i := item(10, 4)
		require.True(t, i.Allocate(4))
		require.Equal(t, 6, i.Quantity)
		require.Equal(t, 0, i.ReservedQuantity)
	})

	t.Run("cannot allocate beyond the reservation", func(t *testing.T) {
		i := item(10, 2)
		require.False(t, i.Allocate(3))
		require.Equal(t, 10, i.Quantity)
		require.Equal(t, 2, i.ReservedQuantity)
	})
}

// The invariant 0 <= reserved <= quantity must hold after any sequence of
// mutations, including ones that report failure.
func TestMutationSequenceKeepsInvariant(t *testing.T) {
	t.Parallel()

	i := item(8, 0)
	steps := []func() bool{
		func() bool { return i.Reserve(5) },
		func() bool { return i.Reserve(5) }, // only 3 available, must fail
		func() bool { return i.Allocate(2) },
		func() bool { i.AddStock(4); return true },
		func() bool { return i.Release(3) },
		func() bool { return i.Release(3) }, // nothing left to release
		func() bool { return i.Reserve(10) },
		func() bool { return i.Allocate(10) },
	}
	for n, step := range steps {
		step()
		require.GreaterOrEqual(t, i.ReservedQuantity, 0, "after step %d", n)
		require.LessOrEqual(t, i.ReservedQuantity, i.Quantity, "after step %d", n)
	}
	require.Equal(t, 0, i.Quantity)
	require.Equal(t, 0, i.ReservedQuantity)
}

func TestFormatInventoryCode(t *testing.T) {
	t.Parallel()

	require.Equal(t, "INV-2025-0001", FormatInventoryCode(2025, 1))
	require.Equal(t, "INV-2025-10000", FormatInventoryCode(2025, 10000))
}

func TestAvailableQuantity(t *testing.T) {
	t.Parallel()

	require.Equal(t, 7, item(10, 3).AvailableQuantity())
	require.Equal(t, 0, item(5, 5).AvailableQuantity())
	require.True(t, item(1, 0).IsInStock())
	require.False(t, item(3, 3).IsInStock())
}
