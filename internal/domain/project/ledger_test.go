package project

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLedger_Reserve(t *testing.T) {
	l := Ledger{Budget: 95}

	require.NoError(t, l.Reserve(60))
	require.Equal(t, uint64(35), l.Available())

	require.ErrorIs(t, l.Reserve(36), ErrInsufficientBudget)
	require.Equal(t, uint64(60), l.Allocated, "failed reserve must not change allocation")

	require.NoError(t, l.Reserve(35))
	require.Zero(t, l.Available())

	require.ErrorIs(t, l.Reserve(0), ErrInvalidAmount)
}

func TestLedger_Release(t *testing.T) {
	l := Ledger{Budget: 10, Allocated: 7}

	require.ErrorIs(t, l.Release(8), ErrInvalidAmount)
	require.ErrorIs(t, l.Release(0), ErrInvalidAmount)
	require.Equal(t, uint64(7), l.Allocated)

	require.NoError(t, l.Release(7))
	require.Equal(t, uint64(10), l.Available())
}

func TestLedger_AvailableWhenOverAllocated(t *testing.T) {
	l := Ledger{Budget: 5, Allocated: 9}
	require.Zero(t, l.Available())
}
