package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnCommit(t *testing.T) {
	// Outside any transaction the hook runs in place.
	var ran bool
	OnCommit(context.Background(), func() { ran = true })
	assert.True(t, ran)

	// Inside a transaction it is parked until commit.
	state := &txState{}
	ctx := context.WithValue(context.Background(), txKey{}, state)
	ran = false
	OnCommit(ctx, func() { ran = true })
	assert.False(t, ran, "hook must not fire while the transaction is open")
	require.Len(t, state.after, 1)

	state.after[0]()
	assert.True(t, ran)
}

func TestOnCommit_Ordering(t *testing.T) {
	state := &txState{}
	ctx := context.WithValue(context.Background(), txKey{}, state)

	var order []int
	OnCommit(ctx, func() { order = append(order, 1) })
	OnCommit(ctx, func() { order = append(order, 2) })

	for _, hook := range state.after {
		hook()
	}
	assert.Equal(t, []int{1, 2}, order)
}
