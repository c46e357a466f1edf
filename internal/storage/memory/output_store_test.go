package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cardshot/internal/item"
)

func TestOutputStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewOutputStore(item.FromUint64(1))

	uri, err := store.Put(ctx, item.FromUint64(2), []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, "memory://2", uri)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.True(t, ids.Equal(item.NewSet(item.FromUint64(1), item.FromUint64(2))))

	data, ok := store.Get(item.FromUint64(2))
	require.True(t, ok)
	assert.Equal(t, []byte("img"), data)
	assert.Equal(t, 1, store.Writes(item.FromUint64(2)))
	assert.Zero(t, store.Writes(item.FromUint64(1)))

	require.NoError(t, store.Delete(ctx, item.FromUint64(1)))
	_, ok = store.Get(item.FromUint64(1))
	assert.False(t, ok)
}
