package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/cardshot/internal/config"
	"github.com/JakeFAU/cardshot/internal/item"
	"github.com/JakeFAU/cardshot/internal/storage"
	"github.com/JakeFAU/cardshot/internal/storage/local"
	"github.com/JakeFAU/cardshot/internal/storage/memory"
)

func TestNewOutputStoreLocal(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Capture.Codec = "png"
	cfg.Output.Provider = "local"
	cfg.Output.Dir = filepath.Join(t.TempDir(), "cards")

	store, closeFn, err := storage.NewOutputStore(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer closeFn() //nolint:errcheck // noop

	localStore, ok := store.(*local.OutputStore)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(cfg.Output.Dir, "5.png"), localStore.Path(item.FromUint64(5)))
}

func TestNewOutputStoreMemory(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Capture.Codec = "jpeg"
	cfg.Output.Provider = "memory"

	store, _, err := storage.NewOutputStore(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &memory.OutputStore{}, store)
}

func TestNewOutputStoreUnknown(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Capture.Codec = "jpeg"
	cfg.Output.Provider = "s3"

	_, _, err := storage.NewOutputStore(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestMockOutputStore(t *testing.T) {
	t.Parallel()

	m := new(storage.MockOutputStore)
	ctx := context.Background()
	m.On("List", ctx).Return(item.NewSet(item.FromUint64(1)), nil)
	m.On("Delete", ctx, item.FromUint64(1)).Return(nil)

	ids, err := m.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ids.Len())
	require.NoError(t, m.Delete(ctx, item.FromUint64(1)))
	m.AssertExpectations(t)
}
