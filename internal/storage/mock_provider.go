package storage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/JakeFAU/cardshot/internal/item"
)

// MockOutputStore is a testify mock of capture.OutputStore.
type MockOutputStore struct {
	mock.Mock
}

// List is the mock implementation of List.
func (m *MockOutputStore) List(ctx context.Context) (item.Set, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).(item.Set)
	return ids, args.Error(1) //nolint:wrapcheck
}

// Put is the mock implementation of Put.
func (m *MockOutputStore) Put(ctx context.Context, id item.ID, data []byte) (string, error) {
	args := m.Called(ctx, id, data)
	return args.String(0), args.Error(1) //nolint:wrapcheck
}

// Delete is the mock implementation of Delete.
func (m *MockOutputStore) Delete(ctx context.Context, id item.ID) error {
	args := m.Called(ctx, id)
	return args.Error(0) //nolint:wrapcheck
}
