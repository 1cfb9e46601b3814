package queue

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/JakeFAU/beer-ratings-crawler/internal/entity"
)

// MockQueue is a mock implementation of Queue for testing.
type MockQueue struct {
	mock.Mock
}

// Enqueue is the mock implementation of the Enqueue method.
func (m *MockQueue) Enqueue(ctx context.Context, ref entity.Ref) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

// Dequeue is the mock implementation of the Dequeue method.
func (m *MockQueue) Dequeue(ctx context.Context) (entity.Ref, error) {
	args := m.Called(ctx)
	return args.Get(0).(entity.Ref), args.Error(1)
}

// Close is the mock implementation of the Close method.
func (m *MockQueue) Close() {
	m.Called()
}
