package mocks

import (
	"context"

	"github.com/dukex/stride/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockRecordWriter is a mock implementation of database.Writer.
type MockRecordWriter struct {
	mock.Mock
}

func (m *MockRecordWriter) WriteRecord(ctx context.Context, record models.ActionRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}
