package mocks

import (
	"context"

	"github.com/dukex/stride/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence.
type MockPersistence struct {
	mock.Mock
}

func (m *MockPersistence) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	args := m.Called(ctx)

	workflows, _ := args.Get(0).([]*models.Workflow)

	return workflows, args.Error(1)
}

func (m *MockPersistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)

	workflow, _ := args.Get(0).(*models.Workflow)

	return workflow, args.Error(1)
}

func (m *MockPersistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockPersistence) DeleteWorkflow(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockPersistence) Users(ctx context.Context) ([]*models.UserContext, error) {
	args := m.Called(ctx)

	users, _ := args.Get(0).([]*models.UserContext)

	return users, args.Error(1)
}

func (m *MockPersistence) UserByID(ctx context.Context, id string) (*models.UserContext, error) {
	args := m.Called(ctx, id)

	user, _ := args.Get(0).(*models.UserContext)

	return user, args.Error(1)
}

func (m *MockPersistence) SaveUser(ctx context.Context, user *models.UserContext) error {
	args := m.Called(ctx, user)

	return args.Error(0)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockUserSelector is a mock implementation of protocol.UserSelector.
type MockUserSelector struct {
	mock.Mock
}

func (m *MockUserSelector) SelectUsers(ctx context.Context, workflow *models.Workflow) ([]*models.UserContext, error) {
	args := m.Called(ctx, workflow)

	users, _ := args.Get(0).([]*models.UserContext)

	return users, args.Error(1)
}
