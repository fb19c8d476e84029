package service

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"github.com/architeacher/svc-pubsub/internal/domain"
)

type (
	MockEmitter struct {
		mock.Mock
	}

	MockObjectFinder struct {
		mock.Mock
	}

	MockObjectSaver struct {
		mock.Mock
	}

	MockValidator struct {
		mock.Mock
	}

	MockHealthChecker struct {
		mock.Mock
	}
)

func (m *MockEmitter) Emit(ctx context.Context, topic string, args ...any) error {
	return m.Called(ctx, topic, args).Error(0)
}

func (m *MockObjectFinder) GetObject(ctx context.Context, id string, prototype domain.Object) (domain.Object, error) {
	args := m.Called(ctx, id, prototype)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(domain.Object), args.Error(1)
}

func (m *MockObjectFinder) FindObjects(ctx context.Context, prototype domain.Object, filter map[string]any) ([]domain.Object, error) {
	args := m.Called(ctx, prototype, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]domain.Object), args.Error(1)
}

func (m *MockObjectSaver) SaveObject(ctx context.Context, obj domain.Object) (domain.Object, error) {
	args := m.Called(ctx, obj)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(domain.Object), args.Error(1)
}

func (m *MockValidator) IsValid(obj any) bool {
	return m.Called(obj).Bool(0)
}

func (m *MockValidator) Validate(obj any) error {
	return m.Called(obj).Error(0)
}

func (m *MockValidator) AddSchema(name string, raw json.RawMessage) error {
	return m.Called(name, raw).Error(0)
}

func (m *MockHealthChecker) CheckHealth(ctx context.Context) *domain.HealthResult {
	return m.Called(ctx).Get(0).(*domain.HealthResult)
}
