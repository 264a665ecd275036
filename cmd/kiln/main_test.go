package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/kiln/internal/adapters/metrics"
	"go.trai.ch/kiln/internal/app"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func newProvider(a *app.App, logger *mocks.MockLogger) ComponentProvider {
	return func(_ context.Context) (*app.Components, func(), error) {
		return &app.Components{App: a, Logger: logger}, func() {}, nil
	}
}

// TestRun_Success verifies that the run function returns 0 when the command succeeds.
func TestRun_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockLogger := mocks.NewMockLogger(ctrl)

	application := app.New(
		mocks.NewMockConfigLoader(ctrl),
		nil, nil,
		mocks.NewMockUnitLoader(ctrl),
		mocks.NewMockEmitter(ctrl),
		mocks.NewMockLockStore(ctrl),
		nil, nil,
		metrics.NewRecorder(),
		mockLogger,
	)

	stderr := new(bytes.Buffer)
	exitCode := run(context.Background(), []string{"version"}, stderr, newProvider(application, mockLogger))
	assert.Equal(t, 0, exitCode)
}

// TestRun_InitializationError verifies that run returns 1 when component initialization fails.
func TestRun_InitializationError(t *testing.T) {
	provider := func(_ context.Context) (*app.Components, func(), error) {
		return nil, nil, errors.New("init failed")
	}

	stderr := new(bytes.Buffer)
	exitCode := run(context.Background(), []string{"version"}, stderr, provider)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "Error: init failed")
}

// TestRun_ExecutionError verifies that a failing command is logged and exits 1.
func TestRun_ExecutionError(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockLogger := mocks.NewMockLogger(ctrl)
	mockLoader := mocks.NewMockConfigLoader(ctrl)

	mockLoader.EXPECT().Load("/nowhere").Return(nil, domain.ErrConfigNotFound)
	mockLogger.EXPECT().Error(gomock.Any()).Times(1)

	application := app.New(mockLoader, nil, nil, nil, nil, nil, nil, nil, metrics.NewRecorder(), mockLogger)

	stderr := new(bytes.Buffer)
	exitCode := run(context.Background(), []string{"clean", "-C", "/nowhere"}, stderr, newProvider(application, mockLogger))
	assert.Equal(t, 1, exitCode)
}
