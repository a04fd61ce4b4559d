package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"go.trai.ch/forge/internal/adapters/dispatch"
	"go.trai.ch/forge/internal/app"
	"go.trai.ch/forge/internal/core/domain"
	"go.trai.ch/forge/internal/core/ports/mocks"
	"go.trai.ch/forge/internal/engine/orchestrator"
	"go.trai.ch/forge/internal/manifest"
	"go.trai.ch/forge/internal/patch"
)

type mainTestMocks struct {
	runs   *mocks.MockRunStore
	logger *mocks.MockLogger
}

// newTestComponents builds real application components over mocked ports so
// run can be exercised without Graft or a workspace.
func newTestComponents(t *testing.T) (*app.Components, mainTestMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)

	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Info(gomock.Any()).AnyTimes()
	log.EXPECT().Warn(gomock.Any()).AnyTimes()
	log.EXPECT().Error(gomock.Any()).AnyTimes()

	dispatcher := mocks.NewMockDispatcher(ctrl)
	runs := mocks.NewMockRunStore(ctrl)

	orch := orchestrator.New(
		dispatcher,
		mocks.NewMockRegistryClient(ctrl),
		runs,
		log,
		mocks.NewMockTracer(ctrl),
		t.TempDir(),
	)

	generator := manifest.NewGenerator(manifest.Options{
		TargetOS: "ubuntu22.04",
		Unify:    true,
	})
	patcher, err := patch.New(nil)
	require.NoError(t, err)

	components := &app.Components{
		App:    app.New(generator, patcher, orch, log),
		Logger: log,
		Agent:  dispatch.NewAgent(dispatcher, log, ":0"),
	}
	return components, mainTestMocks{runs: runs, logger: log}
}

// TestRun_Success verifies that the run function returns 0 when the command succeeds.
func TestRun_Success(t *testing.T) {
	components, _ := newTestComponents(t)
	provider := func(_ context.Context) (*app.Components, func(), error) {
		return components, func() {}, nil
	}

	stderr := new(bytes.Buffer)
	exitCode := run(context.Background(), []string{"version"}, stderr, provider)
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

// TestRun_ExecutionError verifies that run returns 1 when the command execution fails.
func TestRun_ExecutionError(t *testing.T) {
	components, m := newTestComponents(t)
	m.runs.EXPECT().Get("missing").Return(nil, domain.ErrRunNotFound)

	provider := func(_ context.Context) (*app.Components, func(), error) {
		return components, func() {}, nil
	}

	stderr := new(bytes.Buffer)
	exitCode := run(context.Background(), []string{"status", "missing"}, stderr, provider)

	assert.Equal(t, 1, exitCode)
}

// TestRun_Signal verifies that the context is canceled on signal.
func TestRun_Signal(t *testing.T) {
	components, m := newTestComponents(t)

	// Block the listing until the context is canceled.
	blockCh := make(chan struct{})
	m.runs.EXPECT().List().DoAndReturn(func() ([]domain.BuildRun, error) {
		select {
		case <-blockCh:
			return nil, context.Canceled
		case <-time.After(5 * time.Second):
			return nil, errors.New("timeout in mock")
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan int)

	go func() {
		errCh <- run(ctx, []string{"runs"}, io.Discard, func(context.Context) (*app.Components, func(), error) {
			return components, func() {}, nil
		})
	}()

	// Wait a bit to ensure run() reaches List()
	time.Sleep(100 * time.Millisecond)

	cancel()
	close(blockCh)

	select {
	case ret := <-errCh:
		assert.NotEqual(t, 0, ret)
	case <-time.After(2 * time.Second):
		t.Fatal("TestRun_Signal timed out waiting for run() to return")
	}
}
