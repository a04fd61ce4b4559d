package dispatch_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"go.trai.ch/forge/internal/adapters/dispatch"
	"go.trai.ch/forge/internal/core/domain"
	"go.trai.ch/forge/internal/core/ports"
	"go.trai.ch/forge/internal/core/ports/mocks"
)

func testJob(stage domain.Stage) domain.StageJob {
	return domain.StageJob{
		RunID: "r-123",
		Stage: stage,
		Manifest: domain.EnvironmentManifest{
			Environment: domain.EnvironmentSection{
				Name:     "ocean-modeling",
				Packages: []string{"python@3.11"},
			},
		},
		Workspace: "/var/lib/forge/runs/r-123",
		Version:   "1.0",
		CreatedAt: time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC),
		Results:   map[domain.Stage]domain.StageResult{},
	}
}

func succeededResult(job domain.StageJob) domain.StageResult {
	started := time.Date(2026, 2, 14, 9, 1, 0, 0, time.UTC)
	return domain.StageResult{
		Stage:     job.Stage,
		Status:    domain.StageStatusSucceeded,
		OutputRef: "/var/lib/forge/runs/r-123/environment.lock",
		Attempts:  1,
		StartedAt: started,
		EndedAt:   started.Add(3 * time.Second),
	}
}

func stageExecutor(ctrl *gomock.Controller, stage domain.Stage) *mocks.MockStageExecutor {
	exec := mocks.NewMockStageExecutor(ctrl)
	exec.EXPECT().Stage().Return(stage).AnyTimes()
	return exec
}

func TestLocalDispatcher_RoutesToMatchingExecutor(t *testing.T) {
	ctrl := gomock.NewController(t)
	job := testJob(domain.StageBuildImage)
	want := succeededResult(job)

	concretize := stageExecutor(ctrl, domain.StageConcretize)
	build := stageExecutor(ctrl, domain.StageBuildImage)
	build.EXPECT().Execute(gomock.Any(), job).Return(want, nil)

	d := dispatch.NewLocalDispatcher([]ports.StageExecutor{concretize, build}, 2)

	got, err := d.Dispatch(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLocalDispatcher_UnknownStage(t *testing.T) {
	ctrl := gomock.NewController(t)
	concretize := stageExecutor(ctrl, domain.StageConcretize)

	d := dispatch.NewLocalDispatcher([]ports.StageExecutor{concretize}, 2)

	res, err := d.Dispatch(context.Background(), testJob(domain.StagePushArtifacts))
	require.ErrorIs(t, err, domain.ErrUnknownStage)
	assert.Equal(t, domain.StageStatusFailed, res.Status)
	assert.Equal(t, domain.StagePushArtifacts, res.Stage)
	assert.NotEmpty(t, res.Error)
}

func TestLocalDispatcher_LimitsConcurrency(t *testing.T) {
	ctrl := gomock.NewController(t)
	entered := make(chan struct{}, 2)
	release := make(chan struct{})

	exec := stageExecutor(ctrl, domain.StageConcretize)
	exec.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, job domain.StageJob) (domain.StageResult, error) {
			entered <- struct{}{}
			<-release
			return succeededResult(job), nil
		}).Times(2)

	d := dispatch.NewLocalDispatcher([]ports.StageExecutor{exec}, 1)

	errs := make(chan error, 2)
	for range 2 {
		go func() {
			_, err := d.Dispatch(context.Background(), testJob(domain.StageConcretize))
			errs <- err
		}()
	}

	<-entered
	select {
	case <-entered:
		t.Fatal("second job started while the only slot was held")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	for range 2 {
		require.NoError(t, <-errs)
	}
}

func TestLocalDispatcher_AcquireHonorsCancellation(t *testing.T) {
	ctrl := gomock.NewController(t)
	entered := make(chan struct{})
	release := make(chan struct{})

	exec := stageExecutor(ctrl, domain.StageConcretize)
	exec.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, job domain.StageJob) (domain.StageResult, error) {
			close(entered)
			<-release
			return succeededResult(job), nil
		})

	d := dispatch.NewLocalDispatcher([]ports.StageExecutor{exec}, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := d.Dispatch(context.Background(), testJob(domain.StageConcretize))
		assert.NoError(t, err)
	}()
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := d.Dispatch(ctx, testJob(domain.StageConcretize))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.StageStatusFailed, res.Status)

	close(release)
	<-done
}
