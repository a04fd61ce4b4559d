package dispatch_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/zerr"
	"go.uber.org/mock/gomock"

	"go.trai.ch/forge/internal/adapters/dispatch"
	"go.trai.ch/forge/internal/core/domain"
	"go.trai.ch/forge/internal/core/ports/mocks"
)

func postJob(t *testing.T, handler http.Handler, job domain.StageJob) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(job)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAgent_ExecutesJob(t *testing.T) {
	ctrl := gomock.NewController(t)
	job := testJob(domain.StageConcretize)
	want := succeededResult(job)

	dispatcher := mocks.NewMockDispatcher(ctrl)
	dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, got domain.StageJob) (domain.StageResult, error) {
			assert.Equal(t, job.RunID, got.RunID)
			assert.Equal(t, job.Stage, got.Stage)
			assert.Equal(t, job.Version, got.Version)
			return want, nil
		})

	agent := dispatch.NewAgent(dispatcher, quietLogger(ctrl), ":8640")

	rec := postJob(t, agent.Handler(), job)
	require.Equal(t, http.StatusOK, rec.Code)

	var reply agentReply
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&reply))
	assert.Equal(t, want, reply.Result)
	assert.Empty(t, reply.Error)
}

func TestAgent_ReportsStageFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	job := testJob(domain.StageBuildImage)
	failed := succeededResult(job)
	failed.Status = domain.StageStatusFailed
	failed.OutputRef = ""
	failed.Error = "image build tool exited: exit status 1"

	execErr := zerr.With(domain.ErrToolExited, "exit_code", 1)
	dispatcher := mocks.NewMockDispatcher(ctrl)
	dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Return(failed, execErr)

	agent := dispatch.NewAgent(dispatcher, quietLogger(ctrl), ":8640")

	rec := postJob(t, agent.Handler(), job)
	require.Equal(t, http.StatusOK, rec.Code)

	var reply agentReply
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&reply))
	assert.Equal(t, domain.StageStatusFailed, reply.Result.Status)
	assert.Equal(t, execErr.Error(), reply.Error)
}

func TestAgent_RejectsMalformedJob(t *testing.T) {
	ctrl := gomock.NewController(t)
	dispatcher := mocks.NewMockDispatcher(ctrl)

	agent := dispatch.NewAgent(dispatcher, quietLogger(ctrl), ":8640")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	agent.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAgent_Health(t *testing.T) {
	ctrl := gomock.NewController(t)
	agent := dispatch.NewAgent(mocks.NewMockDispatcher(ctrl), quietLogger(ctrl), ":8640")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	agent.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAgent_Metrics(t *testing.T) {
	ctrl := gomock.NewController(t)
	job := testJob(domain.StageConcretize)

	dispatcher := mocks.NewMockDispatcher(ctrl)
	dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Return(succeededResult(job), nil)

	agent := dispatch.NewAgent(dispatcher, quietLogger(ctrl), ":8640")
	handler := agent.Handler()

	rec := postJob(t, handler, job)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	metricsRec := httptest.NewRecorder()
	handler.ServeHTTP(metricsRec, req)

	require.Equal(t, http.StatusOK, metricsRec.Code)
	metrics, err := io.ReadAll(metricsRec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `forge_stage_executions_total{stage="concretize",status="succeeded"} 1`)
	assert.Contains(t, string(metrics), `forge_stage_duration_seconds_count{stage="concretize"} 1`)
	assert.Contains(t, string(metrics), "forge_active_jobs 0")
}

func TestAgent_ServeShutsDownOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	agent := dispatch.NewAgent(mocks.NewMockDispatcher(ctrl), quietLogger(ctrl), "127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- agent.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not shut down after cancellation")
	}
}
