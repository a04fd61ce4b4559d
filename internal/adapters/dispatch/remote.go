package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.trai.ch/zerr"

	"go.trai.ch/forge/internal/core/domain"
	"go.trai.ch/forge/internal/core/ports"
)

// jobsPath is the agent endpoint stage jobs are posted to.
const jobsPath = "/api/v1/jobs"

var _ ports.Dispatcher = (*RemoteDispatcher)(nil)

// jobResponse is the agent's reply to a dispatched stage job. Error carries
// the stage's failure cause as text; sentinel error identity does not survive
// the wire.
type jobResponse struct {
	Result domain.StageResult `json:"result"`
	Error  string             `json:"error,omitzero"`
}

// RemoteDispatcher posts stage jobs to a forge agent and blocks until the
// agent reports the terminal result.
type RemoteDispatcher struct {
	agentURL string
	client   *http.Client
	logger   ports.Logger
}

// NewRemoteDispatcher creates a dispatcher that sends jobs to the agent at
// the given base URL. The timeout bounds one whole job round trip, so it must
// cover the stage's execution time.
func NewRemoteDispatcher(agentURL string, timeout time.Duration, logger ports.Logger) *RemoteDispatcher {
	return &RemoteDispatcher{
		agentURL: strings.TrimRight(agentURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Dispatch sends the job to the agent and decodes its terminal result.
func (d *RemoteDispatcher) Dispatch(ctx context.Context, job domain.StageJob) (domain.StageResult, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		encErr := zerr.With(zerr.Wrap(err, "failed to encode stage job"), "stage", string(job.Stage))
		return failedResult(job, encErr), encErr
	}

	url := d.agentURL + jobsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		reqErr := zerr.With(zerr.Wrap(err, "failed to build agent request"), "url", url)
		return failedResult(job, reqErr), reqErr
	}
	req.Header.Set("Content-Type", "application/json")

	d.logger.Info(fmt.Sprintf("dispatching %s stage of run %s to %s", job.Stage, job.RunID, d.agentURL))
	resp, err := d.client.Do(req)
	if err != nil {
		sendErr := zerr.With(domain.ErrToolInvocation, "agent", d.agentURL)
		sendErr = zerr.With(sendErr, "cause", err.Error())
		return failedResult(job, sendErr), sendErr
	}
	defer resp.Body.Close() //nolint:errcheck // Best effort close in defer

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		statusErr := zerr.With(domain.ErrToolInvocation, "agent", d.agentURL)
		statusErr = zerr.With(statusErr, "status", resp.StatusCode)
		statusErr = zerr.With(statusErr, "body", strings.TrimSpace(string(body)))
		return failedResult(job, statusErr), statusErr
	}

	var reply jobResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		decErr := zerr.With(domain.ErrToolInvocation, "agent", d.agentURL)
		decErr = zerr.With(decErr, "cause", err.Error())
		return failedResult(job, decErr), decErr
	}

	if reply.Error != "" {
		return reply.Result, errors.New(reply.Error)
	}
	return reply.Result, nil
}
