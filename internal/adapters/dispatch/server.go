package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"

	"go.trai.ch/forge/internal/core/domain"
	"go.trai.ch/forge/internal/core/ports"
)

// shutdownGrace bounds how long a stopping agent waits for in-flight jobs.
const shutdownGrace = 10 * time.Second

// Agent serves stage execution requests over HTTP. Build hosts run it so the
// orchestrator can dispatch stages off the submitting machine.
type Agent struct {
	dispatcher ports.Dispatcher
	logger     ports.Logger
	metrics    *metrics
	registry   *prometheus.Registry
	listen     string
}

// NewAgent creates an agent that executes jobs with the given dispatcher and
// listens on the given address.
func NewAgent(dispatcher ports.Dispatcher, logger ports.Logger, listen string) *Agent {
	reg := prometheus.NewRegistry()
	return &Agent{
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    newMetrics(reg),
		registry:   reg,
		listen:     listen,
	}
}

// Handler returns the agent's HTTP routes.
func (a *Agent) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("POST "+jobsPath, a.handleJob)
	return mux
}

// Serve runs the agent HTTP server until the context is cancelled, then
// shuts down gracefully.
func (a *Agent) Serve(ctx context.Context) error {
	server := &http.Server{
		Addr:              a.listen,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info(fmt.Sprintf("agent listening on %s", a.listen))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return zerr.With(zerr.Wrap(err, "agent server failed"), "listen", a.listen)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *Agent) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (a *Agent) handleJob(w http.ResponseWriter, r *http.Request) {
	var job domain.StageJob
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		a.logger.Warn(fmt.Sprintf("rejecting malformed stage job: %v", err))
		http.Error(w, "malformed stage job", http.StatusBadRequest)
		return
	}

	a.logger.Info(fmt.Sprintf("executing %s stage of run %s", job.Stage, job.RunID))
	a.metrics.activeJobs.Inc()
	started := time.Now()

	result, execErr := a.dispatcher.Dispatch(r.Context(), job)

	a.metrics.activeJobs.Dec()
	a.metrics.observe(job.Stage, result.Status, time.Since(started))

	reply := jobResponse{Result: result}
	if execErr != nil {
		reply.Error = execErr.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(reply); err != nil {
		a.logger.Error(zerr.Wrap(err, "failed to encode job response"))
	}
}
